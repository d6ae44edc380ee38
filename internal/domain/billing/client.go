package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/FACorreiaa/peakheight-api/internal/types"
)

// platformWeb is sent as X-Platform so the provider answers with the web
// billing view of offerings and receipts.
const platformWeb = "stripe"

// Offerings is the full offerings answer for a customer.
type Offerings struct {
	CurrentOfferingID string           `json:"current_offering_id"`
	All               []types.Offering `json:"offerings"`
}

// Client is the subset of the RevenueCat REST API the bridge uses.
type Client interface {
	GetCustomerInfo(ctx context.Context, appUserID string) (*types.CustomerInfo, error)
	GetOfferings(ctx context.Context, appUserID string) (*Offerings, error)
	PostReceipt(ctx context.Context, appUserID, fetchToken, productID string) (*types.CustomerInfo, error)
}

// APIError is a non-2xx answer from RevenueCat.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("revenuecat returned %d (code %d): %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return types.ErrBillingNotConfigured
	case http.StatusNotFound:
		return types.ErrNotFound
	case http.StatusBadRequest:
		return types.ErrBadRequest
	}
	return nil
}

var _ Client = (*RESTClient)(nil)

type RESTClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewRESTClient(baseURL, apiKey string, timeout time.Duration) *RESTClient {
	return &RESTClient{
		baseURL: strings.TrimRight(baseURL, "/") + "/v1",
		apiKey:  apiKey,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type subscriberEnvelope struct {
	Subscriber struct {
		OriginalAppUserID string                       `json:"original_app_user_id"`
		ManagementURL     *string                      `json:"management_url"`
		FirstSeen         *time.Time                   `json:"first_seen"`
		Entitlements      map[string]types.Entitlement `json:"entitlements"`
	} `json:"subscriber"`
}

func (s subscriberEnvelope) customerInfo() *types.CustomerInfo {
	info := &types.CustomerInfo{
		OriginalAppUserID: s.Subscriber.OriginalAppUserID,
		ManagementURL:     s.Subscriber.ManagementURL,
		FirstSeen:         s.Subscriber.FirstSeen,
		Entitlements:      s.Subscriber.Entitlements,
	}
	if info.Entitlements == nil {
		info.Entitlements = map[string]types.Entitlement{}
	}
	return info
}

func (c *RESTClient) GetCustomerInfo(ctx context.Context, appUserID string) (*types.CustomerInfo, error) {
	var env subscriberEnvelope
	if err := c.do(ctx, http.MethodGet, "/subscribers/"+url.PathEscape(appUserID), nil, &env); err != nil {
		return nil, err
	}
	return env.customerInfo(), nil
}

func (c *RESTClient) GetOfferings(ctx context.Context, appUserID string) (*Offerings, error) {
	var o Offerings
	if err := c.do(ctx, http.MethodGet, "/subscribers/"+url.PathEscape(appUserID)+"/offerings", nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (c *RESTClient) PostReceipt(ctx context.Context, appUserID, fetchToken, productID string) (*types.CustomerInfo, error) {
	body := map[string]string{
		"app_user_id": appUserID,
		"fetch_token": fetchToken,
	}
	if productID != "" {
		body["product_id"] = productID
	}
	var env subscriberEnvelope
	if err := c.do(ctx, http.MethodPost, "/receipts", body, &env); err != nil {
		return nil, err
	}
	return env.customerInfo(), nil
}

func (c *RESTClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode billing request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build billing request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Platform", platformWeb)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("billing request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read billing response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var e struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Message != "" {
			apiErr.Code, apiErr.Message = e.Code, e.Message
		}
		return apiErr
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode billing response: %w", err)
	}
	return nil
}
