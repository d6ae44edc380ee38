package session

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

// User is the auth provider's view of an account.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// MetadataString returns the first non-empty string metadata value among keys.
func (u *User) MetadataString(keys ...string) string {
	for _, k := range keys {
		if s, ok := u.UserMetadata[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// Tokens is a provider session.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	User         *User  `json:"user,omitempty"`
}

// AuthProvider is the external auth service.
type AuthProvider interface {
	GetUser(ctx context.Context, accessToken string) (*User, error)
	ExchangeCodeForSession(ctx context.Context, code, verifier string) (*Tokens, error)
	RefreshSession(ctx context.Context, refreshToken string) (*Tokens, error)
	SignOut(ctx context.Context, accessToken string) error
	AuthorizeURL(provider, redirectTo, challenge string) (string, error)
}

// APIError is a non-2xx answer from the auth provider.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("auth provider returned %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden {
		return types.ErrUnauthenticated
	}
	if e.Status == http.StatusBadRequest {
		return types.ErrBadRequest
	}
	return nil
}

var oauthProviders = map[string]url.Values{
	"google": {"access_type": {"offline"}, "prompt": {"consent"}},
	"apple":  {"scopes": {"name email"}},
}

var _ AuthProvider = (*GoTrueClient)(nil)

// GoTrueClient talks to the Supabase auth REST API.
type GoTrueClient struct {
	baseURL string
	anonKey string
	http    *http.Client
}

func NewGoTrueClient(projectURL, anonKey string, timeout time.Duration) *GoTrueClient {
	return &GoTrueClient{
		baseURL: strings.TrimRight(projectURL, "/") + "/auth/v1",
		anonKey: anonKey,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (c *GoTrueClient) GetUser(ctx context.Context, accessToken string) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/user", accessToken, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *GoTrueClient) ExchangeCodeForSession(ctx context.Context, code, verifier string) (*Tokens, error) {
	var t Tokens
	body := map[string]string{"auth_code": code, "code_verifier": verifier}
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=pkce", "", body, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *GoTrueClient) RefreshSession(ctx context.Context, refreshToken string) (*Tokens, error) {
	var t Tokens
	body := map[string]string{"refresh_token": refreshToken}
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", "", body, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *GoTrueClient) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/logout", accessToken, nil, nil)
}

// AuthorizeURL returns the provider redirect that starts an OAuth PKCE flow.
func (c *GoTrueClient) AuthorizeURL(provider, redirectTo, challenge string) (string, error) {
	extra, ok := oauthProviders[provider]
	if !ok {
		return "", fmt.Errorf("unsupported oauth provider %q: %w", provider, types.ErrBadRequest)
	}
	q := url.Values{}
	q.Set("provider", provider)
	q.Set("redirect_to", redirectTo)
	q.Set("code_challenge", challenge)
	q.Set("code_challenge_method", "s256")
	for k, v := range extra {
		q[k] = v
	}
	return c.baseURL + "/authorize?" + q.Encode(), nil
}

func (c *GoTrueClient) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode auth request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build auth request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("auth provider request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read auth response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode auth response: %w", err)
	}
	return nil
}

func errorMessage(raw []byte) string {
	var e struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if json.Unmarshal(raw, &e) == nil {
		for _, s := range []string{e.ErrorDescription, e.Msg, e.Message, e.Error} {
			if s != "" {
				return s
			}
		}
	}
	if len(raw) > 200 {
		raw = raw[:200]
	}
	return strings.TrimSpace(string(raw))
}
