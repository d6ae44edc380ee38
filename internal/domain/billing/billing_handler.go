package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"

	"github.com/FACorreiaa/peakheight-api/internal/types"
	"github.com/FACorreiaa/peakheight-api/pkg/interceptors"
	"github.com/FACorreiaa/peakheight-api/pkg/rpc"
)

const ServiceName = "peakheight.billing.v1.BillingService"

const (
	GetOfferingsProcedure     = "/" + ServiceName + "/GetOfferings"
	PurchaseProcedure         = "/" + ServiceName + "/Purchase"
	GetCustomerInfoProcedure  = "/" + ServiceName + "/GetCustomerInfo"
	RestorePurchasesProcedure = "/" + ServiceName + "/RestorePurchases"
	GetEntitlementProcedure   = "/" + ServiceName + "/GetEntitlement"
)

type GetOfferingsRequest struct{}

type GetOfferingsResponse struct {
	*OfferingsResult
	WebPurchaseLink string `json:"webPurchaseLink,omitempty"`
}

type PurchaseRequest struct {
	PackageID string `json:"packageId"`
	// FetchToken identifies the completed web checkout. Empty when the user
	// closed the checkout without paying.
	FetchToken string `json:"fetchToken,omitempty"`
}

type GetCustomerInfoRequest struct{}

type CustomerInfoResponse struct {
	CustomerInfo  *types.CustomerInfo `json:"customerInfo"`
	Premium       bool                `json:"premium"`
	ExpiresAt     *time.Time          `json:"expiresAt,omitempty"`
	ManagementURL string              `json:"managementUrl,omitempty"`
}

type GetEntitlementRequest struct {
	// EntitlementID defaults to the configured premium entitlement.
	EntitlementID string `json:"entitlementId,omitempty"`
}

type GetEntitlementResponse struct {
	EntitlementID string     `json:"entitlementId"`
	Active        bool       `json:"active"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}

// Handler implements the BillingService RPCs.
type Handler struct {
	registry *Registry
	logger   *slog.Logger
}

func NewHandler(registry *Registry, logger *slog.Logger) *Handler {
	return &Handler{registry: registry, logger: logger}
}

func NewServiceHandler(h *Handler, opts ...connect.HandlerOption) (string, http.Handler) {
	svc := rpc.NewService(ServiceName, opts...)
	rpc.Unary(svc, "GetOfferings", h.GetOfferings)
	rpc.Unary(svc, "Purchase", h.Purchase)
	rpc.Unary(svc, "GetCustomerInfo", h.GetCustomerInfo)
	rpc.Unary(svc, "RestorePurchases", h.RestorePurchases)
	rpc.Unary(svc, "GetEntitlement", h.GetEntitlement)
	return svc.Handler()
}

func (h *Handler) handle(ctx context.Context, method string) (*Handle, error) {
	userID, _ := interceptors.GetUserIDFromContext(ctx)
	handle, err := h.registry.ForUser(userID)
	if err != nil {
		return nil, h.toConnectError(ctx, method, err)
	}
	return handle, nil
}

func (h *Handler) GetOfferings(
	ctx context.Context,
	_ *connect.Request[GetOfferingsRequest],
) (*connect.Response[GetOfferingsResponse], error) {
	handle, err := h.handle(ctx, "GetOfferings")
	if err != nil {
		return nil, err
	}
	offerings, err := handle.GetOfferings(ctx)
	if err != nil {
		return nil, h.toConnectError(ctx, "GetOfferings", err)
	}
	return connect.NewResponse(&GetOfferingsResponse{
		OfferingsResult: offerings,
		WebPurchaseLink: handle.WebPurchaseLink(),
	}), nil
}

func (h *Handler) Purchase(
	ctx context.Context,
	req *connect.Request[PurchaseRequest],
) (*connect.Response[PurchaseResult], error) {
	if strings.TrimSpace(req.Msg.PackageID) == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("packageId is required"))
	}
	handle, err := h.handle(ctx, "Purchase")
	if err != nil {
		return nil, err
	}

	offerings, err := handle.GetOfferings(ctx)
	if err != nil {
		return nil, h.toConnectError(ctx, "Purchase", err)
	}
	pkg := offerings.Package(req.Msg.PackageID)
	if pkg == nil {
		return nil, h.toConnectError(ctx, "Purchase", fmt.Errorf("%w: %s", types.ErrPackageNotFound, req.Msg.PackageID))
	}

	result, err := handle.Purchase(ctx, *pkg, req.Msg.FetchToken)
	if err != nil {
		return nil, h.toConnectError(ctx, "Purchase", err)
	}
	return connect.NewResponse(result), nil
}

func (h *Handler) GetCustomerInfo(
	ctx context.Context,
	_ *connect.Request[GetCustomerInfoRequest],
) (*connect.Response[CustomerInfoResponse], error) {
	handle, err := h.handle(ctx, "GetCustomerInfo")
	if err != nil {
		return nil, err
	}
	info, err := handle.GetCustomerInfo(ctx)
	if err != nil {
		return nil, h.toConnectError(ctx, "GetCustomerInfo", err)
	}
	return connect.NewResponse(customerInfoResponse(handle, info)), nil
}

func (h *Handler) RestorePurchases(
	ctx context.Context,
	_ *connect.Request[GetCustomerInfoRequest],
) (*connect.Response[CustomerInfoResponse], error) {
	handle, err := h.handle(ctx, "RestorePurchases")
	if err != nil {
		return nil, err
	}
	info, err := handle.Restore(ctx)
	if err != nil {
		return nil, h.toConnectError(ctx, "RestorePurchases", err)
	}
	return connect.NewResponse(customerInfoResponse(handle, info)), nil
}

func (h *Handler) GetEntitlement(
	ctx context.Context,
	req *connect.Request[GetEntitlementRequest],
) (*connect.Response[GetEntitlementResponse], error) {
	handle, err := h.handle(ctx, "GetEntitlement")
	if err != nil {
		return nil, err
	}
	info, err := handle.GetCustomerInfo(ctx)
	if err != nil {
		return nil, h.toConnectError(ctx, "GetEntitlement", err)
	}

	id := req.Msg.EntitlementID
	if id == "" {
		resp := &GetEntitlementResponse{
			EntitlementID: handle.settings.EntitlementID,
			Active:        handle.HasEntitlement(info),
			ExpiresAt:     handle.ExpirationDate(info),
		}
		return connect.NewResponse(resp), nil
	}
	resp := &GetEntitlementResponse{EntitlementID: id, Active: handle.CheckEntitlement(info, id)}
	if resp.Active {
		resp.ExpiresAt = info.Entitlements[id].ExpiresDate
	}
	return connect.NewResponse(resp), nil
}

func customerInfoResponse(handle *Handle, info *types.CustomerInfo) *CustomerInfoResponse {
	return &CustomerInfoResponse{
		CustomerInfo:  info,
		Premium:       handle.HasEntitlement(info),
		ExpiresAt:     handle.ExpirationDate(info),
		ManagementURL: handle.ManagementURL(info),
	}
}

func (h *Handler) toConnectError(ctx context.Context, method string, err error) error {
	switch {
	case errors.Is(err, types.ErrUnauthenticated):
		return connect.NewError(connect.CodeUnauthenticated, err)
	case errors.Is(err, types.ErrBillingNotConfigured):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, types.ErrPackageNotFound), errors.Is(err, types.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, types.ErrBadRequest):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	}
	h.logger.ErrorContext(ctx, "billing request failed", slog.String("method", method), slog.Any("error", err))
	return connect.NewError(connect.CodeUnavailable, err)
}
