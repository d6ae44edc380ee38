package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"

	"github.com/FACorreiaa/peakheight-api/internal/types"
	"github.com/FACorreiaa/peakheight-api/pkg/interceptors"
	"github.com/FACorreiaa/peakheight-api/pkg/rpc"
)

const ServiceName = "peakheight.dashboard.v1.DashboardService"

const GetDashboardProcedure = "/" + ServiceName + "/GetDashboard"

type GetDashboardRequest struct{}

type Handler struct {
	svc    *Service
	logger *slog.Logger
}

func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func NewServiceHandler(h *Handler, opts ...connect.HandlerOption) (string, http.Handler) {
	svc := rpc.NewService(ServiceName, opts...)
	rpc.Unary(svc, "GetDashboard", h.GetDashboard)
	return svc.Handler()
}

func (h *Handler) GetDashboard(
	ctx context.Context,
	_ *connect.Request[GetDashboardRequest],
) (*connect.Response[Dashboard], error) {
	userID, ok := interceptors.GetUserIDFromContext(ctx)
	if !ok {
		return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("authentication required"))
	}
	d, err := h.svc.GetDashboard(ctx, userID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			h.logger.WarnContext(ctx, "Dashboard requested without a profile row", slog.String("userID", userID))
			return nil, connect.NewError(connect.CodeNotFound, err)
		}
		return nil, connect.NewError(connect.CodeInternal, errors.New("failed to load dashboard"))
	}
	return connect.NewResponse(d), nil
}
