package session

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

const ServiceName = "peakheight.session.v1.SessionService"

const (
	GetSessionProcedure     = "/" + ServiceName + "/GetSession"
	EnsureProfileProcedure  = "/" + ServiceName + "/EnsureProfile"
	SignOutProcedure        = "/" + ServiceName + "/SignOut"
	RefreshSessionProcedure = "/" + ServiceName + "/RefreshSession"
)

var PublicProcedures = []string{RefreshSessionProcedure}

type GetSessionRequest struct{}

type EnsureProfileRequest struct {
	Name string `json:"name,omitempty"`
}

type EnsureProfileResponse struct {
	Success bool `json:"success"`
}

type SignOutRequest struct{}

type SignOutResponse struct {
	Success bool `json:"success"`
}

type RefreshSessionRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Handler implements the SessionService RPCs.
type Handler struct {
	gate     *Gate
	provider AuthProvider
	logger   *slog.Logger
}

func NewHandler(gate *Gate, provider AuthProvider, logger *slog.Logger) *Handler {
	return &Handler{gate: gate, provider: provider, logger: logger}
}

func NewServiceHandler(h *Handler, opts ...connect.HandlerOption) (string, http.Handler) {
	svc := rpc.NewService(ServiceName, opts...)
	rpc.Unary(svc, "GetSession", h.GetSession)
	rpc.Unary(svc, "EnsureProfile", h.EnsureProfile)
	rpc.Unary(svc, "SignOut", h.SignOut)
	rpc.Unary(svc, "RefreshSession", h.RefreshSession)
	return svc.Handler()
}

func (h *Handler) GetSession(
	ctx context.Context,
	_ *connect.Request[GetSessionRequest],
) (*connect.Response[State], error) {
	token, ok := interceptors.GetAccessTokenFromContext(ctx)
	if !ok {
		return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("authentication required"))
	}
	state, err := h.gate.Load(ctx, token)
	if err != nil {
		return nil, h.toConnectError(ctx, "GetSession", err)
	}
	return connect.NewResponse(state), nil
}

func (h *Handler) EnsureProfile(
	ctx context.Context,
	req *connect.Request[EnsureProfileRequest],
) (*connect.Response[EnsureProfileResponse], error) {
	userID, ok := interceptors.GetUserIDFromContext(ctx)
	if !ok {
		return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("authentication required"))
	}
	email, _ := interceptors.GetUserEmailFromContext(ctx)

	if err := h.gate.EnsureProfile(ctx, &User{ID: userID, Email: email}, req.Msg.Name); err != nil {
		return nil, h.toConnectError(ctx, "EnsureProfile", err)
	}
	return connect.NewResponse(&EnsureProfileResponse{Success: true}), nil
}

func (h *Handler) SignOut(
	ctx context.Context,
	_ *connect.Request[SignOutRequest],
) (*connect.Response[SignOutResponse], error) {
	userID, ok := interceptors.GetUserIDFromContext(ctx)
	if !ok {
		return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("authentication required"))
	}
	token, _ := interceptors.GetAccessTokenFromContext(ctx)

	// Local state is cleared either way; a provider failure is only logged.
	_ = h.gate.SignOut(ctx, token, userID)
	return connect.NewResponse(&SignOutResponse{Success: true}), nil
}

func (h *Handler) RefreshSession(
	ctx context.Context,
	req *connect.Request[RefreshSessionRequest],
) (*connect.Response[Tokens], error) {
	if req.Msg.RefreshToken == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("refresh_token is required"))
	}
	tokens, err := h.provider.RefreshSession(ctx, req.Msg.RefreshToken)
	if err != nil {
		return nil, h.toConnectError(ctx, "RefreshSession", err)
	}
	if tokens.User != nil {
		h.gate.Notify(ctx, EventTokenRefreshed, tokens.User.ID)
	}
	return connect.NewResponse(tokens), nil
}

func (h *Handler) toConnectError(ctx context.Context, method string, err error) error {
	switch {
	case errors.Is(err, types.ErrUnauthenticated):
		return connect.NewError(connect.CodeUnauthenticated, err)
	case errors.Is(err, types.ErrBadRequest):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, types.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	}
	h.logger.ErrorContext(ctx, "session request failed", slog.String("method", method), slog.Any("error", err))
	return connect.NewError(connect.CodeInternal, err)
}
