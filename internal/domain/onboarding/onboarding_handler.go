package onboarding

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/FACorreiaa/peakheight-api/internal/types"
	"github.com/FACorreiaa/peakheight-api/pkg/interceptors"
	"github.com/FACorreiaa/peakheight-api/pkg/rpc"
)

const ServiceName = "peakheight.onboarding.v1.OnboardingService"

// Procedure paths, laid out the way generated connect code names them.
const (
	GetStepsProcedure               = "/" + ServiceName + "/GetSteps"
	GetDraftProcedure               = "/" + ServiceName + "/GetDraft"
	UpdateDraftProcedure            = "/" + ServiceName + "/UpdateDraft"
	NextStepProcedure               = "/" + ServiceName + "/NextStep"
	PrevStepProcedure               = "/" + ServiceName + "/PrevStep"
	GoToStepProcedure               = "/" + ServiceName + "/GoToStep"
	ResetDraftProcedure             = "/" + ServiceName + "/ResetDraft"
	CompleteOnboardingProcedure     = "/" + ServiceName + "/CompleteOnboarding"
	HasCompletedOnboardingProcedure = "/" + ServiceName + "/HasCompletedOnboarding"
)

// PublicProcedures can be called before sign-in; the quiz runs anonymously.
var PublicProcedures = []string{
	GetStepsProcedure,
	GetDraftProcedure,
	UpdateDraftProcedure,
	NextStepProcedure,
	PrevStepProcedure,
	GoToStepProcedure,
	ResetDraftProcedure,
}

type GetStepsRequest struct{}

type GetStepsResponse struct {
	Steps []types.OnboardingStep `json:"steps"`
}

type DraftRequest struct {
	DraftID string `json:"draftId,omitempty"`
}

type UpdateDraftRequest struct {
	DraftID string         `json:"draftId,omitempty"`
	Data    map[string]any `json:"data"`
}

type GoToStepRequest struct {
	DraftID string `json:"draftId,omitempty"`
	Step    int    `json:"step"`
}

type DraftResponse struct {
	Draft       *types.OnboardingDraft `json:"draft"`
	CurrentStep types.OnboardingStep   `json:"currentStep"`
}

type ResetDraftResponse struct {
	Reset bool `json:"reset"`
}

type CompleteOnboardingRequest struct {
	DraftID string         `json:"draftId,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

type CompleteOnboardingResponse struct {
	Success bool              `json:"success"`
	Result  *CompletionResult `json:"result,omitempty"`
}

type HasCompletedOnboardingRequest struct{}

type HasCompletedOnboardingResponse struct {
	Completed bool `json:"completed"`
}

// Handler implements the OnboardingService RPCs.
type Handler struct {
	svc    Service
	logger *slog.Logger
}

func NewHandler(svc Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// NewServiceHandler mounts h under the OnboardingService path.
func NewServiceHandler(h *Handler, opts ...connect.HandlerOption) (string, http.Handler) {
	svc := rpc.NewService(ServiceName, opts...)
	rpc.Unary(svc, "GetSteps", h.GetSteps)
	rpc.Unary(svc, "GetDraft", h.GetDraft)
	rpc.Unary(svc, "UpdateDraft", h.UpdateDraft)
	rpc.Unary(svc, "NextStep", h.NextStep)
	rpc.Unary(svc, "PrevStep", h.PrevStep)
	rpc.Unary(svc, "GoToStep", h.GoToStep)
	rpc.Unary(svc, "ResetDraft", h.ResetDraft)
	rpc.Unary(svc, "CompleteOnboarding", h.CompleteOnboarding)
	rpc.Unary(svc, "HasCompletedOnboarding", h.HasCompletedOnboarding)
	return svc.Handler()
}

func (h *Handler) GetSteps(
	_ context.Context,
	_ *connect.Request[GetStepsRequest],
) (*connect.Response[GetStepsResponse], error) {
	return connect.NewResponse(&GetStepsResponse{Steps: Steps()}), nil
}

func (h *Handler) GetDraft(
	ctx context.Context,
	req *connect.Request[DraftRequest],
) (*connect.Response[DraftResponse], error) {
	id, err := parseDraftID(req.Msg.DraftID)
	if err != nil {
		return nil, err
	}
	draft, err := h.svc.GetDraft(ctx, id)
	return h.draftResponse(ctx, "GetDraft", draft, err)
}

func (h *Handler) UpdateDraft(
	ctx context.Context,
	req *connect.Request[UpdateDraftRequest],
) (*connect.Response[DraftResponse], error) {
	id, err := parseDraftID(req.Msg.DraftID)
	if err != nil {
		return nil, err
	}
	userID, _ := interceptors.GetUserIDFromContext(ctx)
	draft, err := h.svc.UpdateDraft(ctx, id, userID, req.Msg.Data)
	return h.draftResponse(ctx, "UpdateDraft", draft, err)
}

func (h *Handler) NextStep(
	ctx context.Context,
	req *connect.Request[DraftRequest],
) (*connect.Response[DraftResponse], error) {
	id, err := parseDraftID(req.Msg.DraftID)
	if err != nil {
		return nil, err
	}
	draft, err := h.svc.NextStep(ctx, id)
	return h.draftResponse(ctx, "NextStep", draft, err)
}

func (h *Handler) PrevStep(
	ctx context.Context,
	req *connect.Request[DraftRequest],
) (*connect.Response[DraftResponse], error) {
	id, err := parseDraftID(req.Msg.DraftID)
	if err != nil {
		return nil, err
	}
	draft, err := h.svc.PrevStep(ctx, id)
	return h.draftResponse(ctx, "PrevStep", draft, err)
}

func (h *Handler) GoToStep(
	ctx context.Context,
	req *connect.Request[GoToStepRequest],
) (*connect.Response[DraftResponse], error) {
	id, err := parseDraftID(req.Msg.DraftID)
	if err != nil {
		return nil, err
	}
	draft, err := h.svc.GoToStep(ctx, id, req.Msg.Step)
	return h.draftResponse(ctx, "GoToStep", draft, err)
}

func (h *Handler) ResetDraft(
	ctx context.Context,
	req *connect.Request[DraftRequest],
) (*connect.Response[ResetDraftResponse], error) {
	id, err := parseDraftID(req.Msg.DraftID)
	if err != nil {
		return nil, err
	}
	if err := h.svc.ResetDraft(ctx, id); err != nil {
		return nil, h.toConnectError(ctx, "ResetDraft", err)
	}
	return connect.NewResponse(&ResetDraftResponse{Reset: true}), nil
}

func (h *Handler) CompleteOnboarding(
	ctx context.Context,
	req *connect.Request[CompleteOnboardingRequest],
) (*connect.Response[CompleteOnboardingResponse], error) {
	userID, ok := interceptors.GetUserIDFromContext(ctx)
	if !ok {
		return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("authentication required"))
	}
	id, err := parseDraftID(req.Msg.DraftID)
	if err != nil {
		return nil, err
	}

	result, err := h.svc.CompleteOnboarding(ctx, userID, id, req.Msg.Data)
	if err != nil {
		return nil, h.toConnectError(ctx, "CompleteOnboarding", err)
	}
	return connect.NewResponse(&CompleteOnboardingResponse{Success: true, Result: result}), nil
}

func (h *Handler) HasCompletedOnboarding(
	ctx context.Context,
	_ *connect.Request[HasCompletedOnboardingRequest],
) (*connect.Response[HasCompletedOnboardingResponse], error) {
	userID, ok := interceptors.GetUserIDFromContext(ctx)
	if !ok {
		return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("authentication required"))
	}
	done, err := h.svc.HasCompletedOnboarding(ctx, userID)
	if err != nil {
		return nil, h.toConnectError(ctx, "HasCompletedOnboarding", err)
	}
	return connect.NewResponse(&HasCompletedOnboardingResponse{Completed: done}), nil
}

func (h *Handler) draftResponse(ctx context.Context, method string, draft *types.OnboardingDraft, err error) (*connect.Response[DraftResponse], error) {
	if err != nil {
		return nil, h.toConnectError(ctx, method, err)
	}
	current, err := StepAt(draft.Step)
	if err != nil {
		return nil, h.toConnectError(ctx, method, err)
	}
	return connect.NewResponse(&DraftResponse{Draft: draft, CurrentStep: current}), nil
}

func (h *Handler) toConnectError(ctx context.Context, method string, err error) error {
	switch {
	case errors.Is(err, types.ErrStepOutOfRange), errors.Is(err, types.ErrBadRequest):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, types.ErrUnauthenticated):
		return connect.NewError(connect.CodeUnauthenticated, err)
	case errors.Is(err, types.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, errors.New("saving onboarding answers timed out"))
	}
	h.logger.ErrorContext(ctx, "onboarding request failed", slog.String("method", method), slog.Any("error", err))
	return connect.NewError(connect.CodeInternal, err)
}

func parseDraftID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, connect.NewError(connect.CodeInvalidArgument, errors.New("invalid draft_id"))
	}
	return id, nil
}
