package onboarding

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/peakheight-api/internal/types"
	"github.com/FACorreiaa/peakheight-api/pkg/interceptors"
	"github.com/FACorreiaa/peakheight-api/pkg/rpc"
)

func setupHandlerTest() (*Handler, *MockUserWriter) {
	svc, _, users := setupServiceTest()
	return NewHandler(svc, svc.logger), users
}

func TestHandler_GetSteps(t *testing.T) {
	h, _ := setupHandlerTest()
	resp, err := h.GetSteps(context.Background(), connect.NewRequest(&GetStepsRequest{}))
	require.NoError(t, err)
	require.Len(t, resp.Msg.Steps, types.LastOnboardingStep)
	assert.Equal(t, types.StepIntro, resp.Msg.Steps[0].Kind)
	assert.Equal(t, types.StepComplete, resp.Msg.Steps[21].Kind)
}

func TestHandler_DraftFlow(t *testing.T) {
	h, _ := setupHandlerTest()
	ctx := context.Background()
	id := uuid.NewString()

	resp, err := h.UpdateDraft(ctx, connect.NewRequest(&UpdateDraftRequest{
		DraftID: id,
		Data:    map[string]any{"gender": "female"},
	}))
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Msg.Draft.Step)
	assert.Equal(t, 2, resp.Msg.CurrentStep.Number)
	assert.Nil(t, resp.Msg.Draft.UserID)

	resp, err = h.NextStep(ctx, connect.NewRequest(&DraftRequest{DraftID: id}))
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Msg.Draft.Step)

	resp, err = h.GoToStep(ctx, connect.NewRequest(&GoToStepRequest{DraftID: id, Step: 17}))
	require.NoError(t, err)
	assert.Equal(t, 17, resp.Msg.Draft.Step)
	assert.Equal(t, "female", resp.Msg.Draft.Data["gender"])

	_, err = h.GoToStep(ctx, connect.NewRequest(&GoToStepRequest{DraftID: id, Step: 99}))
	require.Error(t, err)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	resp, err = h.PrevStep(ctx, connect.NewRequest(&DraftRequest{DraftID: id}))
	require.NoError(t, err)
	assert.Equal(t, 16, resp.Msg.Draft.Step)

	reset, err := h.ResetDraft(ctx, connect.NewRequest(&DraftRequest{DraftID: id}))
	require.NoError(t, err)
	assert.True(t, reset.Msg.Reset)

	resp, err = h.GetDraft(ctx, connect.NewRequest(&DraftRequest{DraftID: id}))
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Msg.Draft.Step)
	assert.Empty(t, resp.Msg.Draft.Data)
}

func TestHandler_UpdateDraft_TagsSignedInUser(t *testing.T) {
	h, _ := setupHandlerTest()
	ctx := context.WithValue(context.Background(), interceptors.UserIDKey, "user-9")

	resp, err := h.UpdateDraft(ctx, connect.NewRequest(&UpdateDraftRequest{Data: map[string]any{"age": 19.0}}))
	require.NoError(t, err)
	require.NotNil(t, resp.Msg.Draft.UserID)
	assert.Equal(t, "user-9", *resp.Msg.Draft.UserID)
	assert.NotEqual(t, uuid.Nil, resp.Msg.Draft.ID)
}

func TestHandler_InvalidDraftID(t *testing.T) {
	h, _ := setupHandlerTest()
	_, err := h.GetDraft(context.Background(), connect.NewRequest(&DraftRequest{DraftID: "not-a-uuid"}))
	require.Error(t, err)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestHandler_CompleteOnboarding_RequiresAuth(t *testing.T) {
	h, users := setupHandlerTest()
	_, err := h.CompleteOnboarding(context.Background(), connect.NewRequest(&CompleteOnboardingRequest{}))
	require.Error(t, err)
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
	users.AssertNotCalled(t, "ApplyPatch", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandler_CompleteOnboarding(t *testing.T) {
	h, users := setupHandlerTest()
	ctx := context.WithValue(context.Background(), interceptors.UserIDKey, "user-1")

	users.On("ApplyPatch", mock.Anything, "user-1", mock.Anything).Return(nil)
	users.On("InitProgress", mock.Anything, "user-1", mock.Anything).Return(nil)
	users.On("InitPreferences", mock.Anything, "user-1").Return(nil)
	users.On("RecordJoin", mock.Anything, "user-1", mock.Anything).Return(nil)

	resp, err := h.CompleteOnboarding(ctx, connect.NewRequest(&CompleteOnboardingRequest{
		DraftID: uuid.NewString(),
		Data:    map[string]any{"gender": "male"},
	}))
	require.NoError(t, err)
	assert.True(t, resp.Msg.Success)
	assert.Contains(t, resp.Msg.Result.Columns, "gender")
}

func TestHandler_CompleteOnboarding_Failures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code connect.Code
	}{
		{"timeout", context.DeadlineExceeded, connect.CodeDeadlineExceeded},
		{"missing user", types.ErrNotFound, connect.CodeNotFound},
		{"store failure", errors.New("db down"), connect.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, users := setupHandlerTest()
			ctx := context.WithValue(context.Background(), interceptors.UserIDKey, "user-1")
			users.On("ApplyPatch", mock.Anything, "user-1", mock.Anything).Return(tt.err)

			_, err := h.CompleteOnboarding(ctx, connect.NewRequest(&CompleteOnboardingRequest{}))
			require.Error(t, err)
			assert.Equal(t, tt.code, connect.CodeOf(err))
		})
	}
}

func TestHandler_HasCompletedOnboarding(t *testing.T) {
	h, users := setupHandlerTest()

	_, err := h.HasCompletedOnboarding(context.Background(), connect.NewRequest(&HasCompletedOnboardingRequest{}))
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	users.On("HasCompletedOnboarding", mock.Anything, "user-1").Return(false, nil)
	ctx := context.WithValue(context.Background(), interceptors.UserIDKey, "user-1")
	resp, err := h.HasCompletedOnboarding(ctx, connect.NewRequest(&HasCompletedOnboardingRequest{}))
	require.NoError(t, err)
	assert.False(t, resp.Msg.Completed)
}

func TestNewServiceHandler_ServesJSON(t *testing.T) {
	h, _ := setupHandlerTest()
	mux := http.NewServeMux()
	mux.Handle(NewServiceHandler(h))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := connect.NewClient[GoToStepRequest, DraftResponse](
		srv.Client(),
		srv.URL+GoToStepProcedure,
		connect.WithCodec(rpc.JSONCodec{}),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.CallUnary(ctx, connect.NewRequest(&GoToStepRequest{Step: 5}))
	require.NoError(t, err)
	assert.Equal(t, 5, resp.Msg.Draft.Step)
	assert.Equal(t, "What is your height & weight?", resp.Msg.CurrentStep.Title)
}
