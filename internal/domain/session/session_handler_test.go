package session

import (
	"context"
	"errors"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/peakheight-api/internal/types"
	"github.com/FACorreiaa/peakheight-api/pkg/interceptors"
)

func setupSessionHandlerTest() (*Handler, *Gate, *fakeProvider, *fakePremium, *fakeProfiles) {
	g, provider, premium, profiles := newTestGate(nil)
	return NewHandler(g, provider, newTestLogger()), g, provider, premium, profiles
}

func authedContext(userID, email, token string) context.Context {
	ctx := context.WithValue(context.Background(), interceptors.UserIDKey, userID)
	ctx = context.WithValue(ctx, interceptors.UserEmailKey, email)
	return context.WithValue(ctx, interceptors.AccessTokenKey, token)
}

func TestSessionHandler_GetSession(t *testing.T) {
	h, _, _, premium, _ := setupSessionHandlerTest()

	_, err := h.GetSession(context.Background(), connect.NewRequest(&GetSessionRequest{}))
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	premium.set("user-tok", true, nil, 0)
	resp, err := h.GetSession(authedContext("user-tok", "tok@example.com", "tok"), connect.NewRequest(&GetSessionRequest{}))
	require.NoError(t, err)
	assert.Equal(t, "user-tok", resp.Msg.User.ID)
	assert.True(t, resp.Msg.Premium)

	_, err = h.GetSession(authedContext("user-bad", "", "bad"), connect.NewRequest(&GetSessionRequest{}))
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
}

func TestSessionHandler_EnsureProfile(t *testing.T) {
	h, _, _, _, profiles := setupSessionHandlerTest()

	_, err := h.EnsureProfile(context.Background(), connect.NewRequest(&EnsureProfileRequest{Name: "Sam"}))
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	resp, err := h.EnsureProfile(authedContext("u1", "sam@example.com", "tok"), connect.NewRequest(&EnsureProfileRequest{Name: "Sam Lee"}))
	require.NoError(t, err)
	assert.True(t, resp.Msg.Success)
	require.Len(t, profiles.seeds, 1)
	assert.Equal(t, types.ProfileSeed{ID: "u1", Email: "sam@example.com", DisplayName: "Sam Lee", FirstName: "Sam", LastName: "Lee"}, profiles.seeds[0])

	profiles.err = errors.New("db down")
	_, err = h.EnsureProfile(authedContext("u1", "sam@example.com", "tok"), connect.NewRequest(&EnsureProfileRequest{}))
	assert.Equal(t, connect.CodeInternal, connect.CodeOf(err))
}

func TestSessionHandler_SignOut(t *testing.T) {
	h, g, provider, _, _ := setupSessionHandlerTest()
	g.cache.SetDefault("u1", true)
	provider.SignOutFunc = func(context.Context, string) error { return errors.New("network") }

	resp, err := h.SignOut(authedContext("u1", "", "tok"), connect.NewRequest(&SignOutRequest{}))
	require.NoError(t, err)
	assert.True(t, resp.Msg.Success)
	assert.Equal(t, []string{"tok"}, provider.signOuts)
	assert.False(t, g.cachedPremium("u1"))
}

func TestSessionHandler_RefreshSession(t *testing.T) {
	h, g, provider, premium, _ := setupSessionHandlerTest()

	_, err := h.RefreshSession(context.Background(), connect.NewRequest(&RefreshSessionRequest{}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	premium.set("u1", true, nil, 0)
	provider.RefreshFunc = func(context.Context, string) (*Tokens, error) {
		return &Tokens{AccessToken: "new", RefreshToken: "r2", User: &User{ID: "u1"}}, nil
	}
	resp, err := h.RefreshSession(context.Background(), connect.NewRequest(&RefreshSessionRequest{RefreshToken: "r1"}))
	require.NoError(t, err)
	assert.Equal(t, "new", resp.Msg.AccessToken)
	assert.True(t, g.cachedPremium("u1"), "refresh re-evaluates premium")

	provider.RefreshFunc = func(context.Context, string) (*Tokens, error) {
		return nil, &APIError{Status: 400, Message: "Invalid Refresh Token"}
	}
	_, err = h.RefreshSession(context.Background(), connect.NewRequest(&RefreshSessionRequest{RefreshToken: "r1"}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}
