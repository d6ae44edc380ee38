package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/FACorreiaa/peakheight-api/internal/types"
	"github.com/FACorreiaa/peakheight-api/pkg/interceptors"
)

type fakeProvider struct {
	GetUserFunc  func(ctx context.Context, token string) (*User, error)
	ExchangeFunc func(ctx context.Context, code, verifier string) (*Tokens, error)
	RefreshFunc  func(ctx context.Context, refresh string) (*Tokens, error)
	SignOutFunc  func(ctx context.Context, token string) error

	mu       sync.Mutex
	signOuts []string
}

func (f *fakeProvider) GetUser(ctx context.Context, token string) (*User, error) {
	if f.GetUserFunc != nil {
		return f.GetUserFunc(ctx, token)
	}
	if token == "" || token == "bad" {
		return nil, &APIError{Status: 401, Message: "invalid JWT"}
	}
	return &User{ID: "user-" + token, Email: token + "@example.com"}, nil
}

func (f *fakeProvider) ExchangeCodeForSession(ctx context.Context, code, verifier string) (*Tokens, error) {
	return f.ExchangeFunc(ctx, code, verifier)
}

func (f *fakeProvider) RefreshSession(ctx context.Context, refresh string) (*Tokens, error) {
	return f.RefreshFunc(ctx, refresh)
}

func (f *fakeProvider) SignOut(ctx context.Context, token string) error {
	f.mu.Lock()
	f.signOuts = append(f.signOuts, token)
	f.mu.Unlock()
	if f.SignOutFunc != nil {
		return f.SignOutFunc(ctx, token)
	}
	return nil
}

func (f *fakeProvider) AuthorizeURL(provider, redirectTo, challenge string) (string, error) {
	return NewGoTrueClient("https://proj.supabase.co", "anon", time.Second).AuthorizeURL(provider, redirectTo, challenge)
}

type fakePremium struct {
	mu     sync.Mutex
	active map[string]bool
	err    error
	delay  time.Duration
	calls  int
}

func (f *fakePremium) HasActiveSubscription(ctx context.Context, userID string) (bool, error) {
	f.mu.Lock()
	f.calls++
	delay, err, active := f.delay, f.err, f.active[userID]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return active, err
}

func (f *fakePremium) set(userID string, active bool, err error, delay time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active == nil {
		f.active = map[string]bool{}
	}
	f.active[userID] = active
	f.err = err
	f.delay = delay
}

type fakeProfiles struct {
	mu    sync.Mutex
	seeds []types.ProfileSeed
	err   error
}

func (f *fakeProfiles) EnsureProfile(_ context.Context, seed types.ProfileSeed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeds = append(f.seeds, seed)
	return f.err
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGate(verifier interceptors.TokenVerifier) (*Gate, *fakeProvider, *fakePremium, *fakeProfiles) {
	provider := &fakeProvider{}
	premium := &fakePremium{}
	profiles := &fakeProfiles{}
	return NewGate(provider, verifier, premium, profiles, newTestLogger()), provider, premium, profiles
}
