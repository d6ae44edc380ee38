package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/FACorreiaa/peakheight-api/internal/types"
	"github.com/FACorreiaa/peakheight-api/pkg/interceptors"
)

// DefaultLoadTimeout bounds how long a session load may wait on the premium lookup.
const DefaultLoadTimeout = 8 * time.Second

type AuthEvent string

const (
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
)

// Listener is told about auth state changes of a user.
type Listener func(ctx context.Context, event AuthEvent, userID string)

type PremiumReader interface {
	HasActiveSubscription(ctx context.Context, userID string) (bool, error)
}

type ProfileWriter interface {
	EnsureProfile(ctx context.Context, seed types.ProfileSeed) error
}

// State is what a page needs to decide where the user may go.
type State struct {
	User    *User `json:"user"`
	Premium bool  `json:"premium"`
	Loading bool  `json:"loading"`
	// TimedOut is set when the premium lookup did not finish in time and the
	// cached value was used.
	TimedOut bool `json:"timedOut,omitempty"`
}

// Gate resolves sessions and tracks premium state per user.
type Gate struct {
	logger      *slog.Logger
	provider    AuthProvider
	verifier    interceptors.TokenVerifier
	premium     PremiumReader
	profiles    ProfileWriter
	cache       *cache.Cache
	loadTimeout time.Duration

	mu        sync.RWMutex
	listeners []Listener
}

// NewGate builds a gate. verifier may be nil, in which case every token is
// checked against the provider.
func NewGate(provider AuthProvider, verifier interceptors.TokenVerifier, premium PremiumReader, profiles ProfileWriter, logger *slog.Logger) *Gate {
	return &Gate{
		logger:      logger,
		provider:    provider,
		verifier:    verifier,
		premium:     premium,
		profiles:    profiles,
		cache:       cache.New(24*time.Hour, time.Hour),
		loadTimeout: DefaultLoadTimeout,
	}
}

// Subscribe registers l for every subsequent auth event.
func (g *Gate) Subscribe(l Listener) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, l)
}

// Load resolves the user behind accessToken and their premium flag.
func (g *Gate) Load(ctx context.Context, accessToken string) (*State, error) {
	ctx, span := otel.Tracer("SessionGate").Start(ctx, "Load")
	defer span.End()

	user, err := g.resolveUser(ctx, accessToken)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve user failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("enduser.id", user.ID))

	premium, timedOut := g.evaluatePremium(ctx, user.ID)
	return &State{User: user, Premium: premium, Loading: false, TimedOut: timedOut}, nil
}

func (g *Gate) resolveUser(ctx context.Context, accessToken string) (*User, error) {
	if accessToken == "" {
		return nil, types.ErrUnauthenticated
	}
	if g.verifier != nil {
		claims, err := g.verifier.Verify(ctx, accessToken)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrUnauthenticated, err)
		}
		return &User{ID: claims.Subject, Email: claims.Email, UserMetadata: claims.UserMetadata}, nil
	}
	user, err := g.provider.GetUser(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session user: %w", err)
	}
	return user, nil
}

// evaluatePremium refreshes the cached premium flag. When the lookup fails
// or outlives the load timeout the previous value (false if none) is kept.
func (g *Gate) evaluatePremium(ctx context.Context, userID string) (bool, bool) {
	l := g.logger.With(slog.String("method", "evaluatePremium"), slog.String("userID", userID))

	ctx, cancel := context.WithTimeout(ctx, g.loadTimeout)
	defer cancel()

	type result struct {
		active bool
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		active, err := g.premium.HasActiveSubscription(ctx, userID)
		ch <- result{active: active, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			l.ErrorContext(ctx, "Error checking premium status", slog.Any("error", r.err))
			return g.cachedPremium(userID), errors.Is(r.err, context.DeadlineExceeded)
		}
		g.cache.Set(userID, r.active, cache.DefaultExpiration)
		return r.active, false
	case <-ctx.Done():
		l.WarnContext(ctx, "Session load timed out, using cached premium state",
			slog.Duration("timeout", g.loadTimeout))
		return g.cachedPremium(userID), true
	}
}

func (g *Gate) cachedPremium(userID string) bool {
	if v, ok := g.cache.Get(userID); ok {
		return v.(bool)
	}
	return false
}

// Notify applies an auth state change and fans it out to listeners.
func (g *Gate) Notify(ctx context.Context, event AuthEvent, userID string) {
	if userID == "" {
		return
	}
	switch event {
	case EventSignedIn, EventTokenRefreshed:
		g.evaluatePremium(ctx, userID)
	case EventSignedOut:
		g.cache.Delete(userID)
	}

	g.mu.RLock()
	listeners := append([]Listener(nil), g.listeners...)
	g.mu.RUnlock()
	for _, l := range listeners {
		l(ctx, event, userID)
	}
}

// SignOut revokes the provider session and clears local state. The local
// state is cleared even when the provider call fails.
func (g *Gate) SignOut(ctx context.Context, accessToken, userID string) error {
	var err error
	if accessToken != "" {
		if err = g.provider.SignOut(ctx, accessToken); err != nil {
			g.logger.WarnContext(ctx, "Provider sign-out failed", slog.String("userID", userID), slog.Any("error", err))
		}
	}
	g.Notify(ctx, EventSignedOut, userID)
	return err
}

// EnsureProfile writes the minimal profile row after an email sign-up.
func (g *Gate) EnsureProfile(ctx context.Context, user *User, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		name = user.MetadataString("display_name", "full_name", "name")
	}
	first, last, _ := strings.Cut(name, " ")
	return g.profiles.EnsureProfile(ctx, types.ProfileSeed{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: name,
		FirstName:   first,
		LastName:    strings.TrimSpace(last),
	})
}

// ProfileFromOAuth builds the profile seed the OAuth callback upserts.
func ProfileFromOAuth(user *User) types.ProfileSeed {
	return types.ProfileSeed{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.MetadataString("full_name", "name"),
		FirstName:   user.MetadataString("given_name"),
		LastName:    user.MetadataString("family_name"),
		AvatarURL:   user.MetadataString("avatar_url", "picture"),
	}
}
