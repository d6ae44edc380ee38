package billing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/FACorreiaa/peakheight-api/internal/domain/session"
	"github.com/FACorreiaa/peakheight-api/internal/types"
)

// handleIdleTTL bounds how long an unused handle is kept. Bearer-token
// clients never sign out through the cookie flow, so idle expiry is what
// releases their handles.
const handleIdleTTL = 30 * time.Minute

// Registry hands out one billing Handle per signed-in user.
type Registry struct {
	client   Client
	settings Settings
	logger   *slog.Logger

	mu      sync.Mutex
	handles *cache.Cache
}

// NewRegistry returns a registry. A nil client means billing is not configured
// and every ForUser call fails with ErrBillingNotConfigured.
func NewRegistry(client Client, settings Settings, logger *slog.Logger) *Registry {
	return newRegistry(client, settings, handleIdleTTL, logger)
}

func newRegistry(client Client, settings Settings, ttl time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		client:   client,
		settings: settings,
		logger:   logger,
		handles:  cache.New(ttl, ttl/2),
	}
}

// ForUser returns the handle of userID, creating it on first use. Every call
// pushes the handle's expiry out by the idle TTL.
func (r *Registry) ForUser(userID string) (*Handle, error) {
	if userID == "" {
		return nil, types.ErrUnauthenticated
	}
	if r.client == nil {
		return nil, types.ErrBillingNotConfigured
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.handles.Get(userID); ok {
		h := v.(*Handle)
		r.handles.SetDefault(userID, h)
		return h, nil
	}
	h := newHandle(userID, r.client, r.settings, r.logger)
	r.handles.SetDefault(userID, h)
	r.logger.Debug("Billing handle initialized", slog.String("userID", userID))
	return h, nil
}

// Release drops the handle of userID.
func (r *Registry) Release(userID string) {
	r.handles.Delete(userID)
}

// Len is the number of cached handles, including expired ones not yet swept.
func (r *Registry) Len() int {
	return r.handles.ItemCount()
}

var _ session.Listener = (*Registry)(nil).OnAuthEvent

// OnAuthEvent releases the handle when the user signs out.
func (r *Registry) OnAuthEvent(_ context.Context, event session.AuthEvent, userID string) {
	if event == session.EventSignedOut {
		r.Release(userID)
	}
}
