package onboarding

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/FACorreiaa/peakheight-api/internal/types"
)

// DraftStore persists onboarding drafts between requests.
type DraftStore interface {
	// Get returns types.ErrNotFound when no draft is stored under id.
	Get(ctx context.Context, id uuid.UUID) (*types.OnboardingDraft, error)
	Save(ctx context.Context, draft *types.OnboardingDraft) error
	Delete(ctx context.Context, id uuid.UUID) error
}

var _ DraftStore = (*MemoryDraftStore)(nil)

// MemoryDraftStore keeps drafts in a TTL cache. Drafts are copied on the way
// in and out so callers never share maps with the cache.
type MemoryDraftStore struct {
	cache *cache.Cache
}

func NewMemoryDraftStore(ttl time.Duration) *MemoryDraftStore {
	return &MemoryDraftStore{cache: cache.New(ttl, ttl/4)}
}

func (s *MemoryDraftStore) Get(_ context.Context, id uuid.UUID) (*types.OnboardingDraft, error) {
	v, ok := s.cache.Get(id.String())
	if !ok {
		return nil, fmt.Errorf("draft %s: %w", id, types.ErrNotFound)
	}
	return cloneDraft(v.(*types.OnboardingDraft)), nil
}

func (s *MemoryDraftStore) Save(_ context.Context, draft *types.OnboardingDraft) error {
	s.cache.Set(draft.ID.String(), cloneDraft(draft), cache.DefaultExpiration)
	return nil
}

func (s *MemoryDraftStore) Delete(_ context.Context, id uuid.UUID) error {
	s.cache.Delete(id.String())
	return nil
}

func cloneDraft(d *types.OnboardingDraft) *types.OnboardingDraft {
	out := *d
	out.Data = maps.Clone(d.Data)
	if d.UserID != nil {
		uid := *d.UserID
		out.UserID = &uid
	}
	return &out
}
