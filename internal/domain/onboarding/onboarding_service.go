package onboarding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/FACorreiaa/peakheight-api/internal/types"
)

// UserWriter is the slice of the user repository onboarding completion needs.
type UserWriter interface {
	ApplyPatch(ctx context.Context, userID string, patch types.UserPatch) error
	HasCompletedOnboarding(ctx context.Context, userID string) (bool, error)
	InitProgress(ctx context.Context, userID string, start time.Time) error
	InitPreferences(ctx context.Context, userID string) error
	RecordJoin(ctx context.Context, userID string, joinedAt time.Time) error
}

var _ Service = (*ServiceImpl)(nil)

type Service interface {
	// GetDraft returns the stored draft, or a fresh one when id is unknown or nil.
	GetDraft(ctx context.Context, id uuid.UUID) (*types.OnboardingDraft, error)
	UpdateDraft(ctx context.Context, id uuid.UUID, userID string, partial map[string]any) (*types.OnboardingDraft, error)
	NextStep(ctx context.Context, id uuid.UUID) (*types.OnboardingDraft, error)
	PrevStep(ctx context.Context, id uuid.UUID) (*types.OnboardingDraft, error)
	// GoToStep returns types.ErrStepOutOfRange and leaves the draft unchanged for steps outside 1..22.
	GoToStep(ctx context.Context, id uuid.UUID, step int) (*types.OnboardingDraft, error)
	ResetDraft(ctx context.Context, id uuid.UUID) error

	// CompleteOnboarding persists the draft onto the user row. Concurrent calls
	// for the same user share a single save.
	CompleteOnboarding(ctx context.Context, userID string, draftID uuid.UUID, partial map[string]any) (*CompletionResult, error)
	HasCompletedOnboarding(ctx context.Context, userID string) (bool, error)
}

type CompletionResult struct {
	UserID      string    `json:"user_id"`
	Columns     []string  `json:"columns"`
	CompletedAt time.Time `json:"completed_at"`
}

type ServiceImpl struct {
	logger      *slog.Logger
	store       DraftStore
	users       UserWriter
	saveTimeout time.Duration
	saves       singleflight.Group
	now         func() time.Time
}

func NewService(store DraftStore, users UserWriter, saveTimeout time.Duration, logger *slog.Logger) *ServiceImpl {
	if saveTimeout <= 0 {
		saveTimeout = 10 * time.Second
	}
	return &ServiceImpl{
		logger:      logger,
		store:       store,
		users:       users,
		saveTimeout: saveTimeout,
		now:         time.Now,
	}
}

func (s *ServiceImpl) load(ctx context.Context, id uuid.UUID) (*types.OnboardingDraft, error) {
	if id == uuid.Nil {
		return types.NewOnboardingDraft(uuid.New(), s.now()), nil
	}
	draft, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return types.NewOnboardingDraft(id, s.now()), nil
		}
		return nil, err
	}
	draft.Normalize()
	return draft, nil
}

func (s *ServiceImpl) mutate(ctx context.Context, method string, id uuid.UUID, fn func(d *types.OnboardingDraft) error) (*types.OnboardingDraft, error) {
	ctx, span := otel.Tracer("OnboardingService").Start(ctx, method, trace.WithAttributes(
		attribute.String("onboarding.draft_id", id.String()),
	))
	defer span.End()

	draft, err := s.load(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load draft failed")
		return nil, err
	}
	if err := fn(draft); err != nil {
		return nil, err
	}
	draft.UpdatedAt = s.now()
	if err := s.store.Save(ctx, draft); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save draft failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("onboarding.step", draft.Step))
	return draft, nil
}

func (s *ServiceImpl) GetDraft(ctx context.Context, id uuid.UUID) (*types.OnboardingDraft, error) {
	return s.load(ctx, id)
}

func (s *ServiceImpl) UpdateDraft(ctx context.Context, id uuid.UUID, userID string, partial map[string]any) (*types.OnboardingDraft, error) {
	return s.mutate(ctx, "UpdateDraft", id, func(d *types.OnboardingDraft) error {
		d.Merge(partial)
		if userID != "" {
			d.UserID = &userID
		}
		return nil
	})
}

func (s *ServiceImpl) NextStep(ctx context.Context, id uuid.UUID) (*types.OnboardingDraft, error) {
	return s.mutate(ctx, "NextStep", id, func(d *types.OnboardingDraft) error {
		d.Next()
		return nil
	})
}

func (s *ServiceImpl) PrevStep(ctx context.Context, id uuid.UUID) (*types.OnboardingDraft, error) {
	return s.mutate(ctx, "PrevStep", id, func(d *types.OnboardingDraft) error {
		d.Prev()
		return nil
	})
}

func (s *ServiceImpl) GoToStep(ctx context.Context, id uuid.UUID, step int) (*types.OnboardingDraft, error) {
	return s.mutate(ctx, "GoToStep", id, func(d *types.OnboardingDraft) error {
		return d.GoTo(step)
	})
}

func (s *ServiceImpl) ResetDraft(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	return s.store.Delete(ctx, id)
}

func (s *ServiceImpl) HasCompletedOnboarding(ctx context.Context, userID string) (bool, error) {
	return s.users.HasCompletedOnboarding(ctx, userID)
}

func (s *ServiceImpl) CompleteOnboarding(ctx context.Context, userID string, draftID uuid.UUID, partial map[string]any) (*CompletionResult, error) {
	if userID == "" {
		return nil, types.ErrUnauthenticated
	}

	// Calls for the same user and draft share one save; a joined call's own
	// partial is not applied. The save outlives any single caller.
	key := userID + "/" + draftID.String()
	v, err, shared := s.saves.Do(key, func() (any, error) {
		return s.complete(context.WithoutCancel(ctx), userID, draftID, partial)
	})
	if shared {
		s.logger.DebugContext(ctx, "Joined in-flight onboarding save", slog.String("userID", userID))
	}
	if err != nil {
		return nil, err
	}
	return v.(*CompletionResult), nil
}

func (s *ServiceImpl) complete(ctx context.Context, userID string, draftID uuid.UUID, partial map[string]any) (*CompletionResult, error) {
	ctx, span := otel.Tracer("OnboardingService").Start(ctx, "CompleteOnboarding", trace.WithAttributes(
		attribute.String("enduser.id", userID),
		attribute.String("onboarding.draft_id", draftID.String()),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "CompleteOnboarding"), slog.String("userID", userID))

	ctx, cancel := context.WithTimeout(ctx, s.saveTimeout)
	defer cancel()

	draft, err := s.load(ctx, draftID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load draft failed")
		return nil, fmt.Errorf("failed to load draft: %w", err)
	}
	draft.Merge(partial)

	now := s.now()
	patch := MapDraft(draft.Data, now)

	if err := s.users.ApplyPatch(ctx, userID, patch); err != nil {
		l.ErrorContext(ctx, "Failed to save onboarding answers", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "user update failed")
		return nil, fmt.Errorf("failed to save onboarding answers: %w", err)
	}

	// Side rows are best effort; the answers are already saved.
	if err := s.users.InitProgress(ctx, userID, now); err != nil {
		l.WarnContext(ctx, "Failed to initialise progress", slog.Any("error", err))
	}
	if err := s.users.InitPreferences(ctx, userID); err != nil {
		l.WarnContext(ctx, "Failed to initialise preferences", slog.Any("error", err))
	}
	if err := s.users.RecordJoin(ctx, userID, now); err != nil {
		l.WarnContext(ctx, "Failed to record join event", slog.Any("error", err))
	}

	if draftID != uuid.Nil {
		if err := s.store.Delete(ctx, draftID); err != nil {
			l.WarnContext(ctx, "Failed to clear onboarding draft", slog.Any("error", err))
		}
	}

	cols := make([]string, 0, len(patch))
	for k := range patch {
		cols = append(cols, k)
	}
	slices.Sort(cols)

	l.InfoContext(ctx, "Onboarding completed", slog.Int("columns", len(cols)))
	span.SetStatus(codes.Ok, "Onboarding completed")
	return &CompletionResult{UserID: userID, Columns: cols, CompletedAt: now}, nil
}
