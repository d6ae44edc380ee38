package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/peakheight-api/internal/types"
)

var _ UserService = (*UserServiceImpl)(nil)

// UserService exposes the user reads and writes used outside onboarding.
type UserService interface {
	GetProfile(ctx context.Context, userID string) (*types.UserProfile, error)
	HasCompletedOnboarding(ctx context.Context, userID string) (bool, error)
	// HasActiveSubscription evaluates the premium flag against its expiry.
	HasActiveSubscription(ctx context.Context, userID string) (bool, error)
	EnsureProfile(ctx context.Context, seed types.ProfileSeed) error
}

type UserServiceImpl struct {
	logger *slog.Logger
	repo   UserRepo
	now    func() time.Time
}

func NewUserService(repo UserRepo, logger *slog.Logger) *UserServiceImpl {
	return &UserServiceImpl{
		logger: logger,
		repo:   repo,
		now:    time.Now,
	}
}

func (s *UserServiceImpl) GetProfile(ctx context.Context, userID string) (*types.UserProfile, error) {
	ctx, span := otel.Tracer("UserService").Start(ctx, "GetProfile", trace.WithAttributes(
		attribute.String("enduser.id", userID),
	))
	defer span.End()

	return s.repo.GetProfile(ctx, userID)
}

func (s *UserServiceImpl) HasCompletedOnboarding(ctx context.Context, userID string) (bool, error) {
	return s.repo.HasCompletedOnboarding(ctx, userID)
}

func (s *UserServiceImpl) HasActiveSubscription(ctx context.Context, userID string) (bool, error) {
	ctx, span := otel.Tracer("UserService").Start(ctx, "HasActiveSubscription", trace.WithAttributes(
		attribute.String("enduser.id", userID),
	))
	defer span.End()

	status, err := s.repo.GetPremiumStatus(ctx, userID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read premium status: %w", err)
	}
	return status.Active(s.now()), nil
}

func (s *UserServiceImpl) EnsureProfile(ctx context.Context, seed types.ProfileSeed) error {
	l := s.logger.With(slog.String("method", "EnsureProfile"), slog.String("userID", seed.ID))

	if seed.ID == "" {
		return fmt.Errorf("profile id is required: %w", types.ErrBadRequest)
	}
	if err := s.repo.UpsertProfile(ctx, seed); err != nil {
		l.ErrorContext(ctx, "Failed to ensure profile", slog.Any("error", err))
		return err
	}
	return nil
}
