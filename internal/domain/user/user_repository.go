package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/peakheight-api/internal/types"
	"github.com/FACorreiaa/peakheight-api/pkg/db"
)

var _ UserRepo = (*PostgresUserRepo)(nil)

// UserRepo defines the contract for users and the per-user side tables.
type UserRepo interface {
	// GetProfile returns types.ErrNotFound if the user row doesn't exist.
	GetProfile(ctx context.Context, userID string) (*types.UserProfile, error)
	GetPremiumStatus(ctx context.Context, userID string) (*types.PremiumStatus, error)
	HasCompletedOnboarding(ctx context.Context, userID string) (bool, error)

	// ApplyPatch updates the columns present in patch.
	// Returns types.ErrNotFound if no row matched.
	ApplyPatch(ctx context.Context, userID string, patch types.UserPatch) error
	// UpsertProfile creates the user row or refreshes its identity columns.
	UpsertProfile(ctx context.Context, seed types.ProfileSeed) error

	GrantPremium(ctx context.Context, userID string, expiresAt *time.Time) error
	RevokePremium(ctx context.Context, userID string) error

	// InitProgress, InitPreferences and RecordJoin are idempotent upserts keyed by user_id.
	InitProgress(ctx context.Context, userID string, start time.Time) error
	InitPreferences(ctx context.Context, userID string) error
	RecordJoin(ctx context.Context, userID string, joinedAt time.Time) error
}

type PostgresUserRepo struct {
	logger *slog.Logger
	db     db.DBTX
	now    func() time.Time
}

func NewPostgresUserRepo(conn db.DBTX, logger *slog.Logger) *PostgresUserRepo {
	return &PostgresUserRepo{
		logger: logger,
		db:     conn,
		now:    time.Now,
	}
}

func startSpan(ctx context.Context, name, operation, table string, userID string) (context.Context, trace.Span) {
	return otel.Tracer("UserRepo").Start(ctx, name, trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", operation),
		attribute.String("db.sql.table", table),
		attribute.String("enduser.id", userID),
	))
}

func (r *PostgresUserRepo) GetProfile(ctx context.Context, userID string) (*types.UserProfile, error) {
	ctx, span := startSpan(ctx, "GetProfile", "SELECT", "users", userID)
	defer span.End()

	l := r.logger.With(slog.String("method", "GetProfile"), slog.String("userID", userID))

	query := `
		SELECT id, email, display_name, first_name, last_name, avatar_url,
		       premium_status, premium_expires_at, onboarding_completed,
		       gender, date_of_birth, current_height, target_height, workout_frequency,
		       created_at, updated_at
		FROM users WHERE id = $1`

	var p types.UserProfile
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&p.ID,
		&p.Email,
		&p.DisplayName,
		&p.FirstName,
		&p.LastName,
		&p.AvatarURL,
		&p.PremiumStatus,
		&p.PremiumExpiresAt,
		&p.OnboardingCompleted,
		&p.Gender,
		&p.DateOfBirth,
		&p.CurrentHeight,
		&p.TargetHeight,
		&p.WorkoutFrequency,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "user not found")
			return nil, fmt.Errorf("user %s: %w", userID, types.ErrNotFound)
		}
		l.ErrorContext(ctx, "Failed to fetch user profile", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB SELECT failed")
		return nil, fmt.Errorf("database error fetching user profile: %w", err)
	}

	span.SetStatus(codes.Ok, "Profile fetched")
	return &p, nil
}

func (r *PostgresUserRepo) GetPremiumStatus(ctx context.Context, userID string) (*types.PremiumStatus, error) {
	ctx, span := startSpan(ctx, "GetPremiumStatus", "SELECT", "users", userID)
	defer span.End()

	var s types.PremiumStatus
	err := r.db.QueryRow(ctx,
		"SELECT premium_status, premium_expires_at FROM users WHERE id = $1",
		userID).Scan(&s.Status, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", userID, types.ErrNotFound)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB SELECT failed")
		return nil, fmt.Errorf("database error fetching premium status: %w", err)
	}
	return &s, nil
}

func (r *PostgresUserRepo) HasCompletedOnboarding(ctx context.Context, userID string) (bool, error) {
	ctx, span := startSpan(ctx, "HasCompletedOnboarding", "SELECT", "users", userID)
	defer span.End()

	var completed bool
	err := r.db.QueryRow(ctx,
		"SELECT onboarding_completed FROM users WHERE id = $1",
		userID).Scan(&completed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB SELECT failed")
		return false, fmt.Errorf("database error checking onboarding: %w", err)
	}
	return completed, nil
}

func (r *PostgresUserRepo) ApplyPatch(ctx context.Context, userID string, patch types.UserPatch) error {
	ctx, span := startSpan(ctx, "ApplyPatch", "UPDATE", "users", userID)
	defer span.End()

	l := r.logger.With(slog.String("method", "ApplyPatch"), slog.String("userID", userID))

	if len(patch) == 0 {
		return nil
	}
	span.SetAttributes(attribute.Int("db.columns", len(patch)))

	query, args, err := squirrel.Update("users").
		PlaceholderFormat(squirrel.Dollar).
		SetMap(patch).
		Where(squirrel.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		l.ErrorContext(ctx, "Failed to patch user", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB UPDATE failed")
		return fmt.Errorf("database error updating user: %w", err)
	}
	// The profile row may not exist yet; the onboarding side rows are still written.
	if tag.RowsAffected() == 0 {
		l.WarnContext(ctx, "User patch matched no row")
		return nil
	}

	l.DebugContext(ctx, "User patched", slog.Int("columns", len(patch)))
	span.SetStatus(codes.Ok, "User patched")
	return nil
}

func (r *PostgresUserRepo) UpsertProfile(ctx context.Context, seed types.ProfileSeed) error {
	ctx, span := startSpan(ctx, "UpsertProfile", "INSERT", "users", seed.ID)
	defer span.End()

	l := r.logger.With(slog.String("method", "UpsertProfile"), slog.String("userID", seed.ID))

	now := r.now().UTC()
	cols := map[string]any{
		"id":         seed.ID,
		"updated_at": now,
	}
	optional := map[string]string{
		"email":        seed.Email,
		"display_name": seed.DisplayName,
		"first_name":   seed.FirstName,
		"last_name":    seed.LastName,
		"avatar_url":   seed.AvatarURL,
	}
	for col, v := range optional {
		if v != "" {
			cols[col] = v
		}
	}

	// created_at only on insert
	query, args, err := squirrel.Insert("users").
		PlaceholderFormat(squirrel.Dollar).
		SetMap(withCreatedAt(cols, now)).
		Suffix(db.OnConflictUpdate("id", db.Columns(cols)...)).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build upsert query: %w", err)
	}

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		l.ErrorContext(ctx, "Failed to upsert profile", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB UPSERT failed")
		return fmt.Errorf("database error upserting profile: %w", err)
	}

	l.InfoContext(ctx, "Profile upserted")
	return nil
}

func (r *PostgresUserRepo) GrantPremium(ctx context.Context, userID string, expiresAt *time.Time) error {
	return r.setPremium(ctx, "GrantPremium", userID, map[string]any{
		"premium_status":     true,
		"premium_expires_at": expiresAt,
		"updated_at":         r.now().UTC(),
	})
}

func (r *PostgresUserRepo) RevokePremium(ctx context.Context, userID string) error {
	return r.setPremium(ctx, "RevokePremium", userID, map[string]any{
		"premium_status": false,
		"updated_at":     r.now().UTC(),
	})
}

func (r *PostgresUserRepo) setPremium(ctx context.Context, method, userID string, cols map[string]any) error {
	ctx, span := startSpan(ctx, method, "UPDATE", "users", userID)
	defer span.End()

	l := r.logger.With(slog.String("method", method), slog.String("userID", userID))

	query, args, err := squirrel.Update("users").
		PlaceholderFormat(squirrel.Dollar).
		SetMap(cols).
		Where(squirrel.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		l.ErrorContext(ctx, "Failed to update premium flag", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB UPDATE failed")
		return fmt.Errorf("database error updating premium flag: %w", err)
	}
	// Billing events can arrive before the profile exists.
	if tag.RowsAffected() == 0 {
		l.WarnContext(ctx, "Premium update matched no user row")
	}
	return nil
}

func (r *PostgresUserRepo) InitProgress(ctx context.Context, userID string, start time.Time) error {
	return r.upsertSideRow(ctx, "InitProgress", "user_progress", map[string]any{
		"user_id":         userID,
		"current_day":     1,
		"current_streak":  0,
		"longest_streak":  0,
		"total_streak":    0,
		"plan_start_date": start.UTC().Format(time.DateOnly),
		"updated_at":      r.now().UTC(),
	})
}

func (r *PostgresUserRepo) InitPreferences(ctx context.Context, userID string) error {
	return r.upsertSideRow(ctx, "InitPreferences", "user_preferences", map[string]any{
		"user_id":                userID,
		"notification_habits":    true,
		"notification_community": true,
		"notification_ai_tips":   true,
		"units":                  "metric",
		"updated_at":             r.now().UTC(),
	})
}

func (r *PostgresUserRepo) RecordJoin(ctx context.Context, userID string, joinedAt time.Time) error {
	return r.upsertSideRow(ctx, "RecordJoin", "user_join_events", map[string]any{
		"user_id":   userID,
		"joined_at": joinedAt.UTC(),
	})
}

func (r *PostgresUserRepo) upsertSideRow(ctx context.Context, method, table string, cols map[string]any) error {
	userID, _ := cols["user_id"].(string)
	ctx, span := startSpan(ctx, method, "INSERT", table, userID)
	defer span.End()

	query, args, err := squirrel.Insert(table).
		PlaceholderFormat(squirrel.Dollar).
		SetMap(cols).
		Suffix(db.OnConflictUpdate("user_id", db.Columns(cols)...)).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build %s upsert: %w", table, err)
	}

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB UPSERT failed")
		return fmt.Errorf("database error upserting %s: %w", table, err)
	}
	return nil
}

func withCreatedAt(cols map[string]any, now time.Time) map[string]any {
	out := make(map[string]any, len(cols)+1)
	for k, v := range cols {
		out[k] = v
	}
	out["created_at"] = now
	return out
}
