package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

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

var _ Repository = (*PostgresRepository)(nil)

// Repository persists the single current user_subscriptions row per user.
type Repository interface {
	// Upsert inserts or overwrites the row keyed by user_id.
	Upsert(ctx context.Context, sub types.SubscriptionUpsert) error
	// Update patches the row of userID. A missing row is not an error.
	Update(ctx context.Context, userID string, patch types.SubscriptionPatch) error
	// GetLatest returns the most recently created row, or types.ErrNotFound.
	GetLatest(ctx context.Context, userID string) (*types.Subscription, error)
}

type PostgresRepository struct {
	logger *slog.Logger
	db     db.DBTX
}

func NewPostgresRepository(conn db.DBTX, logger *slog.Logger) *PostgresRepository {
	return &PostgresRepository{logger: logger, db: conn}
}

func startSpan(ctx context.Context, name, operation, userID string) (context.Context, trace.Span) {
	return otel.Tracer("SubscriptionRepo").Start(ctx, name, trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", operation),
		attribute.String("db.sql.table", "user_subscriptions"),
		attribute.String("enduser.id", userID),
	))
}

func (r *PostgresRepository) Upsert(ctx context.Context, sub types.SubscriptionUpsert) error {
	ctx, span := startSpan(ctx, "Upsert", "INSERT", sub.UserID)
	defer span.End()

	l := r.logger.With(slog.String("method", "Upsert"), slog.String("userID", sub.UserID))

	cols := map[string]any{
		"user_id":        sub.UserID,
		"plan_id":        string(sub.PlanID),
		"status":         string(sub.Status),
		"start_date":     sub.StartDate,
		"end_date":       sub.EndDate,
		"auto_renew":     sub.AutoRenew,
		"payment_source": string(sub.PaymentSource),
		"updated_at":     sub.UpdatedAt,
	}
	if sub.RevenueCatUserID != "" {
		cols["revenuecat_user_id"] = sub.RevenueCatUserID
	}
	if sub.RevenueCatEntitlement != "" {
		cols["revenuecat_entitlement"] = sub.RevenueCatEntitlement
	}

	query, args, err := squirrel.Insert("user_subscriptions").
		PlaceholderFormat(squirrel.Dollar).
		SetMap(cols).
		Suffix(db.OnConflictUpdate("user_id", db.Columns(cols)...)).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build subscription upsert: %w", err)
	}

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		l.ErrorContext(ctx, "Failed to upsert subscription", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB UPSERT failed")
		return fmt.Errorf("database error upserting subscription: %w", err)
	}

	l.InfoContext(ctx, "Subscription upserted",
		slog.String("plan", string(sub.PlanID)),
		slog.String("status", string(sub.Status)))
	span.SetStatus(codes.Ok, "Subscription upserted")
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, userID string, patch types.SubscriptionPatch) error {
	ctx, span := startSpan(ctx, "Update", "UPDATE", userID)
	defer span.End()

	l := r.logger.With(slog.String("method", "Update"), slog.String("userID", userID))

	if patch.Empty() {
		return nil
	}

	updateBuilder := squirrel.Update("user_subscriptions").
		PlaceholderFormat(squirrel.Dollar).
		Where(squirrel.Eq{"user_id": userID}).
		Set("updated_at", patch.UpdatedAt)

	if patch.PlanID != nil {
		updateBuilder = updateBuilder.Set("plan_id", string(*patch.PlanID))
	}
	if patch.Status != nil {
		updateBuilder = updateBuilder.Set("status", string(*patch.Status))
	}
	if patch.AutoRenew != nil {
		updateBuilder = updateBuilder.Set("auto_renew", *patch.AutoRenew)
	}
	if patch.PaymentSource != nil {
		updateBuilder = updateBuilder.Set("payment_source", string(*patch.PaymentSource))
	}
	if patch.SetEndDate {
		updateBuilder = updateBuilder.Set("end_date", patch.EndDate)
	}

	query, args, err := updateBuilder.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build subscription update: %w", err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		l.ErrorContext(ctx, "Failed to update subscription", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB UPDATE failed")
		return fmt.Errorf("database error updating subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		l.WarnContext(ctx, "Subscription update matched no row")
	}

	span.SetStatus(codes.Ok, "Subscription updated")
	return nil
}

func (r *PostgresRepository) GetLatest(ctx context.Context, userID string) (*types.Subscription, error) {
	ctx, span := startSpan(ctx, "GetLatest", "SELECT", userID)
	defer span.End()

	query := `
		SELECT id, user_id, plan_id, status, revenuecat_user_id, revenuecat_entitlement,
		       start_date, end_date, auto_renew, payment_source, created_at, updated_at
		FROM user_subscriptions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	var s types.Subscription
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&s.ID,
		&s.UserID,
		&s.PlanID,
		&s.Status,
		&s.RevenueCatUserID,
		&s.RevenueCatEntitlement,
		&s.StartDate,
		&s.EndDate,
		&s.AutoRenew,
		&s.PaymentSource,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("subscription for %s: %w", userID, types.ErrNotFound)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB SELECT failed")
		return nil, fmt.Errorf("database error fetching subscription: %w", err)
	}
	return &s, nil
}
