package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/peakheight-api/internal/types"
	"github.com/FACorreiaa/peakheight-api/pkg/db"
)

const (
	getDraftQuery = `SELECT id, user_id, step, data, updated_at FROM onboarding_drafts WHERE id = $1`

	saveDraftQuery = `
		INSERT INTO onboarding_drafts (id, user_id, step, data, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET user_id = EXCLUDED.user_id, step = EXCLUDED.step, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`

	deleteDraftQuery = `DELETE FROM onboarding_drafts WHERE id = $1`

	purgeDraftsQuery = `DELETE FROM onboarding_drafts WHERE updated_at < $1`
)

var _ DraftStore = (*PostgresDraftStore)(nil)

// PostgresDraftStore keeps drafts in onboarding_drafts so they survive restarts
// and are shared between API replicas.
type PostgresDraftStore struct {
	db     db.DBTX
	logger *slog.Logger
}

func NewPostgresDraftStore(conn db.DBTX, logger *slog.Logger) *PostgresDraftStore {
	return &PostgresDraftStore{db: conn, logger: logger}
}

func (s *PostgresDraftStore) span(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return otel.Tracer("DraftStore").Start(ctx, name, trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", op),
		attribute.String("db.sql.table", "onboarding_drafts"),
	))
}

func (s *PostgresDraftStore) Get(ctx context.Context, id uuid.UUID) (*types.OnboardingDraft, error) {
	ctx, span := s.span(ctx, "GetDraft", "SELECT")
	defer span.End()

	var (
		d   types.OnboardingDraft
		raw []byte
	)
	err := s.db.QueryRow(ctx, getDraftQuery, id).Scan(&d.ID, &d.UserID, &d.Step, &raw, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("draft %s: %w", id, types.ErrNotFound)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB SELECT failed")
		return nil, fmt.Errorf("database error fetching draft: %w", err)
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &d.Data); err != nil {
			return nil, fmt.Errorf("failed to decode draft data: %w", err)
		}
	}
	return &d, nil
}

func (s *PostgresDraftStore) Save(ctx context.Context, draft *types.OnboardingDraft) error {
	ctx, span := s.span(ctx, "SaveDraft", "INSERT")
	defer span.End()

	data := draft.Data
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode draft data: %w", err)
	}

	if _, err := s.db.Exec(ctx, saveDraftQuery, draft.ID, draft.UserID, draft.Step, string(raw), draft.UpdatedAt); err != nil {
		s.logger.ErrorContext(ctx, "Failed to save draft",
			slog.String("draftID", draft.ID.String()), slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB UPSERT failed")
		return fmt.Errorf("database error saving draft: %w", err)
	}
	return nil
}

func (s *PostgresDraftStore) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := s.span(ctx, "DeleteDraft", "DELETE")
	defer span.End()

	if _, err := s.db.Exec(ctx, deleteDraftQuery, id); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB DELETE failed")
		return fmt.Errorf("database error deleting draft: %w", err)
	}
	return nil
}

// PurgeStale removes drafts not touched since before.
func (s *PostgresDraftStore) PurgeStale(ctx context.Context, before time.Time) (int64, error) {
	ctx, span := s.span(ctx, "PurgeStaleDrafts", "DELETE")
	defer span.End()

	tag, err := s.db.Exec(ctx, purgeDraftsQuery, before)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB DELETE failed")
		return 0, fmt.Errorf("database error purging drafts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RunJanitor purges stale drafts every interval until ctx is done.
func (s *PostgresDraftStore) RunJanitor(ctx context.Context, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeStale(ctx, time.Now().Add(-ttl))
			if err != nil {
				s.logger.WarnContext(ctx, "Draft purge failed", slog.Any("error", err))
				continue
			}
			if n > 0 {
				s.logger.InfoContext(ctx, "Purged stale onboarding drafts", slog.Int64("count", n))
			}
		}
	}
}
