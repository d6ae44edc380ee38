package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/peakheight-api/internal/types"
	"github.com/FACorreiaa/peakheight-api/pkg/config"
)

// SubscriptionWriter writes the user_subscriptions row.
type SubscriptionWriter interface {
	Upsert(ctx context.Context, sub types.SubscriptionUpsert) error
	Update(ctx context.Context, userID string, patch types.SubscriptionPatch) error
}

// PremiumWriter flips the premium flag on the users row.
type PremiumWriter interface {
	GrantPremium(ctx context.Context, userID string, expiresAt *time.Time) error
	RevokePremium(ctx context.Context, userID string) error
}

// Dispatcher applies billing events to the row store. Every action is a
// last-write-wins write keyed by user id, so redelivery is safe.
type Dispatcher struct {
	logger *slog.Logger
	subs   SubscriptionWriter
	users  PremiumWriter
	policy config.WebhookFailurePolicy
	now    func() time.Time
}

func NewDispatcher(subs SubscriptionWriter, users PremiumWriter, policy config.WebhookFailurePolicy, logger *slog.Logger) *Dispatcher {
	if policy == "" {
		policy = config.WebhookPropagate
	}
	return &Dispatcher{
		logger: logger,
		subs:   subs,
		users:  users,
		policy: policy,
		now:    time.Now,
	}
}

// Dispatch runs the action for ev. It reports whether the event changed state.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) (applied bool, err error) {
	meta := ev.Meta()
	ctx, span := otel.Tracer("WebhookDispatcher").Start(ctx, "Dispatch", trace.WithAttributes(
		attribute.String("billing.event_type", string(meta.Type)),
		attribute.String("billing.store", string(meta.Store)),
		attribute.String("enduser.id", meta.UserID),
	))
	defer span.End()

	l := d.logger.With(
		slog.String("method", "Dispatch"),
		slog.String("userID", meta.UserID),
		slog.String("type", string(meta.Type)))

	l.InfoContext(ctx, "RevenueCat webhook received",
		slog.String("product", meta.ProductID),
		slog.String("store", string(meta.Store)),
		slog.String("environment", meta.Environment))

	now := d.now().UTC()
	switch e := ev.(type) {
	case Purchase:
		err = d.purchase(ctx, l, e, now)
	case Cancellation:
		err = d.updateSubscription(ctx, l, e.UserID, types.SubscriptionPatch{
			Status:    ptr(types.SubscriptionCancelled),
			AutoRenew: ptr(false),
			UpdatedAt: now,
		})
		if err == nil {
			l.InfoContext(ctx, "Subscription cancelled, premium kept until expiration")
		}
	case Expiration:
		err = d.updateSubscription(ctx, l, e.UserID, types.SubscriptionPatch{
			Status:    ptr(types.SubscriptionExpired),
			UpdatedAt: now,
		})
		if err == nil {
			if err = d.users.RevokePremium(ctx, e.UserID); err != nil {
				err = fmt.Errorf("failed to revoke premium: %w", err)
			} else {
				l.InfoContext(ctx, "Subscription expired, premium removed")
			}
		}
	case BillingIssue:
		err = d.updateSubscription(ctx, l, e.UserID, types.SubscriptionPatch{
			Status:    ptr(types.SubscriptionActive),
			UpdatedAt: now,
		})
		if err == nil {
			l.InfoContext(ctx, "Billing issue, subscription kept active for the grace period")
		}
	case ProductChange:
		plan := PlanFor(e.ProductID)
		err = d.updateSubscription(ctx, l, e.UserID, types.SubscriptionPatch{
			PlanID:        &plan,
			PaymentSource: ptr(PaymentSourceFor(e.Store)),
			SetEndDate:    true,
			EndDate:       e.ExpiresAt,
			UpdatedAt:     now,
		})
		if err == nil {
			l.InfoContext(ctx, "Subscription plan changed", slog.String("plan", string(plan)))
		}
	default:
		l.InfoContext(ctx, "Unhandled event type")
		return false, nil
	}

	if err != nil {
		l.ErrorContext(ctx, "Webhook processing failed", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispatch failed")
		return false, err
	}
	span.SetStatus(codes.Ok, "event applied")
	return true, nil
}

func (d *Dispatcher) purchase(ctx context.Context, l *slog.Logger, e Purchase, now time.Time) error {
	plan := PlanFor(e.ProductID)
	source := PaymentSourceFor(e.Store)

	err := d.subs.Upsert(ctx, types.SubscriptionUpsert{
		UserID:                e.UserID,
		PlanID:                plan,
		Status:                types.SubscriptionActive,
		RevenueCatUserID:      e.RevenueCatUserID(),
		RevenueCatEntitlement: e.Entitlement,
		StartDate:             e.PurchasedAt,
		EndDate:               e.ExpiresAt,
		AutoRenew:             e.AutoRenew,
		PaymentSource:         source,
		UpdatedAt:             now,
	})
	if err := d.subscriptionFailure(ctx, l, err); err != nil {
		return err
	}

	if err := d.users.GrantPremium(ctx, e.UserID, e.ExpiresAt); err != nil {
		return fmt.Errorf("failed to grant premium: %w", err)
	}

	l.InfoContext(ctx, "User subscribed",
		slog.String("plan", string(plan)),
		slog.String("paymentSource", string(source)))
	return nil
}

func (d *Dispatcher) updateSubscription(ctx context.Context, l *slog.Logger, userID string, patch types.SubscriptionPatch) error {
	return d.subscriptionFailure(ctx, l, d.subs.Update(ctx, userID, patch))
}

// subscriptionFailure applies the failure policy to a subscription row write.
func (d *Dispatcher) subscriptionFailure(ctx context.Context, l *slog.Logger, err error) error {
	if err == nil {
		return nil
	}
	if d.policy == config.WebhookLogAndContinue {
		l.WarnContext(ctx, "Subscription write failed, continuing", slog.Any("error", err))
		return nil
	}
	return fmt.Errorf("failed to write subscription: %w", err)
}

func ptr[T any](v T) *T { return &v }
