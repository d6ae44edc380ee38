package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/FACorreiaa/peakheight-api/internal/types"
)

type ProfileReader interface {
	GetProfile(ctx context.Context, userID string) (*types.UserProfile, error)
}

type SubscriptionReader interface {
	GetLatest(ctx context.Context, userID string) (*types.Subscription, error)
}

// SubscriptionView is the subscription card of the dashboard.
type SubscriptionView struct {
	Plan          string     `json:"plan"`
	Status        Badge      `json:"status"`
	StartDate     *time.Time `json:"startDate,omitempty"`
	EndDate       *time.Time `json:"endDate,omitempty"`
	EndLabel      string     `json:"endLabel,omitempty"`
	AutoRenew     *bool      `json:"autoRenew,omitempty"`
	PaymentMethod string     `json:"paymentMethod"`
}

// PlanSummary echoes the onboarding answers the dashboard shows.
type PlanSummary struct {
	CurrentHeight    string  `json:"currentHeight"`
	TargetHeight     string  `json:"targetHeight"`
	WorkoutFrequency *string `json:"workoutFrequency,omitempty"`
}

type Dashboard struct {
	Greeting     string              `json:"greeting"`
	MemberSince  string              `json:"memberSince,omitempty"`
	Premium      bool                `json:"premium"`
	Profile      *types.UserProfile  `json:"profile"`
	Subscription *types.Subscription `json:"subscription,omitempty"`
	Card         SubscriptionView    `json:"card"`
	Summary      *PlanSummary        `json:"summary,omitempty"`
}

type Service struct {
	profiles      ProfileReader
	subscriptions SubscriptionReader
	logger        *slog.Logger
	now           func() time.Time
}

func NewService(profiles ProfileReader, subscriptions SubscriptionReader, logger *slog.Logger) *Service {
	return &Service{profiles: profiles, subscriptions: subscriptions, logger: logger, now: time.Now}
}

// GetDashboard reads the profile and the latest subscription concurrently. A
// user without a subscription row still gets a dashboard.
func (s *Service) GetDashboard(ctx context.Context, userID string) (*Dashboard, error) {
	ctx, span := otel.Tracer("DashboardService").Start(ctx, "GetDashboard", trace.WithAttributes(
		attribute.String("enduser.id", userID),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "GetDashboard"), slog.String("userID", userID))

	var (
		profile *types.UserProfile
		sub     *types.Subscription
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.profiles.GetProfile(gctx, userID)
		if err != nil {
			return fmt.Errorf("failed to load profile: %w", err)
		}
		profile = p
		return nil
	})
	g.Go(func() error {
		latest, err := s.subscriptions.GetLatest(gctx, userID)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("failed to load subscription: %w", err)
		}
		sub = latest
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dashboard read failed")
		l.ErrorContext(ctx, "Error fetching user data", slog.Any("error", err))
		return nil, err
	}

	premium := types.PremiumStatus{Status: profile.PremiumStatus, ExpiresAt: profile.PremiumExpiresAt}.Active(s.now())
	d := &Dashboard{
		Greeting:     GreetingName(profile),
		Premium:      premium,
		Profile:      profile,
		Subscription: sub,
		Card:         subscriptionView(premium, sub),
	}
	if !profile.CreatedAt.IsZero() {
		d.MemberSince = profile.CreatedAt.Format("Jan 2006")
	}
	if profile.CurrentHeight != nil || profile.TargetHeight != nil || profile.WorkoutFrequency != nil {
		d.Summary = &PlanSummary{
			CurrentHeight:    FormatHeight(profile.CurrentHeight),
			TargetHeight:     FormatHeight(profile.TargetHeight),
			WorkoutFrequency: profile.WorkoutFrequency,
		}
	}
	span.SetAttributes(attribute.Bool("premium", premium))
	return d, nil
}

func subscriptionView(premium bool, sub *types.Subscription) SubscriptionView {
	v := SubscriptionView{
		Plan:          placeholder,
		Status:        StatusBadge(premium, sub),
		PaymentMethod: placeholder,
	}
	if sub == nil {
		return v
	}
	v.Plan = PlanName(sub.PlanID)
	v.StartDate = sub.StartDate
	v.EndDate = sub.EndDate
	if sub.EndDate != nil {
		v.EndLabel = "Expires"
		if sub.AutoRenew {
			v.EndLabel = "Renews"
		}
	}
	autoRenew := sub.AutoRenew
	v.AutoRenew = &autoRenew
	v.PaymentMethod = PaymentSourceLabel(sub.PaymentSource)
	return v
}
