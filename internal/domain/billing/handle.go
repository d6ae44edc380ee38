package billing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/peakheight-api/internal/types"
)

// Package identifiers looked up in the web offering.
const (
	PackageMonthly = "monthly"
	PackageYearly  = "yearly"
	PackageWeekly  = "weekly"
)

// Default package identifiers the dashboard assigns to standard durations.
const (
	rcMonthly = "$rc_monthly"
	rcAnnual  = "$rc_annual"
	rcWeekly  = "$rc_weekly"
)

type Settings struct {
	EntitlementID   string
	OfferingID      string
	WebPurchaseLink string
}

// OfferingsResult is the web offering split into the packages the paywall shows.
type OfferingsResult struct {
	Monthly *types.Package  `json:"monthly"`
	Yearly  *types.Package  `json:"yearly"`
	Weekly  *types.Package  `json:"weekly"`
	All     []types.Package `json:"all"`
	Current *types.Offering `json:"current"`
}

// Package resolves id against the paywall slots first, so "monthly" also finds
// a package published as $rc_monthly, and then against every package.
func (o *OfferingsResult) Package(id string) *types.Package {
	switch strings.ToLower(id) {
	case PackageMonthly:
		if o.Monthly != nil {
			return o.Monthly
		}
	case PackageYearly:
		if o.Yearly != nil {
			return o.Yearly
		}
	case PackageWeekly:
		if o.Weekly != nil {
			return o.Weekly
		}
	}
	for i := range o.All {
		if strings.EqualFold(o.All[i].Identifier, id) {
			return &o.All[i]
		}
	}
	return nil
}

// PurchaseResult is the outcome of a purchase. A cancelled purchase is not an
// error: Success is false and Cancelled is set.
type PurchaseResult struct {
	CustomerInfo *types.CustomerInfo `json:"customerInfo"`
	Success      bool                `json:"success"`
	Cancelled    bool                `json:"cancelled,omitempty"`
}

// Handle is the billing session of one signed-in user.
type Handle struct {
	userID   string
	client   Client
	settings Settings
	logger   *slog.Logger
	now      func() time.Time
}

func newHandle(userID string, client Client, settings Settings, logger *slog.Logger) *Handle {
	return &Handle{
		userID:   userID,
		client:   client,
		settings: settings,
		logger:   logger.With(slog.String("userID", userID)),
		now:      time.Now,
	}
}

func (h *Handle) UserID() string { return h.userID }

func (h *Handle) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return otel.Tracer("BillingHandle").Start(ctx, name, trace.WithAttributes(
		attribute.String("enduser.id", h.userID),
	))
}

// GetOfferings fetches the web offering and picks its monthly, yearly and
// weekly packages.
func (h *Handle) GetOfferings(ctx context.Context) (*OfferingsResult, error) {
	ctx, span := h.startSpan(ctx, "GetOfferings")
	defer span.End()

	offerings, err := h.client.GetOfferings(ctx, h.userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get offerings failed")
		h.logger.ErrorContext(ctx, "Failed to fetch offerings", slog.Any("error", err))
		return nil, fmt.Errorf("failed to fetch offerings: %w", err)
	}

	current := webOffering(offerings.All, h.settings.OfferingID)
	if current == nil {
		h.logger.WarnContext(ctx, "No web offering configured", slog.String("offeringID", h.settings.OfferingID))
		return &OfferingsResult{All: []types.Package{}}, nil
	}
	span.SetAttributes(attribute.String("billing.offering", current.Identifier))

	return &OfferingsResult{
		Monthly: findPackage(current.Packages, PackageMonthly, rcMonthly),
		Yearly:  findPackage(current.Packages, PackageYearly, rcAnnual),
		Weekly:  findPackage(current.Packages, PackageWeekly, rcWeekly),
		All:     current.Packages,
		Current: current,
	}, nil
}

// webOffering picks the configured offering, then "web_premium", then any
// offering whose id mentions "web", then the first one.
func webOffering(all []types.Offering, preferred string) *types.Offering {
	if len(all) == 0 {
		return nil
	}
	for _, id := range []string{preferred, "web_premium"} {
		for i := range all {
			if all[i].Identifier == id {
				return &all[i]
			}
		}
	}
	for i := range all {
		if strings.Contains(strings.ToLower(all[i].Identifier), "web") {
			return &all[i]
		}
	}
	return &all[0]
}

func findPackage(pkgs []types.Package, id, fallback string) *types.Package {
	for i := range pkgs {
		if strings.EqualFold(pkgs[i].Identifier, id) {
			return &pkgs[i]
		}
	}
	for i := range pkgs {
		if pkgs[i].Identifier == fallback {
			return &pkgs[i]
		}
	}
	return nil
}

// Purchase records the web checkout identified by fetchToken. An empty token
// means the user closed the checkout.
func (h *Handle) Purchase(ctx context.Context, pkg types.Package, fetchToken string) (*PurchaseResult, error) {
	ctx, span := h.startSpan(ctx, "Purchase")
	defer span.End()
	span.SetAttributes(attribute.String("billing.package", pkg.Identifier))

	if fetchToken == "" {
		h.logger.InfoContext(ctx, "Purchase cancelled", slog.String("package", pkg.Identifier))
		info, err := h.client.GetCustomerInfo(ctx, h.userID)
		if err != nil {
			h.logger.WarnContext(ctx, "Failed to fetch customer info after cancel", slog.Any("error", err))
			info = &types.CustomerInfo{Entitlements: map[string]types.Entitlement{}}
		}
		return &PurchaseResult{CustomerInfo: info, Success: false, Cancelled: true}, nil
	}

	info, err := h.client.PostReceipt(ctx, h.userID, fetchToken, pkg.PlatformProductIdentifier)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "purchase failed")
		h.logger.ErrorContext(ctx, "Purchase failed", slog.String("package", pkg.Identifier), slog.Any("error", err))
		return nil, fmt.Errorf("purchase failed: %w", err)
	}
	return &PurchaseResult{CustomerInfo: info, Success: h.HasEntitlement(info)}, nil
}

func (h *Handle) GetCustomerInfo(ctx context.Context) (*types.CustomerInfo, error) {
	ctx, span := h.startSpan(ctx, "GetCustomerInfo")
	defer span.End()

	info, err := h.client.GetCustomerInfo(ctx, h.userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get customer info failed")
		return nil, fmt.Errorf("failed to fetch customer info: %w", err)
	}
	return info, nil
}

// Restore refetches the customer record; web purchases have nothing to replay.
func (h *Handle) Restore(ctx context.Context) (*types.CustomerInfo, error) {
	info, err := h.GetCustomerInfo(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "Restore purchases failed", slog.Any("error", err))
		return nil, err
	}
	return info, nil
}

// CheckEntitlement reports whether the named entitlement is active.
func (h *Handle) CheckEntitlement(info *types.CustomerInfo, id string) bool {
	if info == nil {
		return false
	}
	e, ok := info.Entitlements[id]
	return ok && e.ActiveAt(h.now())
}

// HasEntitlement checks the configured entitlement first and then accepts any
// active one.
func (h *Handle) HasEntitlement(info *types.CustomerInfo) bool {
	if info == nil {
		return false
	}
	if h.CheckEntitlement(info, h.settings.EntitlementID) {
		return true
	}
	return len(info.ActiveEntitlements(h.now())) > 0
}

// ExpirationDate of the configured entitlement while it is active.
func (h *Handle) ExpirationDate(info *types.CustomerInfo) *time.Time {
	if !h.CheckEntitlement(info, h.settings.EntitlementID) {
		return nil
	}
	return info.Entitlements[h.settings.EntitlementID].ExpiresDate
}

func (h *Handle) ManagementURL(info *types.CustomerInfo) string {
	if info == nil || info.ManagementURL == nil {
		return ""
	}
	return *info.ManagementURL
}

func (h *Handle) WebPurchaseLink() string {
	return h.settings.WebPurchaseLink
}

