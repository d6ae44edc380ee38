package webhook

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	EventInitialPurchase     EventType = "INITIAL_PURCHASE"
	EventRenewal             EventType = "RENEWAL"
	EventNonRenewingPurchase EventType = "NON_RENEWING_PURCHASE"
	EventUncancellation      EventType = "UNCANCELLATION"
	EventCancellation        EventType = "CANCELLATION"
	EventExpiration          EventType = "EXPIRATION"
	EventBillingIssue        EventType = "BILLING_ISSUE"
	EventProductChange       EventType = "PRODUCT_CHANGE"
	EventSubscriptionPaused  EventType = "SUBSCRIPTION_PAUSED"
	EventTransfer            EventType = "TRANSFER"
)

// envelope is the wire shape RevenueCat posts.
type envelope struct {
	APIVersion string    `json:"api_version"`
	Event      *rawEvent `json:"event"`
}

type rawEvent struct {
	Type              EventType `json:"type"`
	ID                string    `json:"id"`
	AppUserID         string    `json:"app_user_id"`
	OriginalAppUserID string    `json:"original_app_user_id"`
	ProductID         string    `json:"product_id"`
	EntitlementID     string    `json:"entitlement_id"`
	EntitlementIDs    []string  `json:"entitlement_ids"`
	PeriodType        string    `json:"period_type"`
	PurchasedAtMs     *int64    `json:"purchased_at_ms"`
	ExpirationAtMs    *int64    `json:"expiration_at_ms"`
	Store             Store     `json:"store"`
	Environment       string    `json:"environment"`
	TransactionID     string    `json:"transaction_id"`
}

// ParseError reports a webhook body that is not a usable event.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid webhook payload: %s: %v", e.Reason, e.Err)
	}
	return "invalid webhook payload: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// Event is one of Purchase, Cancellation, Expiration, BillingIssue,
// ProductChange or Unhandled.
type Event interface {
	Meta() Base
	isEvent()
}

// Base carries the fields every event variant has.
type Base struct {
	Type           EventType
	ID             string
	UserID         string
	OriginalUserID string
	ProductID      string
	Store          Store
	Environment    string
	APIVersion     string
}

func (b Base) Meta() Base { return b }
func (Base) isEvent()     {}

// Purchase covers INITIAL_PURCHASE, RENEWAL, NON_RENEWING_PURCHASE and UNCANCELLATION.
type Purchase struct {
	Base
	Entitlement string
	PurchasedAt *time.Time
	ExpiresAt   *time.Time
	AutoRenew   bool
}

type Cancellation struct{ Base }

type Expiration struct{ Base }

type BillingIssue struct{ Base }

type ProductChange struct {
	Base
	ExpiresAt *time.Time
}

// Unhandled is any other event type. It is acknowledged and ignored.
type Unhandled struct{ Base }

// Parse validates a webhook body and returns the typed event.
func Parse(body []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &ParseError{Reason: "malformed JSON", Err: err}
	}
	if env.Event == nil {
		return nil, &ParseError{Reason: "missing event"}
	}
	raw := env.Event
	if raw.Type == "" {
		return nil, &ParseError{Reason: "missing event.type"}
	}
	// Only the handled variants address a user; TRANSFER and friends carry
	// transferred_from/transferred_to instead.
	if raw.AppUserID == "" && handlesUser(raw.Type) {
		return nil, &ParseError{Reason: "missing event.app_user_id"}
	}

	base := Base{
		Type:           raw.Type,
		ID:             raw.ID,
		UserID:         raw.AppUserID,
		OriginalUserID: raw.OriginalAppUserID,
		ProductID:      raw.ProductID,
		Store:          raw.Store,
		Environment:    raw.Environment,
		APIVersion:     env.APIVersion,
	}

	switch raw.Type {
	case EventInitialPurchase, EventRenewal, EventNonRenewingPurchase, EventUncancellation:
		entitlement := raw.EntitlementID
		if entitlement == "" && len(raw.EntitlementIDs) > 0 {
			entitlement = raw.EntitlementIDs[0]
		}
		return Purchase{
			Base:        base,
			Entitlement: entitlement,
			PurchasedAt: fromMillis(raw.PurchasedAtMs),
			ExpiresAt:   fromMillis(raw.ExpirationAtMs),
			AutoRenew:   raw.Type != EventNonRenewingPurchase,
		}, nil
	case EventCancellation:
		return Cancellation{Base: base}, nil
	case EventExpiration:
		return Expiration{Base: base}, nil
	case EventBillingIssue:
		return BillingIssue{Base: base}, nil
	case EventProductChange:
		return ProductChange{Base: base, ExpiresAt: fromMillis(raw.ExpirationAtMs)}, nil
	default:
		return Unhandled{Base: base}, nil
	}
}

func handlesUser(t EventType) bool {
	switch t {
	case EventInitialPurchase, EventRenewal, EventNonRenewingPurchase, EventUncancellation,
		EventCancellation, EventExpiration, EventBillingIssue, EventProductChange:
		return true
	}
	return false
}

func fromMillis(ms *int64) *time.Time {
	if ms == nil || *ms <= 0 {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}

// RevenueCatUserID is the provider-side id recorded on the subscription row.
func (p Purchase) RevenueCatUserID() string {
	if p.OriginalUserID != "" {
		return p.OriginalUserID
	}
	return p.UserID
}
