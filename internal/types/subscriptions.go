package types

import "time"

type PlanID string

const (
	PlanWeekly  PlanID = "weekly"
	PlanMonthly PlanID = "monthly"
	PlanYearly  PlanID = "yearly"
)

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

type PaymentSource string

const (
	PaymentSourceRevenueCat  PaymentSource = "revenuecat"
	PaymentSourceWeb         PaymentSource = "web"
	PaymentSourcePromotional PaymentSource = "promotional"
)

// Subscription is the single "current" user_subscriptions row of a user.
type Subscription struct {
	ID                    string             `json:"id"`
	UserID                string             `json:"user_id"`
	PlanID                PlanID             `json:"plan_id"`
	Status                SubscriptionStatus `json:"status"`
	RevenueCatUserID      *string            `json:"revenuecat_user_id,omitempty"`
	RevenueCatEntitlement *string            `json:"revenuecat_entitlement,omitempty"`
	StartDate             *time.Time         `json:"start_date,omitempty"`
	EndDate               *time.Time         `json:"end_date,omitempty"`
	AutoRenew             bool               `json:"auto_renew"`
	PaymentSource         PaymentSource      `json:"payment_source"`
	CreatedAt             time.Time          `json:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at"`
}

// SubscriptionUpsert is written on purchase-like events, last write wins on user_id.
type SubscriptionUpsert struct {
	UserID                string
	PlanID                PlanID
	Status                SubscriptionStatus
	RevenueCatUserID      string
	RevenueCatEntitlement string
	StartDate             *time.Time
	EndDate               *time.Time
	AutoRenew             bool
	PaymentSource         PaymentSource
	UpdatedAt             time.Time
}

// SubscriptionPatch updates selected columns of an existing row.
// EndDate is only written when SetEndDate is true, so a nil EndDate clears the column.
type SubscriptionPatch struct {
	PlanID        *PlanID
	Status        *SubscriptionStatus
	AutoRenew     *bool
	PaymentSource *PaymentSource
	SetEndDate    bool
	EndDate       *time.Time
	UpdatedAt     time.Time
}

// Empty reports whether the patch would only touch updated_at.
func (p SubscriptionPatch) Empty() bool {
	return p.PlanID == nil && p.Status == nil && p.AutoRenew == nil && p.PaymentSource == nil && !p.SetEndDate
}
