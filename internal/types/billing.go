package types

import "time"

// Package is one purchasable product of an offering.
type Package struct {
	Identifier                string `json:"identifier"`
	PlatformProductIdentifier string `json:"platform_product_identifier"`
}

// Offering is a named bundle of packages configured in the billing dashboard.
type Offering struct {
	Identifier  string    `json:"identifier"`
	Description string    `json:"description"`
	Packages    []Package `json:"packages"`
}

// Entitlement is one granted capability on the customer record.
type Entitlement struct {
	ProductIdentifier string     `json:"product_identifier"`
	PurchaseDate      *time.Time `json:"purchase_date,omitempty"`
	ExpiresDate       *time.Time `json:"expires_date,omitempty"`
}

// ActiveAt reports whether the entitlement grants access at t.
func (e Entitlement) ActiveAt(t time.Time) bool {
	return e.ExpiresDate == nil || e.ExpiresDate.After(t)
}

// CustomerInfo is the billing provider's view of a customer.
type CustomerInfo struct {
	OriginalAppUserID string                 `json:"original_app_user_id"`
	ManagementURL     *string                `json:"management_url,omitempty"`
	Entitlements      map[string]Entitlement `json:"entitlements"`
	FirstSeen         *time.Time             `json:"first_seen,omitempty"`
}

// ActiveEntitlements returns the entitlements granting access at t.
func (c *CustomerInfo) ActiveEntitlements(t time.Time) map[string]Entitlement {
	active := make(map[string]Entitlement, len(c.Entitlements))
	for id, e := range c.Entitlements {
		if e.ActiveAt(t) {
			active[id] = e
		}
	}
	return active
}
