package webhook

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Purchase(t *testing.T) {
	body := []byte(`{
		"api_version": "1.0",
		"event": {
			"type": "INITIAL_PURCHASE",
			"app_user_id": "user-1",
			"original_app_user_id": "$RCAnonymousID:abc",
			"product_id": "peakheight_yearly",
			"entitlement_ids": ["PeakHeight Web"],
			"period_type": "NORMAL",
			"purchased_at_ms": 1700000000000,
			"expiration_at_ms": 1731536000000,
			"store": "STRIPE",
			"environment": "SANDBOX"
		}
	}`)

	ev, err := Parse(body)
	require.NoError(t, err)
	p, ok := ev.(Purchase)
	require.True(t, ok)

	assert.Equal(t, EventInitialPurchase, p.Type)
	assert.Equal(t, "user-1", p.UserID)
	assert.Equal(t, "$RCAnonymousID:abc", p.RevenueCatUserID())
	assert.Equal(t, "PeakHeight Web", p.Entitlement)
	assert.True(t, p.AutoRenew)
	require.NotNil(t, p.ExpiresAt)
	assert.Equal(t, time.UnixMilli(1731536000000).UTC(), *p.ExpiresAt)
	assert.Equal(t, "1.0", p.Meta().APIVersion)
}

func TestParse_Variants(t *testing.T) {
	tests := []struct {
		typ  string
		want Event
	}{
		{"RENEWAL", Purchase{}},
		{"NON_RENEWING_PURCHASE", Purchase{}},
		{"UNCANCELLATION", Purchase{}},
		{"CANCELLATION", Cancellation{}},
		{"EXPIRATION", Expiration{}},
		{"BILLING_ISSUE", BillingIssue{}},
		{"PRODUCT_CHANGE", ProductChange{}},
		{"TRANSFER", Unhandled{}},
		{"TEST", Unhandled{}},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			ev, err := Parse([]byte(`{"event":{"type":"` + tt.typ + `","app_user_id":"u"}}`))
			require.NoError(t, err)
			assert.IsType(t, tt.want, ev)
			assert.Equal(t, EventType(tt.typ), ev.Meta().Type)
		})
	}
}

func TestParse_NonRenewingDoesNotAutoRenew(t *testing.T) {
	ev, err := Parse([]byte(`{"event":{"type":"NON_RENEWING_PURCHASE","app_user_id":"u","entitlement_id":"pro"}}`))
	require.NoError(t, err)
	p := ev.(Purchase)
	assert.False(t, p.AutoRenew)
	assert.Nil(t, p.ExpiresAt)
	assert.Nil(t, p.PurchasedAt)
	assert.Equal(t, "pro", p.Entitlement)
	assert.Equal(t, "u", p.RevenueCatUserID())
}

func TestParse_Rejects(t *testing.T) {
	for name, body := range map[string]string{
		"malformed":    `{"event":`,
		"no event":     `{"api_version":"1.0"}`,
		"no type":      `{"event":{"app_user_id":"u"}}`,
		"no user":      `{"event":{"type":"RENEWAL"}}`,
		"wrong shapes": `{"event":{"type":"RENEWAL","app_user_id":"u","purchased_at_ms":"yesterday"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			var perr *ParseError
			require.True(t, errors.As(err, &perr), "got %v", err)
			assert.NotEmpty(t, perr.Reason)
		})
	}
}

func TestParse_UnhandledWithoutUser(t *testing.T) {
	ev, err := Parse([]byte(`{"event":{"type":"TRANSFER","transferred_from":["a"],"transferred_to":["b"]}}`))
	require.NoError(t, err)
	u, ok := ev.(Unhandled)
	require.True(t, ok)
	assert.Equal(t, EventTransfer, u.Type)
	assert.Empty(t, u.UserID)
}
