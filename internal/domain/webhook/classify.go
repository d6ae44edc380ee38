package webhook

import (
	"strings"

	a "github.com/petar-dambovaliev/aho-corasick"

	"github.com/FACorreiaa/peakheight-api/internal/types"
)

// Store is the billing store a purchase came from.
type Store string

const (
	StoreAppStore    Store = "APP_STORE"
	StorePlayStore   Store = "PLAY_STORE"
	StoreStripe      Store = "STRIPE"
	StorePromotional Store = "PROMOTIONAL"
	StoreAmazon      Store = "AMAZON"
)

var storePaymentSources = map[Store]types.PaymentSource{
	StoreAppStore:    types.PaymentSourceRevenueCat,
	StorePlayStore:   types.PaymentSourceRevenueCat,
	StoreStripe:      types.PaymentSourceWeb,
	StorePromotional: types.PaymentSourcePromotional,
	StoreAmazon:      types.PaymentSourceRevenueCat,
}

// PaymentSourceFor maps a store to the payment_source column. Unknown stores
// are billed through the mobile SDK.
func PaymentSourceFor(store Store) types.PaymentSource {
	if src, ok := storePaymentSources[store]; ok {
		return src
	}
	return types.PaymentSourceRevenueCat
}

var (
	planMatcherBuilder = a.NewAhoCorasickBuilder(a.Opts{
		AsciiCaseInsensitive: true,
		MatchOnlyWholeWords:  false,
	})
	planMatcher = planMatcherBuilder.Build([]string{"week", "year", "annual", "month"})

	keywordToPlan = map[string]types.PlanID{
		"week":   types.PlanWeekly,
		"year":   types.PlanYearly,
		"annual": types.PlanYearly,
		"month":  types.PlanMonthly,
	}

	// weekly beats yearly beats monthly when a product id names several periods
	planPriority = map[types.PlanID]int{
		types.PlanWeekly:  1,
		types.PlanYearly:  2,
		types.PlanMonthly: 3,
	}
)

// PlanFor derives the plan id from a product id. Product ids naming no
// billing period pass through unchanged.
func PlanFor(productID string) types.PlanID {
	lower := strings.ToLower(productID)
	matches := planMatcher.FindAll(lower)
	if len(matches) == 0 {
		return types.PlanID(productID)
	}

	best := types.PlanID("")
	bestPriority := 999
	for _, m := range matches {
		plan := keywordToPlan[lower[m.Start():m.End()]]
		if p, ok := planPriority[plan]; ok && p < bestPriority {
			best, bestPriority = plan, p
		}
	}
	if best == "" {
		return types.PlanID(productID)
	}
	return best
}
