package dashboard

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/FACorreiaa/peakheight-api/internal/types"
)

const placeholder = "—"

// Badge is a status label plus the tone the web app colours it with.
type Badge struct {
	Label string `json:"label"`
	Tone  string `json:"tone"`
}

func PlanName(plan types.PlanID) string {
	switch plan {
	case types.PlanWeekly:
		return "Weekly"
	case types.PlanMonthly:
		return "Monthly"
	case types.PlanYearly:
		return "Yearly"
	case "":
		return "Premium"
	}
	return string(plan)
}

// StatusBadge labels the subscription card. Premium users always read Active.
func StatusBadge(premium bool, sub *types.Subscription) Badge {
	if premium {
		return Badge{Label: "Active", Tone: "success"}
	}
	if sub == nil {
		return Badge{Label: "No subscription", Tone: "neutral"}
	}
	switch sub.Status {
	case types.SubscriptionActive:
		return Badge{Label: "Active", Tone: "success"}
	case "trial":
		return Badge{Label: "Trial", Tone: "info"}
	case types.SubscriptionCancelled:
		return Badge{Label: "Cancelled", Tone: "warning"}
	case types.SubscriptionExpired:
		return Badge{Label: "Expired", Tone: "danger"}
	case "":
		return Badge{Label: "Unknown", Tone: "neutral"}
	}
	return Badge{Label: string(sub.Status), Tone: "neutral"}
}

func PaymentSourceLabel(source types.PaymentSource) string {
	switch source {
	case types.PaymentSourceWeb:
		return "Credit Card (Web)"
	case types.PaymentSourceRevenueCat:
		return "App Store / Google Play"
	case "stripe":
		return "Credit Card"
	}
	return placeholder
}

// FormatHeight renders centimetres as feet and inches followed by the metric value.
func FormatHeight(cm *float64) string {
	if cm == nil {
		return placeholder
	}
	feet := int(math.Floor(*cm / 30.48))
	inches := int(math.Round(math.Mod(*cm, 30.48) / 2.54))
	if inches == 12 {
		feet, inches = feet+1, 0
	}
	return fmt.Sprintf(`%d'%d" (%s cm)`, feet, inches, strconv.FormatFloat(*cm, 'f', -1, 64))
}

func FormatDate(t *time.Time) string {
	if t == nil {
		return "N/A"
	}
	return t.Format("January 2, 2006")
}

// GreetingName picks first name, then display name, then the email local part.
func GreetingName(p *types.UserProfile) string {
	for _, s := range []*string{p.FirstName, p.DisplayName} {
		if s != nil && strings.TrimSpace(*s) != "" {
			return *s
		}
	}
	if p.Email != nil {
		if local, _, _ := strings.Cut(*p.Email, "@"); local != "" {
			return local
		}
	}
	return "there"
}
