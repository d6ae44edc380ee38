package types

import (
	"time"
)

// UserProfile is the row the funnel reads back from the users table.
type UserProfile struct {
	ID                  string     `json:"id"`
	Email               *string    `json:"email,omitempty"`
	DisplayName         *string    `json:"display_name,omitempty"`
	FirstName           *string    `json:"first_name,omitempty"`
	LastName            *string    `json:"last_name,omitempty"`
	AvatarURL           *string    `json:"avatar_url,omitempty"`
	PremiumStatus       bool       `json:"premium_status"`
	PremiumExpiresAt    *time.Time `json:"premium_expires_at,omitempty"`
	OnboardingCompleted bool       `json:"onboarding_completed"`
	Gender              *string    `json:"gender,omitempty"`
	DateOfBirth         *time.Time `json:"date_of_birth,omitempty"`
	CurrentHeight       *float64   `json:"current_height,omitempty"`
	TargetHeight        *float64   `json:"target_height,omitempty"`
	WorkoutFrequency    *string    `json:"workout_frequency,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// PremiumStatus is the pair of columns the premium flag is derived from.
type PremiumStatus struct {
	Status    bool       `json:"premium_status"`
	ExpiresAt *time.Time `json:"premium_expires_at,omitempty"`
}

// Active reports premium_status && (no expiry || expiry after now).
func (p PremiumStatus) Active(now time.Time) bool {
	if !p.Status {
		return false
	}
	return p.ExpiresAt == nil || p.ExpiresAt.After(now)
}

// ProfileSeed is the minimal profile written on sign-up or OAuth callback.
// Empty strings are left out of the upsert.
type ProfileSeed struct {
	ID          string
	Email       string
	DisplayName string
	FirstName   string
	LastName    string
	AvatarURL   string
}

// UserPatch is a partial users row keyed by column name.
type UserPatch map[string]any
