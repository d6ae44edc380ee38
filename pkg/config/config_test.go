package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", EnvDevelopment)
	t.Setenv("REVENUECAT_WEBHOOK_AUTH_HEADER", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "PeakHeight Web", cfg.RevenueCat.EntitlementID)
	assert.Equal(t, "web premium", cfg.RevenueCat.OfferingID)
	assert.Equal(t, WebhookPropagate, cfg.RevenueCat.FailurePolicy)
	assert.Equal(t, 10*time.Second, cfg.Onboarding.SaveTimeout)
	assert.Equal(t, "memory", cfg.Onboarding.DraftBackend)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "https://peakheight.app, http://localhost:3000")
	t.Setenv("ONBOARDING_SAVE_TIMEOUT", "3s")
	t.Setenv("REVENUECAT_WEBHOOK_FAILURE_POLICY", "log")
	t.Setenv("DB_RUN_MIGRATIONS", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, []string{"https://peakheight.app", "http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 3*time.Second, cfg.Onboarding.SaveTimeout)
	assert.Equal(t, WebhookLogAndContinue, cfg.RevenueCat.FailurePolicy)
	assert.False(t, cfg.Database.RunMigrations)
}

func TestValidate_ProductionRequiresSecrets(t *testing.T) {
	cfg := &Config{
		Server:     ServerConfig{Env: EnvProduction},
		RevenueCat: RevenueCatConfig{FailurePolicy: WebhookPropagate},
		Onboarding: OnboardingConfig{DraftBackend: "postgres"},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REVENUECAT_WEBHOOK_AUTH_HEADER")
	assert.Contains(t, err.Error(), "SUPABASE_JWT_SECRET")
	assert.Contains(t, err.Error(), "SESSION_COOKIE_SECRET")

	cfg.RevenueCat.WebhookAuthSecret = "whsec"
	cfg.Supabase.JWTSecret = "jwt"
	cfg.Session.CookieSecret = "cookie"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_DevelopmentAllowsEmptyWebhookSecret(t *testing.T) {
	cfg := &Config{
		Server:     ServerConfig{Env: EnvDevelopment},
		RevenueCat: RevenueCatConfig{FailurePolicy: WebhookPropagate},
		Onboarding: OnboardingConfig{DraftBackend: "memory"},
	}
	assert.NoError(t, cfg.Validate())
}

func TestValidate_RejectsUnknownPolicy(t *testing.T) {
	cfg := &Config{
		RevenueCat: RevenueCatConfig{FailurePolicy: "retry"},
		Onboarding: OnboardingConfig{DraftBackend: "memory"},
	}
	assert.Error(t, cfg.Validate())
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: "5432", User: "app", Password: "p@ss", Name: "peak", SSLMode: "disable"}
	assert.Equal(t, "postgres://app:p%40ss@db:5432/peak?sslmode=disable", d.DSN())
}
