package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Config is the full runtime configuration of the API.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Supabase      SupabaseConfig
	RevenueCat    RevenueCatConfig
	Session       SessionConfig
	Onboarding    OnboardingConfig
	Observability ObservabilityConfig
}

type ServerConfig struct {
	Env                string
	Port               string
	PublicBaseURL      string
	APIBaseURL         string
	AllowedOrigins     []string
	RateLimitPerSecond int
	RateLimitBurst     int
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	ShutdownTimeout    time.Duration
}

type DatabaseConfig struct {
	Host          string
	Port          string
	User          string
	Password      string
	Name          string
	SSLMode       string
	RunMigrations bool
}

// DSN builds a postgres connection string understood by pgx.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   d.Host + ":" + d.Port,
		Path:   "/" + d.Name,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

type SupabaseConfig struct {
	URL            string
	AnonKey        string
	ServiceRoleKey string
	JWTSecret      string
}

// WebhookFailurePolicy controls how the webhook reacts to a failed row write.
type WebhookFailurePolicy string

const (
	// WebhookPropagate aborts the event and answers 500 so the provider redelivers.
	WebhookPropagate WebhookFailurePolicy = "propagate"
	// WebhookLogAndContinue logs subscription row failures and keeps going.
	WebhookLogAndContinue WebhookFailurePolicy = "log"
)

type RevenueCatConfig struct {
	APIBaseURL        string
	PublicAPIKey      string
	SecretAPIKey      string
	WebhookAuthSecret string
	EntitlementID     string
	OfferingID        string
	WebPurchaseLink   string
	FailurePolicy     WebhookFailurePolicy
}

type SessionConfig struct {
	CookieName   string
	CookieSecret string
	Secure       bool
	MaxAge       time.Duration
}

type OnboardingConfig struct {
	// DraftBackend is either "memory" or "postgres".
	DraftBackend string
	DraftTTL     time.Duration
	SaveTimeout  time.Duration
}

type ObservabilityConfig struct {
	MetricsEnabled bool
	LogLevel       string
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Env:                getEnv("APP_ENV", EnvDevelopment),
			Port:               getEnv("PORT", "8000"),
			PublicBaseURL:      strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:3000"), "/"),
			APIBaseURL:         strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:8000"), "/"),
			AllowedOrigins:     getList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			RateLimitPerSecond: getInt("RATE_LIMIT_PER_SECOND", 20),
			RateLimitBurst:     getInt("RATE_LIMIT_BURST", 40),
			ReadTimeout:        getDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:       getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:        getDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout:    getDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:          getEnv("DB_HOST", "localhost"),
			Port:          getEnv("DB_PORT", "5432"),
			User:          getEnv("DB_USER", "postgres"),
			Password:      getEnv("DB_PASSWORD", "postgres"),
			Name:          getEnv("DB_NAME", "peakheight"),
			SSLMode:       getEnv("DB_SSLMODE", "disable"),
			RunMigrations: getBool("DB_RUN_MIGRATIONS", true),
		},
		Supabase: SupabaseConfig{
			URL:            strings.TrimRight(getEnv("SUPABASE_URL", "http://localhost:54321"), "/"),
			AnonKey:        getEnv("SUPABASE_ANON_KEY", ""),
			ServiceRoleKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
			JWTSecret:      getEnv("SUPABASE_JWT_SECRET", ""),
		},
		RevenueCat: RevenueCatConfig{
			APIBaseURL:        strings.TrimRight(getEnv("REVENUECAT_API_BASE_URL", "https://api.revenuecat.com"), "/"),
			PublicAPIKey:      getEnv("REVENUECAT_API_KEY", ""),
			SecretAPIKey:      getEnv("REVENUECAT_SECRET_API_KEY", ""),
			WebhookAuthSecret: getEnv("REVENUECAT_WEBHOOK_AUTH_HEADER", ""),
			EntitlementID:     getEnv("REVENUECAT_ENTITLEMENT_ID", "PeakHeight Web"),
			OfferingID:        getEnv("REVENUECAT_OFFERING_ID", "web premium"),
			WebPurchaseLink:   getEnv("REVENUECAT_WEB_PURCHASE_LINK", ""),
			FailurePolicy:     WebhookFailurePolicy(getEnv("REVENUECAT_WEBHOOK_FAILURE_POLICY", string(WebhookPropagate))),
		},
		Session: SessionConfig{
			CookieName:   getEnv("SESSION_COOKIE_NAME", "peakheight_session"),
			CookieSecret: getEnv("SESSION_COOKIE_SECRET", ""),
			Secure:       getBool("SESSION_COOKIE_SECURE", false),
			MaxAge:       getDuration("SESSION_MAX_AGE", 7*24*time.Hour),
		},
		Onboarding: OnboardingConfig{
			DraftBackend: getEnv("ONBOARDING_DRAFT_BACKEND", "memory"),
			DraftTTL:     getDuration("ONBOARDING_DRAFT_TTL", 7*24*time.Hour),
			SaveTimeout:  getDuration("ONBOARDING_SAVE_TIMEOUT", 10*time.Second),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getBool("METRICS_ENABLED", true),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProduction reports whether the API runs with production safeguards.
func (c *Config) IsProduction() bool {
	return c.Server.Env == EnvProduction
}

// Validate rejects configurations that are only acceptable for local development.
func (c *Config) Validate() error {
	var errs []error

	switch c.RevenueCat.FailurePolicy {
	case WebhookPropagate, WebhookLogAndContinue:
	default:
		errs = append(errs, fmt.Errorf("unknown webhook failure policy %q", c.RevenueCat.FailurePolicy))
	}
	switch c.Onboarding.DraftBackend {
	case "memory", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unknown onboarding draft backend %q", c.Onboarding.DraftBackend))
	}

	if c.IsProduction() {
		if c.RevenueCat.WebhookAuthSecret == "" {
			errs = append(errs, errors.New("REVENUECAT_WEBHOOK_AUTH_HEADER is required in production"))
		}
		if c.Supabase.JWTSecret == "" {
			errs = append(errs, errors.New("SUPABASE_JWT_SECRET is required in production"))
		}
		if c.Session.CookieSecret == "" {
			errs = append(errs, errors.New("SESSION_COOKIE_SECRET is required in production"))
		}
	}

	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func getList(key string, fallback []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
