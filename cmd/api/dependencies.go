package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/securecookie"

	"github.com/FACorreiaa/peakheight-api/internal/domain/billing"
	"github.com/FACorreiaa/peakheight-api/internal/domain/dashboard"
	"github.com/FACorreiaa/peakheight-api/internal/domain/onboarding"
	"github.com/FACorreiaa/peakheight-api/internal/domain/session"
	"github.com/FACorreiaa/peakheight-api/internal/domain/subscription"
	"github.com/FACorreiaa/peakheight-api/internal/domain/user"
	"github.com/FACorreiaa/peakheight-api/internal/domain/webhook"
	"github.com/FACorreiaa/peakheight-api/pkg/config"
	"github.com/FACorreiaa/peakheight-api/pkg/db"
	"github.com/FACorreiaa/peakheight-api/pkg/interceptors"
)

const (
	outboundTimeout = 10 * time.Second
	janitorInterval = time.Hour
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	// Repositories
	UserRepo         *user.PostgresUserRepo
	SubscriptionRepo subscription.Repository
	DraftStore       onboarding.DraftStore

	// Services
	Verifier      interceptors.TokenVerifier
	AuthProvider  session.AuthProvider
	UserService   *user.UserServiceImpl
	Gate          *session.Gate
	Onboarding    *onboarding.ServiceImpl
	Billing       *billing.Registry
	Dispatcher    *webhook.Dispatcher
	DashboardSvc  *dashboard.Service
	janitorCancel context.CancelFunc

	// Handlers
	OnboardingHandler *onboarding.Handler
	SessionHandler    *session.Handler
	OAuthHandler      *session.OAuthHandler
	BillingHandler    *billing.Handler
	DashboardHandler  *dashboard.Handler
	WebhookHandler    *webhook.Handler
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	deps.initRepositories()

	if err := deps.initServices(); err != nil {
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	if err := deps.initHandlers(); err != nil {
		return nil, fmt.Errorf("failed to init handlers: %w", err)
	}

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        2,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	if d.Config.Database.RunMigrations {
		if err := d.DB.RunMigrations(); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		d.Logger.Info("database connected and migrations completed successfully")
	}
	return nil
}

// initRepositories initializes all repository layer dependencies
func (d *Dependencies) initRepositories() {
	d.UserRepo = user.NewPostgresUserRepo(d.DB.Pool, d.Logger)
	d.SubscriptionRepo = subscription.NewPostgresRepository(d.DB.Pool, d.Logger)

	switch d.Config.Onboarding.DraftBackend {
	case "postgres":
		store := onboarding.NewPostgresDraftStore(d.DB.Pool, d.Logger)
		ctx, cancel := context.WithCancel(context.Background())
		d.janitorCancel = cancel
		go store.RunJanitor(ctx, d.Config.Onboarding.DraftTTL, janitorInterval)
		d.DraftStore = store
	default:
		d.DraftStore = onboarding.NewMemoryDraftStore(d.Config.Onboarding.DraftTTL)
	}

	d.Logger.Info("repositories initialized", slog.String("draft_backend", d.Config.Onboarding.DraftBackend))
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices() error {
	d.AuthProvider = session.NewGoTrueClient(d.Config.Supabase.URL, d.Config.Supabase.AnonKey, outboundTimeout)

	// The gate only gets a local verifier; without one it resolves users
	// through the provider itself.
	var localVerifier interceptors.TokenVerifier
	if secret := d.Config.Supabase.JWTSecret; secret != "" {
		localVerifier = interceptors.NewJWTVerifier([]byte(secret), "authenticated")
		d.Verifier = localVerifier
	} else {
		d.Logger.Warn("SUPABASE_JWT_SECRET is empty; access tokens are verified against the auth provider")
		d.Verifier = session.NewRemoteVerifier(d.AuthProvider)
	}

	d.UserService = user.NewUserService(d.UserRepo, d.Logger)
	d.Gate = session.NewGate(d.AuthProvider, localVerifier, d.UserService, d.UserService, d.Logger)

	d.Onboarding = onboarding.NewService(d.DraftStore, d.UserRepo, d.Config.Onboarding.SaveTimeout, d.Logger)

	rc := d.Config.RevenueCat
	var client billing.Client
	switch {
	case rc.SecretAPIKey != "":
		client = billing.NewRESTClient(rc.APIBaseURL, rc.SecretAPIKey, outboundTimeout)
	case rc.PublicAPIKey != "":
		client = billing.NewRESTClient(rc.APIBaseURL, rc.PublicAPIKey, outboundTimeout)
	default:
		d.Logger.Warn("RevenueCat API key is not configured; billing RPCs are disabled")
	}
	d.Billing = billing.NewRegistry(client, billing.Settings{
		EntitlementID:   rc.EntitlementID,
		OfferingID:      rc.OfferingID,
		WebPurchaseLink: rc.WebPurchaseLink,
	}, d.Logger)
	d.Gate.Subscribe(d.Billing.OnAuthEvent)

	d.Dispatcher = webhook.NewDispatcher(d.SubscriptionRepo, d.UserRepo, rc.FailurePolicy, d.Logger)
	d.DashboardSvc = dashboard.NewService(d.UserService, d.SubscriptionRepo, d.Logger)

	d.Logger.Info("services initialized")
	return nil
}

// initHandlers initializes all handler layer dependencies
func (d *Dependencies) initHandlers() error {
	cookieSecret := d.Config.Session.CookieSecret
	if cookieSecret == "" {
		key := securecookie.GenerateRandomKey(32)
		if key == nil {
			return errors.New("failed to generate session cookie key")
		}
		cookieSecret = string(key)
		d.Logger.Warn("SESSION_COOKIE_SECRET is empty; using an ephemeral key, sessions end on restart")
	}

	if d.Config.RevenueCat.WebhookAuthSecret == "" {
		d.Logger.Warn("REVENUECAT_WEBHOOK_AUTH_HEADER is empty; webhook accepts unauthenticated requests")
	}

	d.OnboardingHandler = onboarding.NewHandler(d.Onboarding, d.Logger)
	d.SessionHandler = session.NewHandler(d.Gate, d.AuthProvider, d.Logger)
	d.OAuthHandler = session.NewOAuthHandler(d.Gate, d.AuthProvider, session.OAuthConfig{
		CookieName:   d.Config.Session.CookieName,
		CookieSecret: cookieSecret,
		Secure:       d.Config.Session.Secure,
		MaxAge:       d.Config.Session.MaxAge,
		PublicURL:    d.Config.Server.PublicBaseURL,
		APIURL:       d.Config.Server.APIBaseURL,
	}, d.Logger)
	d.BillingHandler = billing.NewHandler(d.Billing, d.Logger)
	d.DashboardHandler = dashboard.NewHandler(d.DashboardSvc, d.Logger)
	d.WebhookHandler = webhook.NewHandler(d.Dispatcher, d.Config.RevenueCat.WebhookAuthSecret, d.Logger)

	d.Logger.Info("handlers initialized")
	return nil
}

// Cleanup stops background work and closes the database pool.
func (d *Dependencies) Cleanup() {
	if d.janitorCancel != nil {
		d.janitorCancel()
	}
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("dependencies cleaned up")
}
