package api

import (
	"encoding/json"
	"net/http"
	"slices"

	"connectrpc.com/connect"
	connectcors "connectrpc.com/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"

	"github.com/FACorreiaa/peakheight-api/internal/domain/billing"
	"github.com/FACorreiaa/peakheight-api/internal/domain/dashboard"
	"github.com/FACorreiaa/peakheight-api/internal/domain/onboarding"
	"github.com/FACorreiaa/peakheight-api/internal/domain/session"
	"github.com/FACorreiaa/peakheight-api/internal/domain/webhook"
	"github.com/FACorreiaa/peakheight-api/pkg/interceptors"
	"github.com/FACorreiaa/peakheight-api/pkg/observability"
)

const requestIDHeader = "X-Request-ID"

// SetupRouter configures all routes and returns the HTTP handler
func SetupRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	publicProcedures := slices.Concat(onboarding.PublicProcedures, session.PublicProcedures)

	tracer := otel.GetTracerProvider().Tracer("peakheight/api")

	chain := []connect.Interceptor{
		interceptors.NewRequestIDInterceptor(requestIDHeader),
		interceptors.NewTracingInterceptor(tracer),
	}
	if deps.Config.Server.RateLimitPerSecond > 0 && deps.Config.Server.RateLimitBurst > 0 {
		limiter := rate.NewLimiter(
			rate.Limit(float64(deps.Config.Server.RateLimitPerSecond)),
			deps.Config.Server.RateLimitBurst,
		)
		chain = append(chain, interceptors.NewRateLimitInterceptor(limiter))
	}
	chain = append(chain,
		interceptors.NewRecoveryInterceptor(deps.Logger),
		interceptors.NewLoggingInterceptor(deps.Logger),
		interceptors.NewAuthInterceptor(deps.Verifier, publicProcedures...),
		observability.NewMetricsInterceptor(),
	)
	interceptorChain := connect.WithInterceptors(chain...)

	registerConnectRoutes(mux, deps, interceptorChain)

	registerHTTPRoutes(mux, deps)

	registerUtilityRoutes(mux, deps)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   connectcors.AllowedMethods(),
		AllowedHeaders:   append(connectcors.AllowedHeaders(), "Authorization", requestIDHeader),
		ExposedHeaders:   append(connectcors.ExposedHeaders(), requestIDHeader),
		AllowCredentials: true,
		MaxAge:           7200,
	})

	return corsHandler.Handler(mux)
}

// registerConnectRoutes registers all Connect RPC services
func registerConnectRoutes(mux *http.ServeMux, deps *Dependencies, opts connect.HandlerOption) {
	paths := make([]string, 0, 4)
	mount := func(path string, h http.Handler) {
		mux.Handle(path, h)
		paths = append(paths, path)
	}

	mount(onboarding.NewServiceHandler(deps.OnboardingHandler, opts))
	mount(session.NewServiceHandler(deps.SessionHandler, opts))
	mount(billing.NewServiceHandler(deps.BillingHandler, opts))
	mount(dashboard.NewServiceHandler(deps.DashboardHandler, opts))

	for _, p := range paths {
		deps.Logger.Info("registered Connect RPC service", "path", p)
	}
	deps.Logger.Info("Connect RPC routes configured")
}

// registerHTTPRoutes registers the plain HTTP endpoints the browser and the
// billing provider call directly.
func registerHTTPRoutes(mux *http.ServeMux, deps *Dependencies) {
	mux.Handle(webhook.Path, interceptors.HTTPMiddleware(deps.Logger, requestIDHeader, deps.WebhookHandler))
	deps.Logger.Info("registered webhook", "path", webhook.Path)

	authMux := http.NewServeMux()
	deps.OAuthHandler.Register(authMux)
	mux.Handle("/auth/", interceptors.HTTPMiddleware(deps.Logger, requestIDHeader, authMux))
	deps.Logger.Info("registered oauth routes", "path", "/auth/")
}

// registerUtilityRoutes registers health check, metrics, and other utility routes
func registerUtilityRoutes(mux *http.ServeMux, deps *Dependencies) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		if err := deps.DB.Health(); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "database unhealthy")
			return
		}
		writeStatus(w, http.StatusOK, "ok")
	})
	deps.Logger.Info("registered health check", "path", "/health")

	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ready")
	})
	deps.Logger.Info("registered readiness check", "path", "/ready")

	if deps.Config.Observability.MetricsEnabled {
		mux.Handle("GET /metrics", promhttp.Handler())
		deps.Logger.Info("registered metrics endpoint", "path", "/metrics")
	}
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
