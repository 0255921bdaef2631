package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/devportal/devportal/internal/handler"
	"github.com/devportal/devportal/internal/metrics"
	"github.com/devportal/devportal/internal/middleware"
)

// RouterConfig holds everything the router mounts.
type RouterConfig struct {
	Logger  *slog.Logger
	Metrics metrics.Recorder
	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler

	Gates       *middleware.Gates
	Health      *handler.HealthHandler
	Credentials *handler.CredentialHandler
	Users       *handler.UserHandler
	Billing     *handler.BillingHandler
	Webhook     *handler.WebhookHandler
	Inference   *handler.InferenceHandler

	// Per-IP limit on the unauthenticated webhook route.
	IPLimiter middleware.IPLimiter
	IPRPS     int
	IPBurst   int

	CORSOrigins   []string
	IsDevelopment bool
	MaxBodySize   int64
}

// NewRouter configures the chi router with all routes and middleware.
func NewRouter(cfg RouterConfig) *chi.Mux {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	h := handler.New()
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recoverer(cfg.Logger))
	r.Use(middleware.Metrics(cfg.Metrics))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment}))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins)))
	if cfg.MaxBodySize > 0 {
		r.Use(middleware.MaxBodySize(cfg.MaxBodySize))
	}

	// Probes
	r.Get("/healthz", cfg.Health.Healthz)
	r.Get("/readyz", cfg.Health.Readyz)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	g := cfg.Gates

	r.Route("/api", func(r chi.Router) {
		r.Route("/credential", func(r chi.Router) {
			r.Post("/", g.UserFromBody(cfg.Credentials.Create))
			r.Delete("/{credentialId}", g.CredentialOwner("credentialId", cfg.Credentials.Delete))
			r.Get("/user/{userId}", g.UserFromPath("userId", cfg.Credentials.ListByUser))
		})

		r.Route("/usage", func(r chi.Router) {
			r.Get("/", g.UserFromQuery(cfg.Inference.Usage))
			r.Get("/rate-limits/{credentialId}", g.CredentialOwner("credentialId", cfg.Credentials.GetRateLimits))
			r.Put("/rate-limits/{credentialId}", g.CredentialOwner("credentialId", cfg.Credentials.UpdateRateLimits))
			r.Get("/spending/{credentialId}", g.CredentialOwner("credentialId", cfg.Credentials.GetSpending))
		})

		r.Route("/users", func(r chi.Router) {
			r.Post("/", g.UserFromBody(cfg.Users.Create))
			r.Post("/topup", g.UserFromBody(cfg.Users.TopUp))
			r.Get("/{userId}", g.UserFromPath("userId", cfg.Users.Get))
		})

		r.Route("/stripe", func(r chi.Router) {
			r.Post("/create-checkout", g.UserFromBody(cfg.Billing.CreateCheckout))
			r.Post("/create-portal-session", g.UserFromBody(cfg.Billing.CreatePortal))
			r.Get("/invoices", g.UserFromQuery(cfg.Billing.Invoices))

			// Signature-verified, no bearer auth.
			r.With(middleware.RateLimitIP(middleware.RateLimitConfig{
				Logger:  cfg.Logger,
				Limiter: cfg.IPLimiter,
				RPS:     cfg.IPRPS,
				Burst:   cfg.IPBurst,
			})).Post("/webhook", cfg.Webhook.Stripe)
		})

		r.Post("/test-request", g.Authenticated(cfg.Inference.TestRequest))
	})

	// 404 and 405 handlers
	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}
