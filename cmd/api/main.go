// Package main is the entrypoint for the developer dashboard API server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/devportal/devportal/internal/auth"
	"github.com/devportal/devportal/internal/cache"
	"github.com/devportal/devportal/internal/config"
	"github.com/devportal/devportal/internal/handler"
	"github.com/devportal/devportal/internal/ledger"
	"github.com/devportal/devportal/internal/metrics"
	"github.com/devportal/devportal/internal/middleware"
	"github.com/devportal/devportal/internal/payments"
	"github.com/devportal/devportal/internal/repository"
	"github.com/devportal/devportal/internal/server"
	"github.com/devportal/devportal/internal/service"
)

func main() {
	ctx := context.Background()

	// Local development reads .env; deployed environments set variables directly.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	// Metrics
	recorder, metricsHandler := initMetrics(cfg)

	// Ledger (credit service)
	ledgerClient := ledger.New(cfg.CreditServiceURL, cfg.CreditServiceToken, cfg.LedgerTimeout,
		ledger.WithObserver(func(op string, err error, d time.Duration) {
			outcome := metrics.OutcomeSuccess
			if err != nil {
				outcome = metrics.OutcomeFailure
			}
			recorder.ObserveLedgerCall(op, outcome, d)
		}),
	)

	// Identity
	privy, err := auth.NewPrivyVerifier(auth.PrivyConfig{
		AppID:           cfg.PrivyAppID,
		AppSecret:       cfg.PrivyAppSecret,
		VerificationKey: cfg.PrivyVerificationKey,
		APIURL:          cfg.PrivyAPIURL,
	})
	if err != nil {
		logger.Error("failed to initialize identity verifier", slog.String("error", err.Error()))
		os.Exit(1)
	}
	var verifier auth.Verifier = privy

	// Components closed after the HTTP server drains, in reverse order.
	type closer struct {
		name string
		fn   server.ShutdownFunc
	}
	var closers []closer

	health := struct{ db, cache handler.HealthChecker }{}

	// Optional webhook event log
	var events service.EventLog
	if cfg.DatabaseURL != "" {
		repo, err := repository.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error(
				"failed to connect to database",
				slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
				slog.String("database_url", redactURL(cfg.DatabaseURL)),
			)
			os.Exit(1)
		}
		closers = append(closers, closer{"postgres", func(context.Context) error {
			repo.Close()
			return nil
		}})
		events = repository.NewWebhookEventRepository(repo)
		health.db = repo
		logger.Info("connected to database")
	} else {
		logger.Warn("DATABASE_URL not set; webhook redeliveries are not deduplicated")
	}

	// Optional claims cache and rate limiter
	var cacheClient *cache.Cache
	if cfg.RedisURL != "" {
		cacheClient, err = cache.New(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error(
				"failed to connect to Redis",
				slog.String("error", sanitizeError(err, cfg.RedisURL)),
				slog.String("redis_url", redactURL(cfg.RedisURL)),
			)
			os.Exit(1)
		}
		closers = append(closers, closer{"redis", func(context.Context) error {
			return cacheClient.Close()
		}})
		verifier = auth.NewCachingVerifier(privy, cacheClient)
		health.cache = cacheClient
		logger.Info("connected to Redis")
	}

	// Services
	processor := payments.NewStripe(payments.StripeConfig{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
	})
	credits := service.NewCreditService(ledgerClient, processor, logger, recorder, service.CreditConfig{
		WelcomeCredit:     cfg.WelcomeCredit,
		TrialMonthlyLimit: cfg.TrialMonthlyLimit,
	})
	billing := service.NewBillingService(processor, credits, events, logger, recorder, cfg.FrontendURL)
	inference := service.NewInferenceService(credits, logger, service.InferenceConfig{
		APIURL:   cfg.InferenceAPIURL,
		UsageURL: cfg.InferenceUsageURL,
		Timeout:  cfg.LedgerTimeout,
	})

	gateCfg := middleware.GateConfig{
		Logger:      logger,
		Verifier:    verifier,
		Credentials: ledgerClient,
		Metrics:     recorder,
	}
	routerCfg := server.RouterConfig{
		Logger:         logger,
		Metrics:        recorder,
		MetricsHandler: metricsHandler,
		Health:         handler.NewHealthHandler(ledgerClient, health.db, health.cache),
		Credentials:    handler.NewCredentialHandler(logger, credits),
		Users:          handler.NewUserHandler(logger, credits),
		Billing:        handler.NewBillingHandler(logger, billing),
		Webhook:        handler.NewWebhookHandler(logger, billing),
		Inference:      handler.NewInferenceHandler(logger, inference),
		CORSOrigins:    cfg.CORSOrigins(),
		IsDevelopment:  cfg.IsDevelopment(),
		MaxBodySize:    cfg.MaxRequestBodySize,
	}
	if cacheClient != nil && cfg.RateLimitAPIEnabled {
		gateCfg.Limiter = cacheClient
		gateCfg.RatePerMinute = cfg.RateLimitUserRPM
		gateCfg.Burst = cfg.RateLimitUserBurst
		routerCfg.IPLimiter = cacheClient
		routerCfg.IPRPS = cfg.RateLimitIPRPS
		routerCfg.IPBurst = cfg.RateLimitIPBurst
	}
	routerCfg.Gates = middleware.NewGates(gateCfg)

	srv := server.New(
		server.NewRouter(routerCfg),
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)
	for _, c := range closers {
		srv.OnShutdown(c.name, c.fn)
	}

	logger.Info("starting server",
		slog.Int("port", cfg.AppPort),
		slog.String("env", cfg.AppEnv),
		slog.String("credit_service_url", redactURL(cfg.CreditServiceURL)),
		slog.Bool("event_log", events != nil),
		slog.Bool("claims_cache", cacheClient != nil),
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// initMetrics returns the recorder and the /metrics handler. Prometheus
// backs both when enabled; otherwise in-memory counters are exposed.
func initMetrics(cfg *config.Config) (metrics.Recorder, http.Handler) {
	if cfg.MetricsEnabled {
		prom := metrics.NewPrometheus()
		return prom, prom.Handler()
	}
	mem := metrics.NewInMemory()
	return mem, http.HandlerFunc(handler.NewMetricsHandler(mem).Metrics)
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

// redactURL strips passwords from connection strings before logging.
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		if username := parsed.User.Username(); username != "" {
			parsed.User = url.User(username)
		} else {
			parsed.User = url.User("redacted")
		}
	}

	return parsed.String()
}

// sanitizeError replaces any secret found in err's message with its
// redacted form.
func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
