// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// ErrNoVerificationKey is returned when neither a Privy verification key nor
// an app secret to fetch one is configured.
var ErrNoVerificationKey = errors.New("PRIVY_VERIFICATION_KEY or PRIVY_APP_SECRET must be set")

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Ledger (credit/credential) service
	CreditServiceURL   string        `env:"CREDIT_SERVICE_URL,required,notEmpty"`
	CreditServiceToken string        `env:"CREDIT_SERVICE_TOKEN,required,notEmpty"`
	LedgerTimeout      time.Duration `env:"LEDGER_TIMEOUT" envDefault:"30s"`

	// Identity provider (Privy)
	PrivyAppID           string `env:"PRIVY_APP_ID,required,notEmpty"`
	PrivyAppSecret       string `env:"PRIVY_APP_SECRET"`
	PrivyVerificationKey string `env:"PRIVY_VERIFICATION_KEY"`
	PrivyAPIURL          string `env:"PRIVY_API_URL" envDefault:"https://auth.privy.io"`

	// Payment processor (Stripe)
	StripeSecretKey     string `env:"STRIPE_SECRET_KEY,required,notEmpty"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET,required,notEmpty"`

	// Browser-facing URL used for checkout and portal redirects when the
	// request carries no Origin header.
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`

	// Credits policy
	WelcomeCredit     float64 `env:"WELCOME_CREDIT" envDefault:"1.0"`
	TrialMonthlyLimit float64 `env:"TRIAL_MONTHLY_LIMIT" envDefault:"1.0"`

	// Inference API (test requests and usage stats)
	InferenceAPIURL   string `env:"INFERENCE_API_URL" envDefault:"https://api.nilai.nillion.network"`
	InferenceUsageURL string `env:"INFERENCE_USAGE_URL" envDefault:"https://api.nilai.nillion.network"`

	// Optional infrastructure. Empty disables the feature.
	RedisURL    string `env:"REDIS_URL"`
	DatabaseURL string `env:"DATABASE_URL"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Rate limiting (requires Redis)
	RateLimitAPIEnabled bool `env:"RATE_LIMIT_API_ENABLED" envDefault:"true"`
	RateLimitUserRPM    int  `env:"RATE_LIMIT_USER_RPM" envDefault:"120"`
	RateLimitUserBurst  int  `env:"RATE_LIMIT_USER_BURST" envDefault:"30"`
	RateLimitIPRPS      int  `env:"RATE_LIMIT_IP_RPS" envDefault:"20"`
	RateLimitIPBurst    int  `env:"RATE_LIMIT_IP_BURST" envDefault:"40"`

	// Metrics
	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// CORSOrigins returns the configured origins plus the frontend URL when it
// is set and not already listed.
func (c *Config) CORSOrigins() []string {
	origins := c.GetCORSAllowedOrigins()
	frontend := strings.TrimSpace(c.FrontendURL)
	if frontend == "" || slices.Contains(origins, frontend) {
		return origins
	}
	return append(origins, frontend)
}

// Validate checks cross-field constraints that struct tags cannot express.
func (c *Config) Validate() error {
	if c.PrivyVerificationKey == "" && c.PrivyAppSecret == "" {
		return ErrNoVerificationKey
	}
	if c.WelcomeCredit < 0 {
		return fmt.Errorf("WELCOME_CREDIT must not be negative, got %v", c.WelcomeCredit)
	}
	if c.TrialMonthlyLimit <= 0 {
		return fmt.Errorf("TRIAL_MONTHLY_LIMIT must be positive, got %v", c.TrialMonthlyLimit)
	}
	return nil
}

// Load parses environment variables and returns a Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
