// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL) holding accounts, usage events and operator keys
	DatabaseURL       string        `env:"DATABASE_URL,required"`
	DBMaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns        int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"30m"`

	// Cache (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts. WriteTimeout must outlive UpstreamTimeout.
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"90s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Identity provider (GoTrue-compatible)
	IdentityURL      string        `env:"IDENTITY_URL,required"`
	IdentityAPIKey   string        `env:"IDENTITY_API_KEY,required"`
	IdentityTimeout  time.Duration `env:"IDENTITY_TIMEOUT" envDefault:"5s"`
	IdentityCacheTTL time.Duration `env:"IDENTITY_CACHE_TTL" envDefault:"1m"`

	// Upstream LLM provider (OpenAI-compatible chat completions)
	UpstreamBaseURL string        `env:"UPSTREAM_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
	UpstreamAPIKey  string        `env:"UPSTREAM_API_KEY,required"`
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"60s"`
	// Optional OpenRouter attribution headers
	UpstreamReferer string `env:"UPSTREAM_REFERER" envDefault:""`
	UpstreamTitle   string `env:"UPSTREAM_TITLE" envDefault:"tollgate"`

	// Metering policy
	DefaultModel        string `env:"DEFAULT_MODEL" envDefault:"anthropic/claude-3.5-sonnet"`
	DefaultMaxTokens    int    `env:"DEFAULT_MAX_TOKENS" envDefault:"4000"`
	FallbackUsageTokens int64  `env:"FALLBACK_USAGE_TOKENS" envDefault:"500"`

	// Billing
	BillingWebhookSecret string        `env:"BILLING_WEBHOOK_SECRET,required"`
	BillingReplayWindow  time.Duration `env:"BILLING_REPLAY_WINDOW" envDefault:"5m"`
	BillingDedupTTL      time.Duration `env:"BILLING_DEDUP_TTL" envDefault:"72h"`
	ProAllowance         int64         `env:"PRO_ALLOWANCE" envDefault:"500000"`
	FreeAllowance        int64         `env:"FREE_ALLOWANCE" envDefault:"10000"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	// A single "*" allows any origin without credentials.
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

// Validate checks cross-field constraints that struct tags cannot express.
func (c *Config) Validate() error {
	if c.FallbackUsageTokens <= 0 {
		return fmt.Errorf("FALLBACK_USAGE_TOKENS must be > 0, got %d", c.FallbackUsageTokens)
	}
	if c.DefaultMaxTokens <= 0 {
		return fmt.Errorf("DEFAULT_MAX_TOKENS must be > 0, got %d", c.DefaultMaxTokens)
	}
	if c.ProAllowance <= 0 || c.FreeAllowance <= 0 {
		return fmt.Errorf("PRO_ALLOWANCE and FREE_ALLOWANCE must be > 0")
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be positive")
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
