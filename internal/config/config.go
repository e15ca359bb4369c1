// Package config loads and validates service configuration from the environment
// and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Rate limiter strategies.
const (
	StrategyFixedWindow = "fixed_window"
	StrategyTokenBucket = "token_bucket"
)

// MinSecretBytes is the shortest HS256 signing key accepted at startup.
const MinSecretBytes = 32

// Config holds application configuration.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on.
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr enables the gRPC health service when non-empty.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN; empty selects the in-memory stores.
	DatabaseURL    string `mapstructure:"DATABASE_URL"`
	MigrateOnStart bool   `mapstructure:"MIGRATE_ON_START"`

	JWTSecret  string        `mapstructure:"JWT_SECRET"`
	JWTIssuer  string        `mapstructure:"JWT_ISSUER"`
	AccessTTL  time.Duration `mapstructure:"JWT_ACCESS_TTL"`
	RefreshTTL time.Duration `mapstructure:"JWT_REFRESH_TTL"`
	BcryptCost int           `mapstructure:"BCRYPT_COST"`

	RateLimitRequests int           `mapstructure:"RATE_LIMIT_REQUESTS"`
	RateLimitWindow   time.Duration `mapstructure:"RATE_LIMIT_WINDOW"`
	RateLimitStrategy string        `mapstructure:"RATE_LIMIT_STRATEGY"`
	// TrustProxyHeaders makes the limiter key on the first X-Forwarded-For hop.
	TrustProxyHeaders bool `mapstructure:"TRUST_PROXY_HEADERS"`

	CookieSecure bool  `mapstructure:"COOKIE_SECURE"`
	MaxBodyBytes int64 `mapstructure:"MAX_BODY_BYTES"`

	CleanupInterval time.Duration `mapstructure:"CLEANUP_INTERVAL"`
	// CleanupAt is the wall-clock time (HH:MM, local) of the first cleanup run.
	CleanupAt string `mapstructure:"CLEANUP_AT"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
	Env       string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then environment variables, and validates the result.
// Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // missing .env is fine

	v.AutomaticEnv()
	v.AllowEmptyEnv(true) // CLEANUP_AT= disables the wall-clock alignment

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("MIGRATE_ON_START", true)
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "notebook")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_WINDOW", "60s")
	v.SetDefault("RATE_LIMIT_STRATEGY", StrategyFixedWindow)
	v.SetDefault("TRUST_PROXY_HEADERS", false)
	v.SetDefault("COOKIE_SECURE", true)
	v.SetDefault("MAX_BODY_BYTES", 1<<20)
	v.SetDefault("CLEANUP_INTERVAL", "24h")
	v.SetDefault("CLEANUP_AT", "03:00")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks invariants that would otherwise surface as runtime failures.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if len(c.JWTSecret) < MinSecretBytes {
		return fmt.Errorf("config: JWT_SECRET must be at least %d bytes", MinSecretBytes)
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return errors.New("config: JWT_ACCESS_TTL and JWT_REFRESH_TTL must be positive")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		return errors.New("config: RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive")
	}
	switch c.RateLimitStrategy {
	case StrategyFixedWindow, StrategyTokenBucket:
	default:
		return fmt.Errorf("config: unknown RATE_LIMIT_STRATEGY %q", c.RateLimitStrategy)
	}
	if c.MaxBodyBytes <= 0 {
		return errors.New("config: MAX_BODY_BYTES must be positive")
	}
	if c.CleanupInterval <= 0 {
		return errors.New("config: CLEANUP_INTERVAL must be positive")
	}
	if _, _, err := c.CleanupClock(); err != nil {
		return err
	}
	if !c.CookieSecure && c.Env == "production" {
		return errors.New("config: COOKIE_SECURE must not be false when APP_ENV=production")
	}
	return nil
}

// CleanupClock parses CleanupAt. hour and minute are -1 when the schedule is
// not aligned to a time of day.
func (c *Config) CleanupClock() (hour, minute int, err error) {
	s := strings.TrimSpace(c.CleanupAt)
	if s == "" {
		return -1, -1, nil
	}
	hh, mm, found := strings.Cut(s, ":")
	if !found {
		return 0, 0, fmt.Errorf("config: CLEANUP_AT %q must be HH:MM", s)
	}
	hour, err1 := strconv.Atoi(hh)
	minute, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("config: CLEANUP_AT %q must be HH:MM", s)
	}
	return hour, minute, nil
}
