// Package config loads the cart service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/utafrali/storefront-cart/internal/session"
	pkgconfig "github.com/utafrali/storefront-cart/pkg/config"
)

// Config holds all configuration for the cart service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort           int      `env:"CART_HTTP_PORT" envDefault:"8080"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	CreateRateRPS      float64  `env:"CART_CREATE_RATE_RPS" envDefault:"5"`
	CreateRateBurst    int      `env:"CART_CREATE_RATE_BURST" envDefault:"10"`

	// Platform basket API
	BasketAPIURL     string `env:"BASKET_API_URL" envDefault:"http://localhost:9000/api/v1"`
	BasketAPITimeout int    `env:"BASKET_API_TIMEOUT" envDefault:"30"`

	// Cart sessions
	DebounceMS            int    `env:"CART_DEBOUNCE_MS" envDefault:"300"`
	DebounceScope         string `env:"CART_DEBOUNCE_SCOPE" envDefault:"item"`
	SessionIdleTTLMinutes int    `env:"SESSION_IDLE_TTL_MINUTES" envDefault:"30"`

	// Redis product data cache. An empty address disables the cache.
	RedisAddr             string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass             string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB               int    `env:"REDIS_DB" envDefault:"0"`
	ProductDataTTLSeconds int    `env:"PRODUCT_DATA_TTL_SECONDS" envDefault:"60"`
	RedisSlowCommandMS    int    `env:"REDIS_SLOW_COMMAND_MS" envDefault:"100"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// OpenTelemetry
	OTELEnabled      bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint     string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate   float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
	OTELServiceBuild string  `env:"SERVICE_VERSION" envDefault:"0.1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load cart config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if u, err := url.Parse(c.BasketAPIURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("BASKET_API_URL must be an absolute URL, got %q", c.BasketAPIURL)
	}
	if c.CreateRateRPS < 0 {
		return fmt.Errorf("CART_CREATE_RATE_RPS must not be negative, got %v", c.CreateRateRPS)
	}
	if c.CreateRateRPS > 0 && c.CreateRateBurst < 1 {
		return fmt.Errorf("CART_CREATE_RATE_BURST must be positive, got %d", c.CreateRateBurst)
	}
	if c.BasketAPITimeout < 1 {
		return fmt.Errorf("BASKET_API_TIMEOUT must be positive, got %d", c.BasketAPITimeout)
	}
	if c.DebounceMS < 0 {
		return fmt.Errorf("CART_DEBOUNCE_MS must not be negative, got %d", c.DebounceMS)
	}
	if _, ok := session.ParseScope(c.DebounceScope); !ok {
		return fmt.Errorf("CART_DEBOUNCE_SCOPE must be item or session, got %q", c.DebounceScope)
	}
	if c.SessionIdleTTLMinutes < 1 {
		return fmt.Errorf("SESSION_IDLE_TTL_MINUTES must be positive, got %d", c.SessionIdleTTLMinutes)
	}
	if c.ProductDataTTLSeconds < 1 {
		return fmt.Errorf("PRODUCT_DATA_TTL_SECONDS must be positive, got %d", c.ProductDataTTLSeconds)
	}
	if c.RedisSlowCommandMS < 0 {
		return fmt.Errorf("REDIS_SLOW_COMMAND_MS must not be negative, got %d", c.RedisSlowCommandMS)
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %v", c.OTELSampleRate)
	}
	return nil
}

// BasketTimeout returns BASKET_API_TIMEOUT as a duration.
func (c *Config) BasketTimeout() time.Duration {
	return time.Duration(c.BasketAPITimeout) * time.Second
}

// Debounce returns CART_DEBOUNCE_MS as a duration.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// Scope returns the parsed CART_DEBOUNCE_SCOPE.
func (c *Config) Scope() session.Scope {
	scope, _ := session.ParseScope(c.DebounceScope)
	return scope
}

// SessionIdleTTL returns SESSION_IDLE_TTL_MINUTES as a duration.
func (c *Config) SessionIdleTTL() time.Duration {
	return time.Duration(c.SessionIdleTTLMinutes) * time.Minute
}

// ProductDataTTL returns PRODUCT_DATA_TTL_SECONDS as a duration.
func (c *Config) ProductDataTTL() time.Duration {
	return time.Duration(c.ProductDataTTLSeconds) * time.Second
}

// RedisSlowCommand returns REDIS_SLOW_COMMAND_MS as a duration. Zero disables
// slow command logging.
func (c *Config) RedisSlowCommand() time.Duration {
	return time.Duration(c.RedisSlowCommandMS) * time.Millisecond
}
