package config

import (
	"fmt"
	"time"

	env "github.com/Netflix/go-env"
)

// Config holds the application configuration
type Config struct {
	DatabaseURL string `env:"DATABASE_URL,default=postgres://localhost/hookshot?sslmode=disable"`
	HTTPAddr    string `env:"HTTP_ADDR,default=:8080"`
	GRPCAddr    string `env:"GRPC_ADDR,default=:50051"`
	RedisURL    string `env:"REDIS_URL"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`

	DeliveryConcurrency int           `env:"DELIVERY_CONCURRENCY,default=10"`
	EventConcurrency    int           `env:"EVENT_CONCURRENCY,default=5"`
	DeliveryMaxAttempts int           `env:"DELIVERY_MAX_ATTEMPTS,default=5"`
	DeliveryBaseDelay   time.Duration `env:"DELIVERY_BASE_DELAY,default=5s"`
	DeliveryTimeout     time.Duration `env:"DELIVERY_TIMEOUT,default=10s"`
	DeliveryUserAgent   string        `env:"DELIVERY_USER_AGENT,default=Hookshot-Webhooks/1.0"`
	ResponseBodyLimit   int           `env:"RESPONSE_BODY_LIMIT,default=1000"`

	SubscriptionCacheTTL time.Duration `env:"SUBSCRIPTION_CACHE_TTL,default=30s"`

	OTelEnabled  bool   `env:"OTEL_ENABLED,default=false"`
	OTelEndpoint string `env:"OTEL_ENDPOINT,default=localhost:4318"`
	ServiceName  string `env:"SERVICE_NAME,default=hookshot"`
	Environment  string `env:"ENVIRONMENT,default=development"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromEnvSet loads configuration from an explicit variable set.
func FromEnvSet(es env.EnvSet) (*Config, error) {
	var cfg Config
	if err := env.Unmarshal(es, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the delivery engine cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.DatabaseURL == "":
		return fmt.Errorf("invalid config: DATABASE_URL is required")
	case c.DeliveryConcurrency <= 0:
		return fmt.Errorf("invalid config: DELIVERY_CONCURRENCY must be positive, got %d", c.DeliveryConcurrency)
	case c.EventConcurrency <= 0:
		return fmt.Errorf("invalid config: EVENT_CONCURRENCY must be positive, got %d", c.EventConcurrency)
	case c.DeliveryMaxAttempts <= 0:
		return fmt.Errorf("invalid config: DELIVERY_MAX_ATTEMPTS must be positive, got %d", c.DeliveryMaxAttempts)
	case c.DeliveryBaseDelay <= 0:
		return fmt.Errorf("invalid config: DELIVERY_BASE_DELAY must be positive, got %s", c.DeliveryBaseDelay)
	case c.DeliveryTimeout <= 0:
		return fmt.Errorf("invalid config: DELIVERY_TIMEOUT must be positive, got %s", c.DeliveryTimeout)
	case c.ResponseBodyLimit <= 0:
		return fmt.Errorf("invalid config: RESPONSE_BODY_LIMIT must be positive, got %d", c.ResponseBodyLimit)
	}
	return nil
}
