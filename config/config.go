// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/songzhibin97/mediaflow/workflow"
)

// Storage backends
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

// Config holds all configuration for the mediaflow service
type Config struct {
	HTTPPort int    `env:"MEDIAFLOW_HTTP_PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	// BaseURL prefixes share links handed back to clients. Empty yields relative links.
	BaseURL string `env:"MEDIAFLOW_BASE_URL"`

	Storage  StorageConfig
	Redis    RedisConfig
	Engine   EngineConfig
	Provider ProviderConfig

	ShutdownTimeout time.Duration `env:"MEDIAFLOW_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// StorageConfig selects where share links and run records live
type StorageConfig struct {
	Backend      string        `env:"MEDIAFLOW_STORAGE" envDefault:"memory"`
	RunRetention time.Duration `env:"MEDIAFLOW_RUN_RETENTION" envDefault:"24h"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	IdleTimeout  time.Duration `env:"REDIS_IDLE_TIMEOUT" envDefault:"5m"`
}

// EngineConfig tunes workflow execution
type EngineConfig struct {
	FailurePolicy string        `env:"MEDIAFLOW_FAILURE_POLICY" envDefault:"continue"`
	Concurrency   int           `env:"MEDIAFLOW_CONCURRENCY" envDefault:"1"`
	NodeTimeout   time.Duration `env:"MEDIAFLOW_NODE_TIMEOUT" envDefault:"10m"`
	RunTimeout    time.Duration `env:"MEDIAFLOW_RUN_TIMEOUT" envDefault:"1h"`
}

// ProviderConfig points at the generation API
type ProviderConfig struct {
	// Stub replaces the HTTP provider with a deterministic local one.
	Stub           bool          `env:"PROVIDER_STUB" envDefault:"false"`
	BaseURL        string        `env:"PROVIDER_BASE_URL"`
	APIKey         string        `env:"PROVIDER_API_KEY"`
	RequestTimeout time.Duration `env:"PROVIDER_REQUEST_TIMEOUT" envDefault:"5m"`
}

// Load reads configuration from environment variables
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

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	switch c.Storage.Backend {
	case StorageMemory:
	case StorageRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis address is required")
		}
	default:
		return fmt.Errorf("unsupported storage backend: %s (must be memory or redis)", c.Storage.Backend)
	}

	if _, err := workflow.ParseFailurePolicy(c.Engine.FailurePolicy); err != nil {
		return err
	}
	if c.Engine.Concurrency < 1 {
		return fmt.Errorf("engine concurrency must be at least 1")
	}
	if c.Engine.NodeTimeout < 0 || c.Engine.RunTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}

	if !c.Provider.Stub && c.Provider.BaseURL == "" {
		return fmt.Errorf("provider base URL is required unless PROVIDER_STUB is set")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// FailurePolicy returns the parsed engine failure policy. Call after Validate.
func (c *Config) FailurePolicy() workflow.FailurePolicy {
	p, _ := workflow.ParseFailurePolicy(c.Engine.FailurePolicy)
	return p
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
