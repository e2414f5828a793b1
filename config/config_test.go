package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songzhibin97/mediaflow/workflow"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PROVIDER_STUB", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, ":8080", cfg.GetHTTPAddr())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, StorageMemory, cfg.Storage.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Storage.RunRetention)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 1, cfg.Engine.Concurrency)
	assert.Equal(t, 10*time.Minute, cfg.Engine.NodeTimeout)
	assert.Equal(t, workflow.ContinueOnFailure, cfg.FailurePolicy())
	assert.True(t, cfg.Provider.Stub)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MEDIAFLOW_HTTP_PORT", "9000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("MEDIAFLOW_STORAGE", "redis")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("MEDIAFLOW_FAILURE_POLICY", "block")
	t.Setenv("MEDIAFLOW_CONCURRENCY", "4")
	t.Setenv("MEDIAFLOW_NODE_TIMEOUT", "90s")
	t.Setenv("PROVIDER_BASE_URL", "https://gen.example.com")
	t.Setenv("PROVIDER_API_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.HTTPPort)
	assert.Equal(t, StorageRedis, cfg.Storage.Backend)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, workflow.BlockDependents, cfg.FailurePolicy())
	assert.Equal(t, 4, cfg.Engine.Concurrency)
	assert.Equal(t, 90*time.Second, cfg.Engine.NodeTimeout)
	assert.Equal(t, "https://gen.example.com", cfg.Provider.BaseURL)
	assert.Equal(t, "secret", cfg.Provider.APIKey)
	assert.False(t, cfg.Provider.Stub)
}

func TestLoad_ParseError(t *testing.T) {
	t.Setenv("MEDIAFLOW_HTTP_PORT", "not-a-port")
	_, err := Load()
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			HTTPPort: 8080,
			LogLevel: "info",
			Storage:  StorageConfig{Backend: StorageMemory},
			Redis:    RedisConfig{Addr: "localhost:6379"},
			Engine:   EngineConfig{FailurePolicy: "continue", Concurrency: 1},
			Provider: ProviderConfig{Stub: true},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"port out of range", func(c *Config) { c.HTTPPort = 70000 }, "invalid HTTP port"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "s3" }, "unsupported storage backend"},
		{"redis without address", func(c *Config) { c.Storage.Backend = StorageRedis; c.Redis.Addr = "" }, "redis address is required"},
		{"bad policy", func(c *Config) { c.Engine.FailurePolicy = "retry" }, "unknown failure policy"},
		{"zero concurrency", func(c *Config) { c.Engine.Concurrency = 0 }, "concurrency must be at least 1"},
		{"negative timeout", func(c *Config) { c.Engine.NodeTimeout = -time.Second }, "must not be negative"},
		{"no provider", func(c *Config) { c.Provider.Stub = false }, "provider base URL is required"},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, "invalid log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}
