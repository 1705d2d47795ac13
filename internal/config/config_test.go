package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "WORKER_COUNT", "QUEUE_SIZE", "MAX_ATTEMPTS",
		"GEMINI_API_KEY", "GEMINI_MODEL", "GITHUB_API_URL", "DATABASE_URL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "test-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, 256, cfg.QueueSize)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, "gemini-2.0-flash", cfg.GeminiModel)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("PORT", "9090")
	t.Setenv("WORKER_COUNT", "8")
	t.Setenv("QUEUE_SIZE", "32")
	t.Setenv("MAX_ATTEMPTS", "5")
	t.Setenv("GEMINI_MODEL", "gemini-1.5-pro")
	t.Setenv("GITHUB_API_URL", "https://github.example.com/api/v3")
	t.Setenv("DATABASE_URL", "postgres://localhost/reviews")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 8, cfg.WorkerCount)
	assert.Equal(t, 32, cfg.QueueSize)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, "gemini-1.5-pro", cfg.GeminiModel)
	assert.Equal(t, "https://github.example.com/api/v3", cfg.GitHubAPIURL)
	assert.Equal(t, "postgres://localhost/reviews", cfg.DatabaseURL)
}

func TestLoadMissingAPIKey(t *testing.T) {
	clearEnv(t)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
}

func TestLoadBadInteger(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("WORKER_COUNT", "many")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WORKER_COUNT")
}

func TestValidateRanges(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero port", func(c *Config) { c.Port = 0 }, "PORT"},
		{"port too large", func(c *Config) { c.Port = 70000 }, "PORT"},
		{"zero workers", func(c *Config) { c.WorkerCount = 0 }, "WORKER_COUNT"},
		{"negative queue", func(c *Config) { c.QueueSize = -1 }, "QUEUE_SIZE"},
		{"zero attempts", func(c *Config) { c.MaxAttempts = 0 }, "MAX_ATTEMPTS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Port:         8080,
				WorkerCount:  4,
				QueueSize:    256,
				MaxAttempts:  3,
				GeminiAPIKey: "k",
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
