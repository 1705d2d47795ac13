// Package config provides environment-driven configuration for the review
// service.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds everything the daemon needs to start. DATABASE_URL is
// optional; without it jobs live in process memory and do not survive a
// restart.
type Config struct {
	Port         int    // PORT, HTTP listen port
	WorkerCount  int    // WORKER_COUNT, concurrent pipeline executions
	QueueSize    int    // QUEUE_SIZE, pending job backlog capacity
	MaxAttempts  int    // MAX_ATTEMPTS, gateway retry budget per call
	GeminiAPIKey string // GEMINI_API_KEY, required
	GeminiModel  string // GEMINI_MODEL
	GitHubAPIURL string // GITHUB_API_URL, override for GitHub Enterprise or tests
	DatabaseURL  string // DATABASE_URL, PostgreSQL connection URL
}

// Load reads configuration from the environment, applying defaults for
// anything unset.
func Load() (*Config, error) {
	cfg := &Config{
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  envOr("GEMINI_MODEL", "gemini-2.0-flash"),
		GitHubAPIURL: os.Getenv("GITHUB_API_URL"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
	}

	var err error
	if cfg.Port, err = envInt("PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.WorkerCount, err = envInt("WORKER_COUNT", 4); err != nil {
		return nil, err
	}
	if cfg.QueueSize, err = envInt("QUEUE_SIZE", 256); err != nil {
		return nil, err
	}
	if cfg.MaxAttempts, err = envInt("MAX_ATTEMPTS", 3); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration can actually run the service.
func (c *Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("config error: GEMINI_API_KEY is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config error: PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("config error: WORKER_COUNT must be positive, got %d", c.WorkerCount)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("config error: QUEUE_SIZE must be positive, got %d", c.QueueSize)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("config error: MAX_ATTEMPTS must be positive, got %d", c.MaxAttempts)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config error: %s must be an integer, got %q", key, v)
	}
	return n, nil
}
