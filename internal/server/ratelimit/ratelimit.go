// Package ratelimit provides a token bucket rate limiter for review
// submissions, keyed by client.
package ratelimit

import (
	"os"
	"strconv"
	"sync"
	"time"
)

// Config controls the limiter. A zero Limit disables limiting entirely.
type Config struct {
	Enabled         bool
	Limit           int           // requests per window
	Window          time.Duration // refill window
	Burst           int           // bucket capacity, defaults to Limit
	CleanupInterval time.Duration // idle bucket eviction period
}

// LoadConfig reads limiter settings from the environment.
func LoadConfig() Config {
	cfg := Config{
		Enabled:         envBool("RATE_LIMIT_ENABLED", true),
		Limit:           envInt("RATE_LIMIT_LIMIT", 60),
		Window:          envDuration("RATE_LIMIT_WINDOW", time.Minute),
		CleanupInterval: envDuration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),
	}
	cfg.Burst = envInt("RATE_LIMIT_BURST", cfg.Limit)
	return cfg
}

// Info reports the limiter state for response headers.
type Info struct {
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
	lastSeen   time.Time
}

// Limiter tracks one token bucket per client id.
type Limiter struct {
	cfg     Config
	mu      sync.Mutex
	buckets map[string]*bucket
	stop    chan struct{}
	done    chan struct{}
}

// NewLimiter creates a limiter and starts its idle-bucket cleanup loop.
func NewLimiter(cfg Config) *Limiter {
	l := &Limiter{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow consumes one token for clientID. It reports whether the request may
// proceed and the limiter state either way.
func (l *Limiter) Allow(clientID string) (bool, Info) {
	if !l.cfg.Enabled || l.cfg.Limit <= 0 {
		return true, Info{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[clientID]
	if !ok {
		b = &bucket{tokens: float64(l.cfg.Burst), lastRefill: now}
		l.buckets[clientID] = b
	}
	b.lastSeen = now

	rate := float64(l.cfg.Limit) / l.cfg.Window.Seconds()
	b.tokens += now.Sub(b.lastRefill).Seconds() * rate
	if b.tokens > float64(l.cfg.Burst) {
		b.tokens = float64(l.cfg.Burst)
	}
	b.lastRefill = now

	info := Info{Limit: l.cfg.Limit}
	if b.tokens >= 1.0 {
		b.tokens--
		info.Remaining = int(b.tokens)
		info.ResetTime = now.Add(time.Duration((float64(l.cfg.Burst) - b.tokens) / rate * float64(time.Second)))
		return true, info
	}

	wait := (1.0 - b.tokens) / rate
	info.RetryAfter = time.Duration(wait * float64(time.Second))
	info.ResetTime = now.Add(info.RetryAfter)
	return false, info
}

// Stop terminates the cleanup loop.
func (l *Limiter) Stop() {
	close(l.stop)
	<-l.done
}

func (l *Limiter) cleanupLoop() {
	defer close(l.done)
	interval := l.cfg.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.evictIdle(2 * interval)
		}
	}
}

func (l *Limiter) evictIdle(maxIdle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := time.Now().Add(-maxIdle)
	for id, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, id)
		}
	}
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
