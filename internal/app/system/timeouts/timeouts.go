// Package timeouts provides centralized timeout values for handler and
// worker operations.
//
// Guidelines for choosing a timeout:
//   - Ping: health checks and connectivity verification
//   - Short: single-document reads and writes
//   - Medium: list queries and the three-way live dashboard read
//   - Long: snapshot rebuilds touching several collections
//   - Sync: one bank link sync, all pages included
package timeouts

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Default timeout values (used if Configure is not called).
const (
	DefaultPing   = 2 * time.Second
	DefaultShort  = 5 * time.Second
	DefaultMedium = 10 * time.Second
	DefaultLong   = 30 * time.Second
	DefaultSync   = 2 * time.Minute
)

var (
	mu  sync.RWMutex
	cur = defaults()
)

// Config holds timeout configuration values.
// Zero values are ignored (current values are kept).
type Config struct {
	Ping   time.Duration
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
	Sync   time.Duration
}

func defaults() Config {
	return Config{
		Ping:   DefaultPing,
		Short:  DefaultShort,
		Medium: DefaultMedium,
		Long:   DefaultLong,
		Sync:   DefaultSync,
	}
}

func get(pick func(Config) time.Duration) time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return pick(cur)
}

// Ping returns the timeout for health checks.
func Ping() time.Duration { return get(func(c Config) time.Duration { return c.Ping }) }

// Short returns the timeout for single-document operations.
func Short() time.Duration { return get(func(c Config) time.Duration { return c.Short }) }

// Medium returns the timeout for list queries and live dashboard reads.
func Medium() time.Duration { return get(func(c Config) time.Duration { return c.Medium }) }

// Long returns the timeout for multi-collection operations.
func Long() time.Duration { return get(func(c Config) time.Duration { return c.Long }) }

// Sync returns the timeout for a full bank link sync.
func Sync() time.Duration { return get(func(c Config) time.Duration { return c.Sync }) }

// Configure sets custom timeout values. Zero values in cfg are ignored.
// Call it during startup before handlers are registered.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	for _, f := range fields(&cur) {
		if v := f.from(cfg); v > 0 {
			*f.ptr = v
		}
	}
}

// Reset restores all timeouts to their default values.
// Useful for testing.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	cur = defaults()
}

// Current returns the current timeout configuration.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return cur
}

type field struct {
	env  string
	ptr  *time.Duration
	from func(Config) time.Duration
}

func fields(c *Config) []field {
	return []field{
		{"SHELTR_TIMEOUT_PING", &c.Ping, func(x Config) time.Duration { return x.Ping }},
		{"SHELTR_TIMEOUT_SHORT", &c.Short, func(x Config) time.Duration { return x.Short }},
		{"SHELTR_TIMEOUT_MEDIUM", &c.Medium, func(x Config) time.Duration { return x.Medium }},
		{"SHELTR_TIMEOUT_LONG", &c.Long, func(x Config) time.Duration { return x.Long }},
		{"SHELTR_TIMEOUT_SYNC", &c.Sync, func(x Config) time.Duration { return x.Sync }},
	}
}

// ConfigureFromEnv reads SHELTR_TIMEOUT_{PING,SHORT,MEDIUM,LONG,SYNC}
// (Go duration strings such as "500ms" or "2m"). Unset or invalid values
// are ignored. Returns the number of timeouts configured.
func ConfigureFromEnv() int {
	mu.Lock()
	defer mu.Unlock()
	configured := 0
	for _, f := range fields(&cur) {
		v := os.Getenv(f.env)
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			*f.ptr = d
			configured++
		}
	}
	return configured
}

// WithTimeout creates a context with timeout and returns a cancel function that
// logs a warning if the context ended because the deadline passed.
//
// Example:
//
//	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "dashboard live read")
//	defer cancel()
func WithTimeout(parent context.Context, timeout time.Duration, log *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	return ctx, func() {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && log != nil {
			log.Warn("operation timed out",
				zap.String("operation", operation),
				zap.Duration("timeout", timeout),
			)
		}
		cancel()
	}
}
