// Package ratelimit provides the sliding-window limiter consulted by the
// guarded operation runner before any transaction is opened.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"warden/internal/platform/config"
)

// Result reports one limiter decision.
type Result struct {
	Allowed   bool
	Remaining int
	Limit     int
	ResetAt   time.Time
}

// Store manages the window counters behind the limiter.
type Store interface {
	// Allow checks if a request is allowed under key and consumes one slot if so.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)

	// Reset clears the counter for a key.
	Reset(ctx context.Context, key string) error
}

// Limiter applies one window/threshold pair across all guarded operations.
// Store outages degrade open: blocking every mutation because the counter
// backend is down would turn the limiter into a single point of failure.
type Limiter struct {
	store  Store
	window time.Duration
	max    int
	logger *slog.Logger
}

// Option configures the Limiter.
type Option func(*Limiter)

// WithLogger sets the logger for degraded decisions.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// New creates a limiter over the given store.
func New(store Store, cfg config.RateLimit, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, fmt.Errorf("rate limit store is required")
	}

	l := &Limiter{
		store:  store,
		window: cfg.Window,
		max:    cfg.MaxAttempts,
	}
	if l.window <= 0 {
		l.window = time.Minute
	}
	if l.max <= 0 {
		l.max = 5
	}

	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

// Allow checks and consumes one slot for key within the configured window.
// Compose keys with ComposeKey so caller-controlled segments stay escaped.
func (l *Limiter) Allow(ctx context.Context, key string) *Result {
	result, err := l.store.Allow(ctx, key, l.max, l.window)
	if err != nil {
		if l.logger != nil {
			l.logger.WarnContext(ctx, "rate limit store unavailable, allowing", "key", key, "error", err)
		}
		return &Result{Allowed: true, Remaining: l.max, Limit: l.max, ResetAt: time.Now().Add(l.window)}
	}
	return result
}

// Reset clears the counter for key. Used by admin tooling and tests.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.store.Reset(ctx, key)
}

// ComposeKey joins key segments with ':' after escaping each one.
func ComposeKey(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = SanitizeKeySegment(s)
	}
	return strings.Join(escaped, ":")
}

// SanitizeKeySegment escapes delimiter characters in rate limit key segments
// to prevent key collision attacks where user-controlled identifiers
// containing ':' could manipulate adjacent buckets. The escape is reversible:
// '_' is escaped too, so "a:b" and "a_b" map to distinct segments.
func SanitizeKeySegment(s string) string {
	s = strings.ReplaceAll(s, "_", "__")
	return strings.ReplaceAll(s, ":", "_c")
}
