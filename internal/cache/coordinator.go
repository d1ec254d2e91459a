// Package cache provides the tag-aware cache coordinator used by the guarded
// operation runner. The cache is an optimization, never a correctness
// dependency: backend outages degrade reads to misses and writes to no-ops,
// so a cache failure can never block or fail a guarded operation.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"warden/internal/platform/config"
	"warden/pkg/platform/sentinel"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_cache_hits_total",
		Help: "Total cache reads served from the backend",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_cache_misses_total",
		Help: "Total cache reads that missed, including degraded reads",
	})
	cacheBackendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_cache_backend_failures_total",
		Help: "Total backend errors absorbed by the coordinator",
	})
)

// Backend is the storage interface behind the coordinator. Implementations
// report a missing key as sentinel.ErrNotFound.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, tags []Tag, ttl time.Duration) error
	InvalidateTags(ctx context.Context, tags []Tag) error
}

// Coordinator mediates all cache access for guarded operations. Every call
// runs under a short timeout; on timeout or backend error the coordinator
// logs, counts, and carries on.
type Coordinator struct {
	backend   Backend
	ttl       time.Duration
	opTimeout time.Duration
	logger    *slog.Logger
}

// Option configures the Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger used for absorbed backend failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// New creates a coordinator over the given backend.
func New(backend Backend, cfg config.Cache, opts ...Option) (*Coordinator, error) {
	if backend == nil {
		return nil, fmt.Errorf("cache backend is required")
	}

	c := &Coordinator{
		backend:   backend,
		ttl:       cfg.TTL,
		opTimeout: cfg.OpTimeout,
	}
	if c.ttl <= 0 {
		c.ttl = 5 * time.Minute
	}
	if c.opTimeout <= 0 {
		c.opTimeout = 250 * time.Millisecond
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Get returns the cached value for key. Any backend failure is treated as a
// miss so cache outages cannot block guarded operations.
func (c *Coordinator) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	value, err := c.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			c.absorb(ctx, "cache get failed", key, err)
		}
		cacheMisses.Inc()
		return nil, false
	}

	cacheHits.Inc()
	return value, true
}

// Set stores value under key with the coordinator's TTL. Failures are logged
// and swallowed.
func (c *Coordinator) Set(ctx context.Context, key string, value []byte, tags ...Tag) {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	if err := c.backend.Set(ctx, key, value, tags, c.ttl); err != nil {
		c.absorb(ctx, "cache set failed", key, err)
	}
}

// InvalidateTags drops every key carrying any of the given tags. Failures are
// logged and swallowed: a stale read until TTL expiry is preferable to a
// wedged write. Only call this after the owning transaction has committed.
func (c *Coordinator) InvalidateTags(ctx context.Context, tags ...Tag) {
	if len(tags) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	if err := c.backend.InvalidateTags(ctx, tags); err != nil {
		c.absorb(ctx, "cache invalidation failed", fmt.Sprintf("%v", tags), err)
	}
}

func (c *Coordinator) absorb(ctx context.Context, msg, key string, err error) {
	cacheBackendFailures.Inc()
	if c.logger != nil {
		c.logger.WarnContext(ctx, msg, "key", key, "error", err)
	}
}
