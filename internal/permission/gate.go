// Package permission resolves whether a principal may perform a named set of
// actions. Decisions are cached with a short TTL but the cache is advisory
// only; the permission source stays the single source of truth and any cache
// or source failure resolves to deny.
package permission

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"warden/internal/platform/config"
	"warden/pkg/platform/sentinel"
)

// Source is the authoritative provider of a principal's permission set.
type Source interface {
	GetPermissions(ctx context.Context, principalID string) ([]string, error)
}

// DecisionCache stores derived permission decisions. Implementations report a
// missing entry as sentinel.ErrNotFound. Entries are safe to evict at any
// time; a miss always falls back to recomputation.
type DecisionCache interface {
	Get(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key string, allowed bool, ttl time.Duration) error
}

// Gate answers "does this principal hold all of these permissions".
type Gate struct {
	source Source
	cache  DecisionCache
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// Option configures the Gate.
type Option func(*Gate)

// WithCache sets the decision cache. Without one, every check recomputes.
func WithCache(cache DecisionCache) Option {
	return func(g *Gate) {
		g.cache = cache
	}
}

// WithLogger sets the logger for source and cache failures.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

// New creates a permission gate over the given source.
func New(source Source, cfg config.Permission, opts ...Option) (*Gate, error) {
	if source == nil {
		return nil, fmt.Errorf("permission source is required")
	}

	g := &Gate{
		source: source,
		ttl:    cfg.CacheTTL,
	}
	if g.ttl <= 0 {
		g.ttl = 30 * time.Second
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

// Check reports whether the principal holds every required permission.
// Fail-closed: an unreachable source or any internal error denies. An empty
// requirement set always passes; an anonymous principal holds nothing.
func (g *Gate) Check(ctx context.Context, principalID string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	if principalID == "" {
		return false
	}

	key := decisionKey(principalID, required)

	if g.cache != nil {
		allowed, err := g.cache.Get(ctx, key)
		if err == nil {
			return allowed
		}
		if !errors.Is(err, sentinel.ErrNotFound) && g.logger != nil {
			g.logger.WarnContext(ctx, "permission cache read failed", "principal_id", principalID, "error", err)
		}
	}

	// Concurrent misses for the same decision collapse into one source call.
	v, err, _ := g.group.Do(key, func() (any, error) {
		held, err := g.source.GetPermissions(ctx, principalID)
		if err != nil {
			return false, err
		}
		return holdsAll(held, required), nil
	})
	if err != nil {
		if g.logger != nil {
			g.logger.ErrorContext(ctx, "permission source unreachable, denying",
				"principal_id", principalID,
				"error", err,
			)
		}
		return false
	}

	allowed := v.(bool)

	if g.cache != nil {
		if err := g.cache.Set(ctx, key, allowed, g.ttl); err != nil && g.logger != nil {
			g.logger.WarnContext(ctx, "permission cache write failed", "principal_id", principalID, "error", err)
		}
	}

	return allowed
}

func holdsAll(held, required []string) bool {
	for _, want := range required {
		if !slices.Contains(held, want) {
			return false
		}
	}
	return true
}

// decisionKey builds the cache key from the principal and a hash of the
// sorted permission set, so the same set in any order shares one entry.
func decisionKey(principalID string, required []string) string {
	sorted := slices.Clone(required)
	slices.Sort(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\x00")))
	return principalID + ":" + hex.EncodeToString(sum[:8])
}
