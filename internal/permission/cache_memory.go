package permission

import (
	"context"
	"sync"
	"time"

	"warden/pkg/platform/sentinel"
)

// MemoryDecisionCache is an in-process decision cache with TTL expiry.
type MemoryDecisionCache struct {
	mu      sync.Mutex
	entries map[string]memoryDecision
}

type memoryDecision struct {
	allowed   bool
	expiresAt time.Time
}

// NewMemoryDecisionCache creates an empty in-memory decision cache.
func NewMemoryDecisionCache() *MemoryDecisionCache {
	return &MemoryDecisionCache{entries: make(map[string]memoryDecision)}
}

func (c *MemoryDecisionCache) Get(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return false, sentinel.ErrNotFound
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return false, sentinel.ErrNotFound
	}
	return entry.allowed, nil
}

func (c *MemoryDecisionCache) Set(_ context.Context, key string, allowed bool, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryDecision{allowed: allowed, expiresAt: time.Now().Add(ttl)}
	return nil
}
