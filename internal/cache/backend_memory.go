package cache

import (
	"context"
	"sync"
	"time"

	"warden/pkg/platform/sentinel"
)

// MemoryBackend is an in-process cache backend with a tag index. Suitable for
// single-instance deployments and tests; distributed deployments use
// RedisBackend instead.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	byTag   map[Tag]map[string]struct{}
}

type memoryEntry struct {
	value     []byte
	tags      []Tag
	expiresAt time.Time
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string]memoryEntry),
		byTag:   make(map[Tag]map[string]struct{}),
	}
}

func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if time.Now().After(entry.expiresAt) {
		b.removeLocked(key)
		return nil, sentinel.ErrNotFound
	}

	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

func (b *MemoryBackend) Set(_ context.Context, key string, value []byte, tags []Tag, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Replacing a key must drop its old tag memberships first.
	if _, ok := b.entries[key]; ok {
		b.removeLocked(key)
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	b.entries[key] = memoryEntry{
		value:     stored,
		tags:      tags,
		expiresAt: time.Now().Add(ttl),
	}
	for _, tag := range tags {
		keys := b.byTag[tag]
		if keys == nil {
			keys = make(map[string]struct{})
			b.byTag[tag] = keys
		}
		keys[key] = struct{}{}
	}
	return nil
}

func (b *MemoryBackend) InvalidateTags(_ context.Context, tags []Tag) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, tag := range tags {
		for key := range b.byTag[tag] {
			b.removeLocked(key)
		}
		delete(b.byTag, tag)
	}
	return nil
}

// Len returns the number of live entries. Test helper.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// removeLocked deletes a key and its tag index memberships.
// Must be called while holding b.mu.
func (b *MemoryBackend) removeLocked(key string) {
	entry, ok := b.entries[key]
	if !ok {
		return
	}
	for _, tag := range entry.tags {
		if keys := b.byTag[tag]; keys != nil {
			delete(keys, key)
			if len(keys) == 0 {
				delete(b.byTag, tag)
			}
		}
	}
	delete(b.entries, key)
}
