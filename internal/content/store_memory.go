package content

import (
	"context"
	"fmt"
	"sync"
	"time"

	"warden/internal/txn"
	"warden/pkg/platform/sentinel"
)

// MemoryStore holds entries in memory. All mutations must arrive through an
// in-memory transaction: writes are staged on the transaction and apply only
// at commit, so a rolled-back operation leaves no trace.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore creates an empty content store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Seed inserts an entry directly, bypassing transactions. Setup helper for
// tests and fixtures only.
func (s *MemoryStore) Seed(entry Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.ID] = entry
}

// Get returns an entry by ID.
func (s *MemoryStore) Get(_ context.Context, id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[id]
	if !ok {
		return Entry{}, sentinel.ErrNotFound
	}
	return entry, nil
}

// Put stages an upsert on the context's transaction. Calling it outside a
// transaction is a programming error: domain callbacks may only mutate state
// through the begin/commit bracket.
func (s *MemoryStore) Put(ctx context.Context, entry Entry) error {
	tx, ok := txn.MemoryTxFrom(ctx)
	if !ok {
		return fmt.Errorf("content put outside transaction: %w", sentinel.ErrInvalidState)
	}

	entry.UpdatedAt = time.Now()
	tx.Stage(func() {
		s.mu.Lock()
		s.entries[entry.ID] = entry
		s.mu.Unlock()
	})
	return nil
}
