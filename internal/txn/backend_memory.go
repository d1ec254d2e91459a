package txn

import (
	"context"
	"sync"
)

type memoryTxKey struct{}

// MemoryTxFrom extracts the in-memory transaction from context if present.
func MemoryTxFrom(ctx context.Context) (*MemoryTx, bool) {
	tx, ok := ctx.Value(memoryTxKey{}).(*MemoryTx)
	return tx, ok
}

// MemoryBackend is an in-process transaction backend. Stores stage their
// mutations on the transaction and the stage functions run only at commit,
// which gives single-instance deployments and tests real rollback semantics
// without a database.
type MemoryBackend struct {
	mu         sync.Mutex
	begun      int
	committed  int
	rolledBack int
}

// NewMemoryBackend creates an in-memory transaction backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (b *MemoryBackend) Begin(_ context.Context) (Tx, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.begun++
	return &MemoryTx{backend: b}, nil
}

// Counts returns how many transactions were begun, committed, and rolled
// back. Test helper.
func (b *MemoryBackend) Counts() (begun, committed, rolledBack int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.begun, b.committed, b.rolledBack
}

// MemoryTx collects staged mutations and applies them atomically at commit.
type MemoryTx struct {
	backend *MemoryBackend

	mu     sync.Mutex
	stages []func()
	done   bool
}

// Stage registers a mutation to apply at commit. Staged functions run in
// registration order while no other commit is in flight.
func (t *MemoryTx) Stage(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	t.stages = append(t.stages, fn)
}

func (t *MemoryTx) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrNoActiveTransaction
	}
	t.done = true

	t.backend.mu.Lock()
	for _, fn := range t.stages {
		fn()
	}
	t.backend.committed++
	t.backend.mu.Unlock()

	t.stages = nil
	return nil
}

func (t *MemoryTx) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil
	}
	t.done = true
	t.stages = nil

	t.backend.mu.Lock()
	t.backend.rolledBack++
	t.backend.mu.Unlock()
	return nil
}

func (t *MemoryTx) Inject(ctx context.Context) context.Context {
	return context.WithValue(ctx, memoryTxKey{}, t)
}
