// Package txn provides the transactional envelope around guarded operation
// bodies. The executor is a small state machine over a pluggable backend; it
// does not invent its own locking, atomicity belongs to the backing store.
package txn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State tracks the executor's lifecycle: Idle -> Active -> terminal.
type State int

const (
	StateIdle State = iota
	StateActive
	StateCommitted
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

var (
	// ErrAlreadyActive is returned by Begin while a transaction is open.
	// Nesting is the backing store's job, not this envelope's.
	ErrAlreadyActive = errors.New("transaction already active")

	// ErrNoActiveTransaction is returned by Commit from the Idle state.
	ErrNoActiveTransaction = errors.New("no active transaction")
)

// Tx is one open unit of work against the backing store.
type Tx interface {
	Commit() error
	Rollback() error
	// Inject returns a context carrying this transaction so stores invoked
	// inside the operation body write through it.
	Inject(ctx context.Context) context.Context
}

// Backend opens transactions against the underlying store.
type Backend interface {
	Begin(ctx context.Context) (Tx, error)
}

// Monitor observes every terminal transition with its wall-clock duration.
// Monitors must not break the envelope: panics are caught and logged.
type Monitor func(outcome State, elapsed time.Duration)

// Executor runs one transaction through its lifecycle. It is created per
// guarded operation and is not reused after reaching a terminal state.
type Executor struct {
	backend Backend
	monitor Monitor
	logger  *slog.Logger

	mu        sync.Mutex
	state     State
	tx        Tx
	startedAt time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithMonitor sets the terminal-transition hook.
func WithMonitor(m Monitor) Option {
	return func(e *Executor) {
		e.monitor = m
	}
}

// WithLogger sets the logger for monitor panics and rollback failures.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// NewExecutor creates an idle executor over the given backend.
func NewExecutor(backend Backend, opts ...Option) (*Executor, error) {
	if backend == nil {
		return nil, fmt.Errorf("transaction backend is required")
	}

	e := &Executor{backend: backend, state: StateIdle}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// State returns the executor's current lifecycle state.
func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Begin opens a transaction. Fails with ErrAlreadyActive while one is open.
func (e *Executor) Begin(ctx context.Context) (context.Context, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateActive {
		return ctx, ErrAlreadyActive
	}
	if e.state != StateIdle {
		return ctx, fmt.Errorf("begin from terminal state %s: %w", e.state, ErrNoActiveTransaction)
	}

	tx, err := e.backend.Begin(ctx)
	if err != nil {
		return ctx, fmt.Errorf("begin transaction: %w", err)
	}

	e.tx = tx
	e.state = StateActive
	e.startedAt = time.Now()
	return tx.Inject(ctx), nil
}

// Commit finalizes the active transaction. Fails with ErrNoActiveTransaction
// when no transaction is open.
func (e *Executor) Commit() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateActive {
		return ErrNoActiveTransaction
	}

	err := e.tx.Commit()
	if err != nil {
		// A failed commit leaves nothing to commit again; the store has
		// already discarded the work.
		e.transitionLocked(StateRolledBack)
		return fmt.Errorf("commit transaction: %w", err)
	}

	e.transitionLocked(StateCommitted)
	return nil
}

// Rollback aborts the active transaction. Calling it on an already-terminal
// executor is a no-op so the runner can defer it unconditionally; from Idle
// it reports ErrNoActiveTransaction.
func (e *Executor) Rollback() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateCommitted, StateRolledBack:
		return nil
	case StateIdle:
		return ErrNoActiveTransaction
	}

	err := e.tx.Rollback()
	e.transitionLocked(StateRolledBack)
	if err != nil {
		return fmt.Errorf("rollback transaction: %w", err)
	}
	return nil
}

// transitionLocked records the terminal state and fires the monitor.
// Must be called while holding e.mu.
func (e *Executor) transitionLocked(to State) {
	e.state = to
	e.tx = nil

	if e.monitor == nil {
		return
	}
	elapsed := time.Since(e.startedAt)
	defer func() {
		if r := recover(); r != nil && e.logger != nil {
			e.logger.Error("transaction monitor panicked", "outcome", to.String(), "panic", r)
		}
	}()
	e.monitor(to, elapsed)
}
