// Package audit maintains the append-only record of guarded operation
// attempts and outcomes. A record is created pending when an operation
// starts and finalized exactly once after its transaction reaches a
// terminal state; it is never mutated afterwards.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"warden/internal/guard/models"
)

// Record is one audit trail entry.
type Record struct {
	ID          uuid.UUID
	OperationID uuid.UUID
	Kind        string
	PrincipalID string
	Outcome     models.Outcome
	Reason      string
	StartedAt   time.Time
	DurationMs  int64

	// Context snapshot, redacted before it ever reaches a sink.
	IPAddress       string
	UserAgent       string
	RequestID       string
	ContextSnapshot map[string]string

	mu        sync.Mutex
	finalized bool
}

// finalize sets the terminal outcome. Returns false if the record was
// already finalized; the outcome of a record is set exactly once.
func (r *Record) finalize(outcome models.Outcome, reason string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return false
	}
	r.finalized = true
	r.Outcome = outcome
	r.Reason = reason
	r.DurationMs = time.Since(r.StartedAt).Milliseconds()
	return true
}

// Finalized reports whether the record has reached a terminal outcome.
func (r *Record) Finalized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finalized
}

// snapshot returns a sink-safe copy without the internal mutex.
func (r *Record) snapshot() Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Record{
		ID:              r.ID,
		OperationID:     r.OperationID,
		Kind:            r.Kind,
		PrincipalID:     r.PrincipalID,
		Outcome:         r.Outcome,
		Reason:          r.Reason,
		StartedAt:       r.StartedAt,
		DurationMs:      r.DurationMs,
		IPAddress:       r.IPAddress,
		UserAgent:       r.UserAgent,
		RequestID:       r.RequestID,
		ContextSnapshot: r.ContextSnapshot,
	}
}

// Store persists finalized audit records.
type Store interface {
	Append(ctx context.Context, record Record) error
}

// Query reads back persisted records. Memory and Postgres stores implement
// it; write-only sinks like Kafka do not.
type Query interface {
	ListRecent(ctx context.Context, limit int) ([]Record, error)
}
