package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"warden/internal/guard/models"
	"warden/internal/platform/config"
)

var (
	auditRecordsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_audit_records_written_total",
		Help: "Total audit records persisted to the sink",
	})
	auditEscalations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_audit_escalations_total",
		Help: "Total audit records escalated because the sink rejected them",
	})
	auditOverflowDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_audit_overflow_drops_total",
		Help: "Total audit records dropped due to buffer overflow",
	})
)

// Escalator is the distinct alarm path for audit records that could not be
// persisted. Losing audit history for a guarded operation is itself a
// reportable failure, so escalation must not be a plain log-and-forget in
// production; wire it to paging or a dead-letter channel.
type Escalator func(ctx context.Context, record Record, err error)

// Trail buffers finalized audit records and flushes them to the store in
// batches. Flushing is always explicit or timer-driven, never tied to
// object teardown, so the last batch cannot be lost silently on exit paths
// that skip finalizers.
type Trail struct {
	store    Store
	redactor *Redactor
	buffer   *ringBuffer
	logger   *slog.Logger
	escalate Escalator

	batchSize     int
	flushInterval time.Duration
	writeTimeout  time.Duration

	kick         chan struct{}
	seenOverflow atomic.Int64
}

// Option configures the Trail.
type Option func(*Trail)

// WithLogger sets the logger for escalations and double-finalize bugs.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Trail) {
		t.logger = logger
	}
}

// WithRedactor replaces the default deny-list redactor.
func WithRedactor(r *Redactor) Option {
	return func(t *Trail) {
		t.redactor = r
	}
}

// WithEscalator sets the alarm path for unpersistable records.
func WithEscalator(e Escalator) Option {
	return func(t *Trail) {
		t.escalate = e
	}
}

// New creates an audit trail over the given store.
func New(store Store, cfg config.Audit, opts ...Option) (*Trail, error) {
	if store == nil {
		return nil, fmt.Errorf("audit store is required")
	}

	t := &Trail{
		store:         store,
		redactor:      NewRedactor(),
		buffer:        newRingBuffer(cfg.BufferSize),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		writeTimeout:  cfg.WriteTimeout,
		kick:          make(chan struct{}, 1),
	}
	if t.batchSize <= 0 {
		t.batchSize = 64
	}
	if t.flushInterval <= 0 {
		t.flushInterval = 2 * time.Second
	}
	if t.writeTimeout <= 0 {
		t.writeTimeout = 500 * time.Millisecond
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.escalate == nil {
		t.escalate = t.defaultEscalate
	}

	return t, nil
}

// Begin creates the pending record for one operation attempt. The context
// snapshot is redacted here, before the record can reach any sink.
func (t *Trail) Begin(op models.Operation, sctx models.SecurityContext) *Record {
	snapshot := t.redactor.Snapshot(op.Payload)
	for field, value := range sctx.Extra {
		if snapshot == nil {
			snapshot = make(map[string]string, len(sctx.Extra))
		}
		if t.redactor.Denied(field) {
			snapshot["ctx."+field] = redactedPlaceholder
		} else {
			snapshot["ctx."+field] = value
		}
	}

	return &Record{
		ID:              uuid.New(),
		OperationID:     op.ID,
		Kind:            op.Kind,
		PrincipalID:     sctx.PrincipalID,
		StartedAt:       time.Now(),
		IPAddress:       sctx.IPAddress,
		UserAgent:       sctx.UserAgent,
		RequestID:       sctx.RequestID,
		ContextSnapshot: snapshot,
	}
}

// Success finalizes the record with a success outcome and enqueues it.
func (t *Trail) Success(ctx context.Context, record *Record) {
	t.complete(ctx, record, models.OutcomeSuccess, "")
}

// Failure finalizes the record with a failure outcome and enqueues it.
func (t *Trail) Failure(ctx context.Context, record *Record, reason string) {
	t.complete(ctx, record, models.OutcomeFailure, reason)
}

func (t *Trail) complete(ctx context.Context, record *Record, outcome models.Outcome, reason string) {
	if record == nil {
		return
	}
	if !record.finalize(outcome, reason) {
		if t.logger != nil {
			t.logger.ErrorContext(ctx, "audit record finalized twice",
				"record_id", record.ID,
				"operation_id", record.OperationID,
			)
		}
		return
	}

	t.buffer.enqueue(record.snapshot())

	if t.buffer.len() >= t.batchSize {
		select {
		case t.kick <- struct{}{}:
		default:
		}
	}
}

// Run drains the buffer on a timer and on batch-size kicks until ctx is
// cancelled, then performs a final flush on a detached timeout so shutdown
// does not lose the tail of the trail.
func (t *Trail) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = t.Flush(flushCtx)
			return ctx.Err()
		case <-ticker.C:
			t.drain(ctx)
		case <-t.kick:
			t.drain(ctx)
		}
	}
}

// Flush synchronously drains everything currently buffered. Returns the
// first persistence error; escalation still happened for every failed
// record.
func (t *Trail) Flush(ctx context.Context) error {
	var firstErr error
	for {
		batch := t.buffer.dequeueBatch(t.batchSize)
		if len(batch) == 0 {
			break
		}
		if err := t.persist(ctx, batch); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	t.reportOverflow(ctx)
	return firstErr
}

func (t *Trail) drain(ctx context.Context) {
	for t.buffer.len() > 0 {
		batch := t.buffer.dequeueBatch(t.batchSize)
		if len(batch) == 0 {
			break
		}
		_ = t.persist(ctx, batch)
	}
	t.reportOverflow(ctx)
}

func (t *Trail) persist(ctx context.Context, batch []Record) error {
	var firstErr error
	for _, record := range batch {
		writeCtx, cancel := context.WithTimeout(ctx, t.writeTimeout)
		err := t.store.Append(writeCtx, record)
		cancel()

		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			t.escalate(ctx, record, err)
			continue
		}
		auditRecordsWritten.Inc()
	}
	return firstErr
}

// reportOverflow escalates buffer drops seen since the last drain.
func (t *Trail) reportOverflow(ctx context.Context) {
	dropped := t.buffer.droppedCount()
	seen := t.seenOverflow.Load()
	if dropped > seen && t.seenOverflow.CompareAndSwap(seen, dropped) {
		delta := dropped - seen
		auditOverflowDrops.Add(float64(delta))
		if t.logger != nil {
			t.logger.ErrorContext(ctx, "CRITICAL: audit buffer overflow dropped records", "dropped", delta)
		}
	}
}

func (t *Trail) defaultEscalate(ctx context.Context, record Record, err error) {
	auditEscalations.Inc()
	if t.logger != nil {
		t.logger.ErrorContext(ctx, "CRITICAL: audit sink unavailable",
			"record_id", record.ID,
			"operation_id", record.OperationID,
			"kind", record.Kind,
			"outcome", string(record.Outcome),
			"error", err,
		)
	}
}
