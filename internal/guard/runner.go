// Package guard implements the guarded-mutation execution envelope: a single
// entry point that wraps every state-changing operation with permission
// checks, rate limiting, transactional execution, result validation, audit
// logging and post-commit cache invalidation, in that order.
//
// The ordering is the whole point. No audit outcome is written before the
// transaction is terminal, and no cache invalidation happens before commit;
// domain managers get those guarantees by construction instead of each
// re-implementing them inconsistently.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"warden/internal/audit"
	"warden/internal/cache"
	"warden/internal/guard/models"
	"warden/internal/permission"
	"warden/internal/platform/config"
	"warden/internal/platform/metrics"
	"warden/internal/ratelimit"
	"warden/internal/txn"
	"warden/internal/validation"
)

// Runner composes the envelope components. One runner serves all domain
// managers; each Execute call is independent and safe to run concurrently.
type Runner struct {
	gate    *permission.Gate
	limiter *ratelimit.Limiter
	rules   *validation.Registry
	cache   *cache.Coordinator
	trail   *audit.Trail
	backend txn.Backend

	txTimeout time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

// Option configures the Runner.
type Option func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithMetrics sets the Prometheus collectors for operation outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// New creates a runner. All components are required except the options.
func New(
	gate *permission.Gate,
	limiter *ratelimit.Limiter,
	rules *validation.Registry,
	cacheCoord *cache.Coordinator,
	trail *audit.Trail,
	backend txn.Backend,
	cfg config.Txn,
	opts ...Option,
) (*Runner, error) {
	if gate == nil {
		return nil, fmt.Errorf("permission gate is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if rules == nil {
		return nil, fmt.Errorf("validation registry is required")
	}
	if cacheCoord == nil {
		return nil, fmt.Errorf("cache coordinator is required")
	}
	if trail == nil {
		return nil, fmt.Errorf("audit trail is required")
	}
	if backend == nil {
		return nil, fmt.Errorf("transaction backend is required")
	}

	r := &Runner{
		gate:      gate,
		limiter:   limiter,
		rules:     rules,
		cache:     cacheCoord,
		trail:     trail,
		backend:   backend,
		txTimeout: cfg.Timeout,
		tracer:    otel.Tracer("warden/guard"),
	}
	if r.txTimeout <= 0 {
		r.txTimeout = 5 * time.Second
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Execute runs one guarded operation. Exactly one audit record reaches a
// terminal outcome per call; envelope failures surface as *Error while body
// errors pass through unchanged, both after rollback.
func (r *Runner) Execute(ctx context.Context, op models.Operation, sctx models.SecurityContext, body models.Body) (models.OperationResult, error) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "guard.Execute",
		trace.WithAttributes(attribute.String("operation.kind", op.Kind)),
	)
	defer span.End()

	record := r.trail.Begin(op, sctx)

	// A panicking body already rolled back through the executor's deferred
	// rollback; the record must still reach a terminal outcome before the
	// panic continues up the stack.
	defer func() {
		if rec := recover(); rec != nil {
			r.trail.Failure(ctx, record, fmt.Sprintf("panic: %v", rec))
			span.SetAttributes(attribute.String("operation.outcome", "panic"))
			if r.metrics != nil {
				r.metrics.RecordOutcome("failure", "panic", time.Since(start).Seconds())
			}
			panic(rec)
		}
	}()

	result, err := r.execute(ctx, op, sctx, body)
	if err != nil {
		reason := err.Error()
		kindLabel := "body_error"
		if kind, ok := KindOf(err); ok {
			reason = string(kind)
			kindLabel = string(kind)
		}

		r.trail.Failure(ctx, record, reason)
		span.SetAttributes(
			attribute.String("operation.outcome", "failure"),
			attribute.String("operation.error_kind", kindLabel),
		)
		if r.metrics != nil {
			r.metrics.RecordOutcome("failure", kindLabel, time.Since(start).Seconds())
		}
		if r.logger != nil {
			r.logger.WarnContext(ctx, "guarded operation failed",
				"operation_id", op.ID,
				"kind", op.Kind,
				"principal_id", sctx.PrincipalID,
				"request_id", sctx.RequestID,
				"error", err,
			)
		}
		return models.OperationResult{}, err
	}

	r.trail.Success(ctx, record)
	span.SetAttributes(attribute.String("operation.outcome", "success"))
	if r.metrics != nil {
		r.metrics.RecordOutcome("success", "none", time.Since(start).Seconds())
	}
	return result, nil
}

// execute walks the gates in order. Every step is hard: its failure aborts
// the remaining steps.
func (r *Runner) execute(ctx context.Context, op models.Operation, sctx models.SecurityContext, body models.Body) (models.OperationResult, error) {
	var zero models.OperationResult

	// Step 1: context well-formedness.
	if err := r.validateContext(op, sctx); err != nil {
		return zero, err
	}

	// Step 2: permissions, fail-closed.
	if !r.gate.Check(ctx, sctx.PrincipalID, op.RequiredPermissions) {
		if r.metrics != nil {
			r.metrics.PermissionDenials.Inc()
		}
		return zero, NewError(KindAccessDenied, fmt.Sprintf("principal lacks permissions for %s", op.Kind))
	}

	// Step 3: rate limiting, before any transaction is opened.
	if op.RateLimitKey != "" {
		identity := sctx.PrincipalID
		if identity == "" {
			identity = sctx.IPAddress
		}
		decision := r.limiter.Allow(ctx, ratelimit.ComposeKey(op.RateLimitKey, identity))
		if !decision.Allowed {
			if r.metrics != nil {
				r.metrics.RateLimitExceeded.Inc()
			}
			return zero, NewError(KindRateLimited,
				fmt.Sprintf("rate limit exceeded for %s, resets at %s", op.RateLimitKey, decision.ResetAt.Format(time.RFC3339)))
		}
	}

	// Steps 4-7 run under the transaction budget; an exhausted budget rolls
	// back instead of leaving a dangling transaction.
	txCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		txCtx, cancel = context.WithTimeout(ctx, r.txTimeout)
		defer cancel()
	}

	executor, err := txn.NewExecutor(r.backend,
		txn.WithMonitor(r.monitor),
		txn.WithLogger(r.logger),
	)
	if err != nil {
		return zero, WrapError(KindTransactionFailure, err, "executor setup")
	}

	bodyCtx, err := executor.Begin(txCtx)
	if err != nil {
		return zero, WrapError(KindTransactionFailure, err, "begin")
	}
	// Unconditional: a no-op once the executor is terminal.
	defer func() {
		_ = executor.Rollback()
	}()

	// Step 5: the domain callback. Its errors propagate unchanged.
	result, err := body(bodyCtx)
	if err != nil {
		return zero, err
	}

	// Step 6: post-condition validation. A violation still rolls back; an
	// uncommitted partial write must never be left visible.
	if err := r.rules.Validate(result, op.Kind); err != nil {
		ge := &Error{Kind: KindInvalidResult, Message: "post-condition validation failed", Err: err}
		var ve *validation.Error
		if errors.As(err, &ve) {
			ge.Reasons = ve.Reasons
		}
		return zero, ge
	}

	// Step 7: commit, then invalidate. Never the other way around: caches
	// must not drop entries for writes that may yet fail to commit.
	if err := executor.Commit(); err != nil {
		return zero, WrapError(KindTransactionFailure, err, "commit")
	}
	r.cache.InvalidateTags(ctx, op.InvalidateTags...)

	return result, nil
}

func (r *Runner) validateContext(op models.Operation, sctx models.SecurityContext) error {
	if sctx.RequestID == "" {
		return NewError(KindInvalidContext, "request ID is required")
	}
	if sctx.Anonymous() && !op.AllowAnonymous {
		return NewError(KindInvalidContext, "principal required for "+op.Kind)
	}
	return nil
}

func (r *Runner) monitor(outcome txn.State, elapsed time.Duration) {
	if r.metrics != nil && outcome == txn.StateRolledBack {
		r.metrics.TransactionRollbacks.Inc()
	}
	if r.logger != nil {
		r.logger.Debug("transaction terminal", "outcome", outcome.String(), "elapsed_ms", elapsed.Milliseconds())
	}
}
