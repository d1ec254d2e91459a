package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the guarded execution engine.
// Component-local collectors (cache, audit) live in their own packages.
type Metrics struct {
	OperationsTotal      *prometheus.CounterVec
	OperationDuration    *prometheus.HistogramVec
	RateLimitExceeded    prometheus.Counter
	PermissionDenials    prometheus.Counter
	TransactionRollbacks prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		OperationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_guarded_operations_total",
			Help: "Total guarded operations by outcome and error kind",
		}, []string{"outcome", "error_kind"}),
		OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "warden_guarded_operation_duration_seconds",
			Help:    "End-to-end latency of guarded operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"outcome"}),
		RateLimitExceeded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "warden_rate_limit_exceeded_total",
			Help: "Total operations rejected by the rate limiter",
		}),
		PermissionDenials: promauto.NewCounter(prometheus.CounterOpts{
			Name: "warden_permission_denials_total",
			Help: "Total operations rejected by the permission gate",
		}),
		TransactionRollbacks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "warden_transaction_rollbacks_total",
			Help: "Total transactions rolled back by the executor",
		}),
	}
}

// RecordOutcome increments the outcome counter for one guarded operation.
func (m *Metrics) RecordOutcome(outcome, errorKind string, seconds float64) {
	m.OperationsTotal.WithLabelValues(outcome, errorKind).Inc()
	m.OperationDuration.WithLabelValues(outcome).Observe(seconds)
}
