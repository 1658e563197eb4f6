package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger_core",
			Name:      "operations_total",
			Help:      "Ledger operations by outcome",
		},
		[]string{"op", "outcome"},
	)

	RejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger_core",
			Name:      "rejections_total",
			Help:      "Rejected operations by error code",
		},
		[]string{"op", "code"},
	)

	OperationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ledger_core",
			Name:      "operation_duration_seconds",
			Help:      "End-to-end latency per ledger operation",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	PinVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger_core",
			Name:      "pin_verifications_total",
			Help:      "PIN verification attempts by outcome",
		},
		[]string{"outcome"},
	)
)

// Outcome labels for OperationsTotal.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// ObserveOperation records one engine operation.
func ObserveOperation(op, outcome string, d time.Duration) {
	OperationsTotal.WithLabelValues(op, outcome).Inc()
	OperationLatency.WithLabelValues(op).Observe(d.Seconds())
}
