package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ─── Submission API ──────────────────────────────────────────────────────────

	ChainsSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skyline",
		Subsystem: "api",
		Name:      "chains_submitted_total",
		Help:      "Total operation chains accepted for execution, labelled by provider of the first operation.",
	}, []string{"provider"})

	AuthzRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skyline",
		Subsystem: "api",
		Name:      "authz_rejections_total",
		Help:      "Total submissions rejected by the authorization gate, labelled by the failing authorizer.",
	}, []string{"authorizer"})

	SubmissionsRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "skyline",
		Subsystem: "api",
		Name:      "rate_limited_total",
		Help:      "Total submissions rejected by the per-account rate limiter.",
	})

	// ─── Orchestration ───────────────────────────────────────────────────────────

	ChainsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skyline",
		Subsystem: "orchestration",
		Name:      "chains_processed_total",
		Help:      "Total chains run to a terminal state, labelled by state and failure kind (empty on success).",
	}, []string{"state", "failure_kind"})

	ChainDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "skyline",
		Subsystem: "orchestration",
		Name:      "chain_duration_seconds",
		Help:      "End-to-end chain execution time in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	OperationsExecutedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skyline",
		Subsystem: "orchestration",
		Name:      "operations_executed_total",
		Help:      "Total atomic operations executed, labelled by operation name and result.",
	}, []string{"operation", "result"})

	TasksLive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "skyline",
		Subsystem: "orchestration",
		Name:      "tasks_live",
		Help:      "Tasks currently held in the in-memory store.",
	})

	TasksEvictedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "skyline",
		Subsystem: "orchestration",
		Name:      "tasks_evicted_total",
		Help:      "Terminal tasks evicted by the retention reaper.",
	})

	// ─── Saga engine ─────────────────────────────────────────────────────────────

	SagaEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skyline",
		Subsystem: "saga",
		Name:      "events_total",
		Help:      "Total saga events durably appended, labelled by event type.",
	}, []string{"type"})

	SagasResumedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "skyline",
		Subsystem: "saga",
		Name:      "resumed_total",
		Help:      "Sagas resumed from the event log after a restart.",
	})

	SagasCompensatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "skyline",
		Subsystem: "saga",
		Name:      "compensated_total",
		Help:      "Sagas that ran compensation to completion.",
	})

	// ─── Audit stream ────────────────────────────────────────────────────────────

	AuditPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "skyline",
		Subsystem: "audit",
		Name:      "publish_failures_total",
		Help:      "Audit events that could not be published. Hook failures never fail the chain.",
	})
)
