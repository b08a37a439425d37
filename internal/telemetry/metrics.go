// Package telemetry holds the orchestrator's Prometheus metrics and
// OpenTelemetry tracing setup, grounded on the teacher's pkg/metrics and
// pkg/observability packages.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// --- Job metrics ---

	JobsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "orchestrator",
			Subsystem: "jobs",
			Name:      "total",
			Help:      "Total number of jobs by status",
		},
		[]string{"status"},
	)

	JobsSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "orchestrator",
			Subsystem: "jobs",
			Name:      "submitted_total",
			Help:      "Total number of jobs submitted",
		},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "orchestrator",
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Duration of job executions in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 15),
		},
		[]string{"workflow_id", "status"},
	)

	// --- Dispatcher metrics ---

	DispatchLag = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "orchestrator",
			Subsystem: "dispatch",
			Name:      "lag_seconds",
			Help:      "Delay between a job becoming visible and being claimed",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)

	DispatchCycles = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "orchestrator",
			Subsystem: "dispatch",
			Name:      "cycles_total",
			Help:      "Total number of dispatch loop cycles",
		},
	)

	JobsDispatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "orchestrator",
			Subsystem: "dispatch",
			Name:      "jobs_dispatched_total",
			Help:      "Total number of jobs dispatched to robots",
		},
	)

	// --- Robot / agent metrics ---

	ActiveRobots = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "orchestrator",
			Subsystem: "robots",
			Name:      "active",
			Help:      "Number of registered robots by status",
		},
		[]string{"status"},
	)

	HeartbeatsReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "orchestrator",
			Subsystem: "robots",
			Name:      "heartbeats_total",
			Help:      "Total heartbeats received from robots",
		},
	)

	// --- Queue metrics ---

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "orchestrator",
			Subsystem: "queue",
			Name:      "pending_jobs",
			Help:      "Number of jobs pending in the queue",
		},
	)

	// --- Recovery metrics ---

	RecoveryActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orchestrator",
			Subsystem: "recovery",
			Name:      "actions_total",
			Help:      "Total number of recovery actions taken, by kind",
		},
		[]string{"action"},
	)

	OrphansReaped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "orchestrator",
			Subsystem: "recovery",
			Name:      "orphans_reaped_total",
			Help:      "Total number of orphaned jobs requeued or failed by recovery",
		},
	)

	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orchestrator",
			Subsystem: "jobs",
			Name:      "retries_total",
			Help:      "Total number of job retries",
		},
		[]string{"workflow_id"},
	)

	DLQDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "orchestrator",
			Subsystem: "recovery",
			Name:      "dlq_depth",
			Help:      "Number of jobs currently in the dead letter queue",
		},
	)

	// --- Circuit breaker metrics ---

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "orchestrator",
			Subsystem: "policy",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0=closed,1=half_open,2=open)",
		},
		[]string{"key"},
	)

	PolicyActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orchestrator",
			Subsystem: "policy",
			Name:      "actions_total",
			Help:      "Total number of policy engine decisions, by action kind",
		},
		[]string{"action"},
	)

	// --- Schedule engine metrics ---

	ScheduleFirings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orchestrator",
			Subsystem: "schedule",
			Name:      "firings_total",
			Help:      "Total number of schedule firings, by outcome",
		},
		[]string{"outcome"},
	)
)

// RecordJobCompletion records metrics for a terminal job.
func RecordJobCompletion(workflowID, status string, durationSeconds float64) {
	JobDuration.WithLabelValues(workflowID, status).Observe(durationSeconds)
}

// RecordDispatch records a single dispatch decision.
func RecordDispatch(lagSeconds float64) {
	JobsDispatched.Inc()
	DispatchLag.Observe(lagSeconds)
}
