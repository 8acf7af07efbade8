// Package observability exposes Prometheus metrics for the scheduling
// pipeline: queue depth, Gate decisions, loop duration, Redis latency,
// versioned-write outcomes, and leadership, all under a bms_ prefix.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepth tracks the number of waiting jobs, by priority.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bms_queue_depth",
		Help: "Current number of waiting jobs in the scheduling queue",
	}, []string{"priority"})

	// GateDecisions tracks Gate outcomes by process/skip and reason.
	GateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bms_gate_decisions_total",
		Help: "Total number of Gate decisions made",
	}, []string{"process", "reason"})

	// TickerLoopDuration tracks the wall time of one Gate evaluation.
	TickerLoopDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bms_ticker_evaluate_duration_seconds",
		Help:    "Duration of one Gate.Evaluate call",
		Buckets: prometheus.DefBuckets,
	})

	// JobRuntime tracks worker-pool job execution time.
	JobRuntime = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bms_job_runtime_seconds",
		Help:    "Worker pool job execution time, by equipment kind",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"kind"})

	// JobOutcomes tracks worker pool ack/fail outcomes.
	JobOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bms_job_outcomes_total",
		Help: "Total number of worker pool job outcomes",
	}, []string{"kind", "outcome"}) // outcome: ack, fail

	// RedisLatency tracks Redis round-trip latency for queue/state ops.
	RedisLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bms_redis_roundtrip_latency_seconds",
		Help:    "Redis operation latency",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
	})

	// VersionedWriteSuccess tracks successful state CompareAndSet writes.
	VersionedWriteSuccess = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bms_state_versioned_write_success_total",
		Help: "Total number of successful versioned unit-state writes",
	})

	// VersionedWriteConflict tracks CompareAndSet version conflicts.
	VersionedWriteConflict = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bms_state_versioned_write_conflict_total",
		Help: "Total number of unit-state version conflicts detected",
	})

	// DegradedMode tracks the current degraded-mode status per backend.
	DegradedMode = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bms_degraded_mode",
		Help: "Backend availability (1=unavailable, 0=available)",
	}, []string{"backend"}) // backend: queue, store

	// LeaderStatus tracks whether this replica currently holds the
	// intra-site HA lease.
	LeaderStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bms_leader_status",
		Help: "Current leader status of this replica (1 = leader, 0 = follower)",
	})

	// CommandsWritten tracks durable command records written, by kind.
	CommandsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bms_commands_written_total",
		Help: "Total number of command records written to the command store",
	}, []string{"kind", "command"})
)
