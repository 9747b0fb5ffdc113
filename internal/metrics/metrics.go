package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "parentguard"

var (
	// PolicyMutations counts successful policy store writes.
	PolicyMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "policy_mutations_total",
		Help:      "Successful policy store mutations.",
	}, []string{"kind", "op"})

	// AuthAttempts counts supervisor password and exit PIN checks.
	AuthAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_attempts_total",
		Help:      "Supervisor password and exit PIN checks.",
	}, []string{"kind", "result"})

	// SessionTransitions counts state machine transitions by target state.
	SessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_transitions_total",
		Help:      "Session state machine transitions by target state.",
	}, []string{"to"})

	// SyncJobs counts sync bridge jobs by operation and outcome.
	SyncJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_jobs_total",
		Help:      "Sync bridge jobs by operation and outcome.",
	}, []string{"op", "status"})

	// JobsEnqueued counts jobs placed into the worker channel.
	JobsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_enqueued_total",
		Help:      "Jobs placed into worker channel.",
	}, []string{"op"})

	// JobsDropped counts jobs discarded without an agent call.
	JobsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_dropped_total",
		Help:      "Jobs discarded without an agent call.",
	}, []string{"reason"})

	// AgentCalls counts raw enforcement agent API calls.
	AgentCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "agent_calls_total",
		Help:      "Raw enforcement agent API call counts.",
	}, []string{"endpoint", "status"})

	// AgentDuration records enforcement agent call latency.
	AgentDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "agent_duration_seconds",
		Help:      "Enforcement agent call latency in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
	}, []string{"endpoint"})

	// EnforcementActive is 1 while a restricted session has enforcement
	// confirmed active on the agent, 0 otherwise.
	EnforcementActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "enforcement_active",
		Help:      "1 while enforcement is confirmed active on the agent.",
	})

	// AgentReachable is 1 while the enforcement agent answers pings.
	AgentReachable = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "agent_reachable",
		Help:      "1 while the enforcement agent answers pings.",
	})

	// ActivityEvicted counts activity log entries removed by retention.
	ActivityEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "activity_evicted_total",
		Help:      "Activity log entries removed by the retention cap.",
	})

	// ActivityEntries tracks the current activity log size.
	ActivityEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "activity_entries",
		Help:      "Current number of activity log entries.",
	})

	// DBSizeBytes tracks bbolt on-disk file size.
	DBSizeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_size_bytes",
		Help:      "bbolt on-disk file size in bytes.",
	})

	// WorkerQueueDepth tracks current job channel length.
	WorkerQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "worker_queue_depth",
		Help:      "Current job channel buffer depth.",
	})
)
