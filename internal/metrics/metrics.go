// Package metrics declares the Prometheus instrumentation for query
// phases, shard lookups, and cache effectiveness, registered against
// the default registry the way entitydb wires prometheus/client_golang.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueryDuration observes end-to-end query latency by terminal status
	// (success, degraded, timeout), matching the status field of the JSON
	// response. Queries that end in an error are not observed.
	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "alexidx",
		Subsystem: "query",
		Name:      "duration_seconds",
		Help:      "Query latency in seconds, labeled by terminal status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"status"})

	// QueryPhaseDuration observes the duration of each query phase
	// (tokenize, lookup, intersect, score), matching the cancellation
	// checkpoints of spec §5.
	QueryPhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "alexidx",
		Subsystem: "query",
		Name:      "phase_duration_seconds",
		Help:      "Per-phase query latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"phase"})

	// ShardLookups counts failed shard lookups in the query engine by
	// outcome: io_error_retry for a first failure that is retried, and
	// io_error for a retry that also failed. Successful lookups are not
	// counted, and the family label is always "unknown".
	ShardLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alexidx",
		Subsystem: "shard",
		Name:      "lookups_total",
		Help:      "Shard lookups by index family and outcome.",
	}, []string{"family", "outcome"})

	// PostingListTruncated counts how many looked-up posting lists were
	// OR-pool classified (total_count > len()), per index family.
	PostingListTruncated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alexidx",
		Subsystem: "shard",
		Name:      "posting_list_truncated_total",
		Help:      "Posting list lookups classified as frequent-truncated (OR-pool), by family.",
	}, []string{"family"})

	// ResolverCache counts resolver cache hits and misses.
	ResolverCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alexidx",
		Subsystem: "resolver",
		Name:      "cache_total",
		Help:      "Document resolver cache hits and misses.",
	}, []string{"outcome"})

	// WorkersInFlight reports the current occupied worker-pool slots.
	WorkersInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "alexidx",
		Subsystem: "workerpool",
		Name:      "in_flight",
		Help:      "Worker pool slots currently occupied.",
	})

	// ShardBuildSeconds observes shard flush/seal duration during a
	// build, labeled by index family.
	ShardBuildSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "alexidx",
		Subsystem: "build",
		Name:      "seal_duration_seconds",
		Help:      "Time to seal one shard file, by index family.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"family"})
)
