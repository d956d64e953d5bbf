// Package metrics provides Prometheus metrics for the Sage service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// VersionsCreatedTotal tracks versions written per entity type
	VersionsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "versions",
			Name:      "created_total",
			Help:      "Total number of content versions created",
		},
		[]string{"entity_type", "branch"},
	)

	// VersionsPublishedTotal tracks publishes per entity type
	VersionsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "versions",
			Name:      "published_total",
			Help:      "Total number of content versions published",
		},
		[]string{"entity_type"},
	)

	// MergesTotal tracks merge attempts by strategy and outcome
	MergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "merges",
			Name:      "total",
			Help:      "Total number of branch merges by strategy and outcome",
		},
		[]string{"strategy", "status"},
	)

	// MergeConflictsTotal tracks conflicting paths detected during merges
	MergeConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "merges",
			Name:      "conflicts_total",
			Help:      "Total number of conflicting paths detected during merges",
		},
		[]string{"strategy"},
	)

	// MergeDuration tracks merge execution time in seconds
	MergeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sage",
			Subsystem: "merges",
			Name:      "duration_seconds",
			Help:      "Duration of branch merges in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"strategy"},
	)

	// LockAcquisitionsTotal tracks lock acquire attempts by result
	LockAcquisitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "locks",
			Name:      "acquisitions_total",
			Help:      "Total number of lock acquisition attempts by result",
		},
		[]string{"result"},
	)

	// LocksExpiredTotal tracks locks deactivated by the expiry sweep
	LocksExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "locks",
			Name:      "expired_total",
			Help:      "Total number of locks deactivated by the expiry sweep",
		},
	)

	// ApprovalDecisionsTotal tracks reviewer decisions by outcome
	ApprovalDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "approvals",
			Name:      "decisions_total",
			Help:      "Total number of reviewer decisions by outcome",
		},
		[]string{"status"},
	)

	// DiffCacheLookupsTotal tracks diff cache hits and misses
	DiffCacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "diffs",
			Name:      "cache_lookups_total",
			Help:      "Total number of diff cache lookups by result",
		},
		[]string{"result"},
	)

	// EventsPublishedTotal tracks kafka event publishes by result
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of kafka events published by result",
		},
		[]string{"event_type", "result"},
	)

	// SchedulerSweepsTotal tracks maintenance sweeps run by the scheduler
	SchedulerSweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "scheduler",
			Name:      "sweeps_total",
			Help:      "Total number of maintenance sweeps by job",
		},
		[]string{"job"},
	)
)

// RecordMerge records one merge attempt.
func RecordMerge(strategy, status string, conflicts int, elapsed time.Duration) {
	MergesTotal.WithLabelValues(strategy, status).Inc()
	if conflicts > 0 {
		MergeConflictsTotal.WithLabelValues(strategy).Add(float64(conflicts))
	}
	MergeDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
}

// RecordLockAcquisition records one acquire attempt outcome
// ("granted", "extended", or "contended").
func RecordLockAcquisition(result string) {
	LockAcquisitionsTotal.WithLabelValues(result).Inc()
}

// RecordDiffCacheLookup records a cache "hit" or "miss".
func RecordDiffCacheLookup(result string) {
	DiffCacheLookupsTotal.WithLabelValues(result).Inc()
}
