// Package metrics exposes Prometheus metrics for migration execution.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ChangesAppliedTotal tracks the total number of change units applied.
var ChangesAppliedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mongobee_changes_applied_total",
		Help: "Total change units applied for the first time",
	},
	[]string{"changelog"},
)

// ChangesReappliedTotal tracks the total number of run-always change units re-executed.
var ChangesReappliedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mongobee_changes_reapplied_total",
		Help: "Total run-always change units re-executed",
	},
	[]string{"changelog"},
)

// ChangesSkippedTotal tracks the total number of change units skipped.
var ChangesSkippedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mongobee_changes_skipped_total",
		Help: "Total change units skipped as already applied",
	},
	[]string{"changelog"},
)

// ChangesFailedTotal tracks the total number of change units whose action failed.
var ChangesFailedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mongobee_changes_failed_total",
		Help: "Total change units whose action returned an error",
	},
	[]string{"changelog"},
)

// LockAcquireAttemptsTotal tracks the total number of lock acquisition attempts.
var LockAcquireAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mongobee_lock_acquire_attempts_total",
		Help: "Total migration lock acquisition attempts",
	},
	[]string{"changelog"},
)

// RunsTotal tracks the total number of migration runs by result.
var RunsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mongobee_runs_total",
		Help: "Total migration runs by result",
	},
	[]string{"changelog", "result"},
)

// LockHeld tracks whether this process currently holds the migration lock.
var LockHeld = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "mongobee_lock_held",
		Help: "Whether this process holds the migration lock (1 or 0)",
	},
	[]string{"changelog"},
)

// RunDuration tracks end-to-end migration run duration.
var RunDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "mongobee_run_duration_seconds",
		Help:    "End-to-end migration run duration",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"changelog"},
)
