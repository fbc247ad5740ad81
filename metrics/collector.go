package metrics

// Run result label values.
const (
	ResultCompleted   = "completed"
	ResultNotAcquired = "not_acquired"
	ResultAborted     = "aborted"
	ResultDisabled    = "disabled"
)

// Collector wraps metrics and provides helper methods with pre-filled labels.
type Collector struct {
	changelog string
}

// NewCollector creates a new Collector for the given changelog table.
func NewCollector(changelog string) *Collector {
	return &Collector{changelog: changelog}
}

// IncApplied increments the applied changes counter.
func (c *Collector) IncApplied() {
	ChangesAppliedTotal.WithLabelValues(c.changelog).Inc()
}

// IncReapplied increments the reapplied changes counter.
func (c *Collector) IncReapplied() {
	ChangesReappliedTotal.WithLabelValues(c.changelog).Inc()
}

// IncSkipped increments the skipped changes counter.
func (c *Collector) IncSkipped() {
	ChangesSkippedTotal.WithLabelValues(c.changelog).Inc()
}

// IncFailed increments the failed changes counter.
func (c *Collector) IncFailed() {
	ChangesFailedTotal.WithLabelValues(c.changelog).Inc()
}

// IncLockAcquireAttempt increments the lock acquisition attempts counter.
func (c *Collector) IncLockAcquireAttempt() {
	LockAcquireAttemptsTotal.WithLabelValues(c.changelog).Inc()
}

// IncRun increments the runs counter for the given result.
func (c *Collector) IncRun(result string) {
	RunsTotal.WithLabelValues(c.changelog, result).Inc()
}

// SetLockHeld sets the lock held gauge.
func (c *Collector) SetLockHeld(held bool) {
	v := 0.0
	if held {
		v = 1.0
	}
	LockHeld.WithLabelValues(c.changelog).Set(v)
}

// ObserveRunDuration records a migration run duration observation.
func (c *Collector) ObserveRunDuration(seconds float64) {
	RunDuration.WithLabelValues(c.changelog).Observe(seconds)
}
