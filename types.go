package mongobee

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// LockKey is the fixed identifier of the singleton lock record.
// All runner instances targeting the same database compete for this key.
const LockKey = "mongobee_lock"

// Action is a change-unit action that needs no database handle.
type Action func(ctx context.Context) error

// DBAction is a change-unit action that receives the raw database handle,
// for migrations that operate on application tables directly.
type DBAction func(ctx context.Context, db *sql.DB) error

// ChangeUnit is one idempotent migration action identified by (ID, Author).
// Exactly one of Run or RunWithDB must be set.
//
// Units are supplied by a Provider and are immutable once fetched for a run.
// The engine applies them strictly in the order the Provider returns them.
type ChangeUnit struct {
	// ID identifies the change unit. Unique within Author.
	ID string

	// Author is the owner of the change unit.
	Author string

	// RunAlways marks the unit for re-execution on every run.
	// A re-execution never writes a second changelog row.
	RunAlways bool

	// Run is the zero-argument form of the action.
	Run Action

	// RunWithDB is the form of the action that takes the database handle.
	RunWithDB DBAction
}

// Validate checks the unit's identity and action shape.
// Any violation is a configuration error and aborts the run before the
// action is invoked.
func (u ChangeUnit) Validate() error {
	if u.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidChangeUnit)
	}
	if u.Author == "" {
		return fmt.Errorf("%w: missing Author (unit %q)", ErrInvalidChangeUnit, u.ID)
	}
	if u.Run == nil && u.RunWithDB == nil {
		return fmt.Errorf("%w: unit %q by %q has no action", ErrInvalidChangeUnit, u.ID, u.Author)
	}
	if u.Run != nil && u.RunWithDB != nil {
		return fmt.Errorf("%w: unit %q by %q sets both Run and RunWithDB", ErrInvalidChangeUnit, u.ID, u.Author)
	}
	return nil
}

// ChangeRecord is one row of the append-only changelog ledger.
// Records are created on first successful execution of a non-repeatable
// unit and are never updated or deleted by the engine.
type ChangeRecord struct {
	// ChangeID is the ID of the applied change unit.
	ChangeID string

	// Author is the author of the applied change unit.
	Author string

	// AppliedAt is when the unit was applied.
	AppliedAt time.Time

	// Metadata is optional diagnostic detail, opaque to the engine.
	Metadata string
}

// NewChangeRecord builds the ledger row for a successfully applied unit.
func NewChangeRecord(unit ChangeUnit) ChangeRecord {
	return ChangeRecord{
		ChangeID:  unit.ID,
		Author:    unit.Author,
		AppliedAt: time.Now(),
	}
}

// LockRecord is the singleton marker document enforcing single-runner
// exclusion across concurrent processes. At most one record may exist for a
// given Key; the store's uniqueness constraint enforces this.
type LockRecord struct {
	// Key is the fixed lock identifier (LockKey).
	Key string

	// Owner is the token of the runner instance holding the lock.
	Owner string

	// AcquiredAt is when the lock was acquired.
	AcquiredAt time.Time
}

// UnitStatus is the per-unit outcome tag reported for a run.
type UnitStatus string

const (
	// StatusApplied indicates the unit executed and was recorded in the ledger.
	StatusApplied UnitStatus = "applied"

	// StatusReapplied indicates a RunAlways unit re-executed without a new ledger row.
	StatusReapplied UnitStatus = "reapplied"

	// StatusSkipped indicates the unit was passed over because a ledger row exists.
	StatusSkipped UnitStatus = "skipped"

	// StatusFailed indicates the unit's action reported a failure.
	// The failure is isolated: no ledger row is written and the run continues,
	// so the unit is retried on the next run.
	StatusFailed UnitStatus = "failed"
)

// UnitResult is the outcome of one change unit within a run.
type UnitResult struct {
	// ChangeID is the ID of the change unit.
	ChangeID string

	// Author is the author of the change unit.
	Author string

	// Status is the outcome tag.
	Status UnitStatus

	// Err is the action's failure when Status is StatusFailed, nil otherwise.
	Err error
}

// Report summarizes one runner execution.
type Report struct {
	// LockAcquired is false when another runner held the lock and this run
	// terminated as a no-op.
	LockAcquired bool

	// Results lists per-unit outcomes in execution order.
	Results []UnitResult

	// StartedAt is when the run began.
	StartedAt time.Time

	// FinishedAt is when the run completed or aborted.
	FinishedAt time.Time
}

// Count returns the number of results with the given status.
func (r *Report) Count(status UnitStatus) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

// Failed returns the results of units whose actions failed during the run.
func (r *Report) Failed() []UnitResult {
	var failed []UnitResult
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			failed = append(failed, res)
		}
	}
	return failed
}
