// Package mongobee defines the domain model of the migration-execution
// engine: change units, the changelog ledger row, the process lock record,
// run reporting, and the Provider contract.
//
// The engine applies versioned, idempotent change units to a shared database
// exactly once, even when many process instances start concurrently. The
// database is the only coordination substrate: mutual exclusion is a
// uniqueness-constrained lock record, and the applied-change ledger carries a
// database-level unique constraint on (change_id, author).
package mongobee

import "context"

// Runner executes a migration run.
type Runner interface {
	// Run performs one migration run: it ensures the ledger constraint,
	// acquires the process lock, applies the Provider's change units in
	// order, and releases the lock on every exit path.
	//
	// Run returns a report of per-unit outcomes. A nil error means the run
	// completed; units whose actions failed are listed in the report and will
	// be retried on the next run. A non-nil error is the first unrecoverable
	// condition encountered (configuration, store, or lock failure).
	Run(ctx context.Context) (*Report, error)

	// IsExecutionInProgress reports whether any runner instance currently
	// holds the process lock for the target database.
	IsExecutionInProgress(ctx context.Context) (bool, error)
}
