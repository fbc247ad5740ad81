// Package store defines the persistence contract the migration engine
// requires of a target database: atomic insert with uniqueness-constraint
// rejection, exact-match lookup, and index introspection and maintenance.
package store

import (
	"context"

	mongobee "github.com/philips-internal/emr-mongobee"
)

// IndexInfo describes one index on the changelog store.
type IndexInfo struct {
	// Name is the index name as reported by the database.
	Name string

	// Columns lists the indexed columns in index order.
	Columns []string

	// Unique reports whether the index enforces uniqueness.
	Unique bool
}

// Store provides persistence for the changelog ledger and the process lock.
// Implementations must be safe for concurrent access from multiple runner
// instances, possibly on different hosts.
type Store interface {
	// FindChangeRecord returns the ledger row matching both changeID and
	// author exactly. Returns ErrNotFound if no row matches.
	FindChangeRecord(ctx context.Context, changeID, author string) (mongobee.ChangeRecord, error)

	// InsertChangeRecord appends a ledger row atomically.
	// Returns ErrDuplicateKey if a row for (changeID, author) already exists
	// and the unique constraint rejects the insert.
	InsertChangeRecord(ctx context.Context, record mongobee.ChangeRecord) error

	// ListChangeIndexes returns the indexes currently defined on the
	// changelog store, with their uniqueness flags.
	ListChangeIndexes(ctx context.Context) ([]IndexInfo, error)

	// CreateUniqueChangeIndex creates the unique composite index over
	// (change_id, author) on the changelog store.
	CreateUniqueChangeIndex(ctx context.Context) error

	// DropChangeIndex drops the named index from the changelog store.
	DropChangeIndex(ctx context.Context, name string) error

	// InsertLockRecord inserts the lock record atomically under its key.
	// Returns ErrDuplicateKey if the lock is already held; any other error
	// is a connection or configuration failure.
	InsertLockRecord(ctx context.Context, record mongobee.LockRecord) error

	// FindLockRecord returns the lock record for the given key.
	// Returns ErrNotFound if the lock is not held.
	FindLockRecord(ctx context.Context, key string) (mongobee.LockRecord, error)

	// DeleteLockRecord removes the lock record for the given key.
	// Deleting an absent record is not an error.
	DeleteLockRecord(ctx context.Context, key string) error

	// EnsureLockIndex idempotently creates the unique index on the lock
	// store's key column.
	EnsureLockIndex(ctx context.Context) error
}
