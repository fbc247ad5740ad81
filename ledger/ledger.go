// Package ledger maintains the append-only record of applied change units
// and guards its database-level uniqueness constraint.
//
// The constraint over (change_id, author) is the engine's defense in depth:
// even if the process-level lock were somehow bypassed, the database itself
// rejects a duplicate ledger row.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"

	mongobee "github.com/philips-internal/emr-mongobee"
	"github.com/philips-internal/emr-mongobee/store"
)

// constraintColumns is the composite key the guardian requires on the
// changelog store.
var constraintColumns = []string{"change_id", "author"}

// Config holds configuration for the Ledger.
type Config struct {
	// Store is the changelog persistence backend (required).
	Store store.Store

	// Logger is for observability (optional).
	Logger mongobee.Logger
}

// Ledger is the append-only store of applied change-unit identities.
type Ledger struct {
	config Config
}

// New creates a new Ledger with the given configuration.
func New(cfg Config) *Ledger {
	return &Ledger{config: cfg}
}

// EnsureConstraint converges the changelog store to exactly one unique
// composite index over (change_id, author).
//
// A missing index is created. An existing non-unique index over the same
// columns is dropped and recreated as unique, healing changelogs created by
// older engine versions. Repeated calls are idempotent.
func (l *Ledger) EnsureConstraint(ctx context.Context) error {
	indexes, err := l.config.Store.ListChangeIndexes(ctx)
	if err != nil {
		return fmt.Errorf("failed to inspect changelog indexes: %w", err)
	}

	existing, found := findConstraintIndex(indexes)
	if !found {
		if err := l.config.Store.CreateUniqueChangeIndex(ctx); err != nil {
			return err
		}
		if l.config.Logger != nil {
			l.config.Logger.Debug(ctx, "changelog index created")
		}
		return nil
	}

	if existing.Unique {
		return nil
	}

	if err := l.config.Store.DropChangeIndex(ctx, existing.Name); err != nil {
		return err
	}
	if err := l.config.Store.CreateUniqueChangeIndex(ctx); err != nil {
		return err
	}
	if l.config.Logger != nil {
		l.config.Logger.Debug(ctx, "changelog index recreated as unique", "replaced", existing.Name)
	}
	return nil
}

// IsNew reports whether no ledger row matches both changeID and author
// exactly.
func (l *Ledger) IsNew(ctx context.Context, changeID, author string) (bool, error) {
	_, err := l.config.Store.FindChangeRecord(ctx, changeID, author)
	if errors.Is(err, store.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up change record: %w", err)
	}
	return false, nil
}

// Append inserts a ledger row immutably. The store's uniqueness constraint
// rejects true duplicates.
func (l *Ledger) Append(ctx context.Context, record mongobee.ChangeRecord) error {
	if err := l.config.Store.InsertChangeRecord(ctx, record); err != nil {
		return fmt.Errorf("failed to append change record: %w", err)
	}
	return nil
}

// findConstraintIndex returns the index over exactly the constraint columns,
// if one exists.
func findConstraintIndex(indexes []store.IndexInfo) (store.IndexInfo, bool) {
	for _, idx := range indexes {
		if slices.Equal(idx.Columns, constraintColumns) {
			return idx, true
		}
	}
	return store.IndexInfo{}, false
}
