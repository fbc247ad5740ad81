// Package sqlite provides a SQLite implementation of store.Store.
//
// SQLite serializes writers within a single file, but the engine still runs
// its full lock protocol so behavior matches the server-backed stores.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	mongobee "github.com/philips-internal/emr-mongobee"
	"github.com/philips-internal/emr-mongobee/store"
)

// Store is a SQLite implementation of store.Store.
// It persists the changelog ledger and the process lock record.
type Store struct {
	db             *sql.DB
	changelogTable string
	lockTable      string
}

// New creates a new SQLite store with default table names.
func New(db *sql.DB) *Store {
	return NewWithConfig(db, DefaultTableConfig())
}

// NewWithConfig creates a new SQLite store with custom table names.
func NewWithConfig(db *sql.DB, config TableConfig) *Store {
	return &Store{
		db:             db,
		changelogTable: config.ChangelogTable,
		lockTable:      config.LockTable,
	}
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// FindChangeRecord returns the ledger row matching both fields exactly.
// Returns store.ErrNotFound if no row matches.
func (s *Store) FindChangeRecord(ctx context.Context, changeID, author string) (mongobee.ChangeRecord, error) {
	query := fmt.Sprintf(`
		SELECT change_id, author, applied_at, metadata
		FROM %s
		WHERE change_id = ? AND author = ?
		LIMIT 1
	`, s.changelogTable)

	var rec mongobee.ChangeRecord
	err := s.db.QueryRowContext(ctx, query, changeID, author).Scan(
		&rec.ChangeID,
		&rec.Author,
		&rec.AppliedAt,
		&rec.Metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return mongobee.ChangeRecord{}, store.ErrNotFound
	}
	if err != nil {
		return mongobee.ChangeRecord{}, fmt.Errorf("failed to find change record: %w", err)
	}

	return rec, nil
}

// InsertChangeRecord appends a ledger row atomically.
// Returns store.ErrDuplicateKey if the unique constraint rejects the insert.
func (s *Store) InsertChangeRecord(ctx context.Context, record mongobee.ChangeRecord) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (change_id, author, applied_at, metadata)
		VALUES (?, ?, ?, ?)
	`, s.changelogTable)

	_, err := s.db.ExecContext(ctx, query, record.ChangeID, record.Author, record.AppliedAt, record.Metadata)
	if isUniqueViolation(err) {
		return store.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("failed to insert change record: %w", err)
	}

	return nil
}

// ListChangeIndexes returns the indexes defined on the changelog table.
func (s *Store) ListChangeIndexes(ctx context.Context) ([]store.IndexInfo, error) {
	query := `SELECT name, "unique" FROM pragma_index_list(?)`

	rows, err := s.db.QueryContext(ctx, query, s.changelogTable)
	if err != nil {
		return nil, fmt.Errorf("failed to list change indexes: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close rows: %w", closeErr)
		}
	}()

	var indexes []store.IndexInfo
	for rows.Next() {
		var name string
		var unique int
		if err := rows.Scan(&name, &unique); err != nil {
			return nil, fmt.Errorf("failed to scan index: %w", err)
		}
		indexes = append(indexes, store.IndexInfo{Name: name, Unique: unique == 1})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating indexes: %w", err)
	}

	for i := range indexes {
		columns, err := s.indexColumns(ctx, indexes[i].Name)
		if err != nil {
			return nil, err
		}
		indexes[i].Columns = columns
	}

	return indexes, nil
}

// CreateUniqueChangeIndex creates the unique composite index over
// (change_id, author) on the changelog table.
func (s *Store) CreateUniqueChangeIndex(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE UNIQUE INDEX %s ON %s (change_id, author)`,
		ChangeIndexName(s.changelogTable), s.changelogTable)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create unique change index: %w", err)
	}
	return nil
}

// DropChangeIndex drops the named index from the changelog table.
func (s *Store) DropChangeIndex(ctx context.Context, name string) error {
	query := fmt.Sprintf(`DROP INDEX "%s"`, name)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to drop change index %s: %w", name, err)
	}
	return nil
}

// InsertLockRecord inserts the lock record atomically under its key.
// Returns store.ErrDuplicateKey if the lock is already held.
func (s *Store) InsertLockRecord(ctx context.Context, record mongobee.LockRecord) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (lock_key, owner, acquired_at)
		VALUES (?, ?, ?)
	`, s.lockTable)

	_, err := s.db.ExecContext(ctx, query, record.Key, record.Owner, record.AcquiredAt)
	if isUniqueViolation(err) {
		return store.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("failed to insert lock record: %w", err)
	}

	return nil
}

// FindLockRecord returns the lock record for the given key.
// Returns store.ErrNotFound if the lock is not held.
func (s *Store) FindLockRecord(ctx context.Context, key string) (mongobee.LockRecord, error) {
	query := fmt.Sprintf(`
		SELECT lock_key, owner, acquired_at
		FROM %s
		WHERE lock_key = ?
		LIMIT 1
	`, s.lockTable)

	var rec mongobee.LockRecord
	err := s.db.QueryRowContext(ctx, query, key).Scan(&rec.Key, &rec.Owner, &rec.AcquiredAt)

	if errors.Is(err, sql.ErrNoRows) {
		return mongobee.LockRecord{}, store.ErrNotFound
	}
	if err != nil {
		return mongobee.LockRecord{}, fmt.Errorf("failed to find lock record: %w", err)
	}

	return rec, nil
}

// DeleteLockRecord removes the lock record for the given key.
// Deleting an absent record is not an error.
func (s *Store) DeleteLockRecord(ctx context.Context, key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE lock_key = ?`, s.lockTable)

	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete lock record: %w", err)
	}
	return nil
}

// EnsureLockIndex idempotently creates the unique index on the lock key
// column.
func (s *Store) EnsureLockIndex(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (lock_key)`,
		LockIndexName(s.lockTable), s.lockTable)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure lock index: %w", err)
	}
	return nil
}

// indexColumns returns the indexed columns of the named index in index order.
func (s *Store) indexColumns(ctx context.Context, name string) ([]string, error) {
	query := `SELECT name FROM pragma_index_info(?) ORDER BY seqno`

	rows, err := s.db.QueryContext(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read index columns: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close rows: %w", closeErr)
		}
	}()

	var columns []string
	for rows.Next() {
		var column string
		if err := rows.Scan(&column); err != nil {
			return nil, fmt.Errorf("failed to scan index column: %w", err)
		}
		columns = append(columns, column)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating index columns: %w", err)
	}

	return columns, nil
}

// isUniqueViolation reports whether err is a SQLite uniqueness-constraint
// rejection.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
