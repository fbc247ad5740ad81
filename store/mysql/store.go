// Package mysql provides a MySQL/MariaDB implementation of store.Store.
//
// The connection DSN must include parseTime=true so TIMESTAMP columns scan
// into time.Time.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	mongobee "github.com/philips-internal/emr-mongobee"
	"github.com/philips-internal/emr-mongobee/store"
)

// uniqueViolation is the MySQL error number for a duplicate key entry.
const uniqueViolation = 1062

// Store is a MySQL implementation of store.Store.
// It persists the changelog ledger and the process lock record.
type Store struct {
	db             *sql.DB
	changelogTable string
	lockTable      string
}

// New creates a new MySQL store with default table names.
func New(db *sql.DB) *Store {
	return NewWithConfig(db, DefaultTableConfig())
}

// NewWithConfig creates a new MySQL store with custom table names.
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
	return s.listIndexes(ctx, s.changelogTable)
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
	query := fmt.Sprintf("DROP INDEX `%s` ON %s", name, s.changelogTable)

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
// column. MySQL lacks CREATE INDEX IF NOT EXISTS, so presence is checked
// through information_schema first.
func (s *Store) EnsureLockIndex(ctx context.Context) error {
	indexes, err := s.listIndexes(ctx, s.lockTable)
	if err != nil {
		return fmt.Errorf("failed to inspect lock indexes: %w", err)
	}

	name := LockIndexName(s.lockTable)
	for _, idx := range indexes {
		if idx.Name == name {
			return nil
		}
	}

	query := fmt.Sprintf(`CREATE UNIQUE INDEX %s ON %s (lock_key)`, name, s.lockTable)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure lock index: %w", err)
	}
	return nil
}

// listIndexes aggregates information_schema.statistics rows into IndexInfo
// values, one per index, with columns in index order.
func (s *Store) listIndexes(ctx context.Context, table string) ([]store.IndexInfo, error) {
	query := `
		SELECT index_name, column_name, non_unique
		FROM information_schema.statistics
		WHERE table_schema = DATABASE() AND table_name = ?
		ORDER BY index_name, seq_in_index
	`

	rows, err := s.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close rows: %w", closeErr)
		}
	}()

	var indexes []store.IndexInfo
	for rows.Next() {
		var name, column string
		var nonUnique int
		if err := rows.Scan(&name, &column, &nonUnique); err != nil {
			return nil, fmt.Errorf("failed to scan index: %w", err)
		}

		if n := len(indexes); n > 0 && indexes[n-1].Name == name {
			indexes[n-1].Columns = append(indexes[n-1].Columns, column)
			continue
		}
		indexes = append(indexes, store.IndexInfo{
			Name:    name,
			Columns: []string{column},
			Unique:  nonUnique == 0,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating indexes: %w", err)
	}

	return indexes, nil
}

// isUniqueViolation reports whether err is a MySQL duplicate-key rejection.
func isUniqueViolation(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == uniqueViolation
}
