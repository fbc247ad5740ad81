// Package postgres provides a PostgreSQL implementation of store.Store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	mongobee "github.com/philips-internal/emr-mongobee"
	"github.com/philips-internal/emr-mongobee/store"
)

// uniqueViolation is the PostgreSQL error code for a uniqueness-constraint
// rejection.
const uniqueViolation = "23505"

// Store is a PostgreSQL implementation of store.Store.
// It persists the changelog ledger and the process lock record.
type Store struct {
	db             *sql.DB
	changelogTable string
	lockTable      string
}

// New creates a new PostgreSQL store with default table names.
func New(db *sql.DB) *Store {
	return NewWithConfig(db, DefaultTableConfig())
}

// NewWithConfig creates a new PostgreSQL store with custom table names.
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
		WHERE change_id = $1 AND author = $2
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
		VALUES ($1, $2, $3, $4)
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
	query := `SELECT indexname, indexdef FROM pg_indexes WHERE tablename = $1`

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
		var name, def string
		if err := rows.Scan(&name, &def); err != nil {
			return nil, fmt.Errorf("failed to scan index: %w", err)
		}
		indexes = append(indexes, store.IndexInfo{
			Name:    name,
			Columns: indexColumns(def),
			Unique:  strings.HasPrefix(def, "CREATE UNIQUE INDEX"),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating indexes: %w", err)
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
	query := fmt.Sprintf(`DROP INDEX %s`, pq.QuoteIdentifier(name))

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
		VALUES ($1, $2, $3)
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
		WHERE lock_key = $1
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
	query := fmt.Sprintf(`DELETE FROM %s WHERE lock_key = $1`, s.lockTable)

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

// isUniqueViolation reports whether err is a PostgreSQL unique-constraint
// rejection.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// indexColumns extracts the indexed column list from a pg_indexes indexdef,
// e.g. "CREATE UNIQUE INDEX x ON public.t USING btree (change_id, author)".
func indexColumns(def string) []string {
	start := strings.LastIndex(def, "(")
	end := strings.LastIndex(def, ")")
	if start < 0 || end <= start {
		return nil
	}

	parts := strings.Split(def[start+1:end], ",")
	columns := make([]string, 0, len(parts))
	for _, part := range parts {
		columns = append(columns, strings.TrimSpace(part))
	}
	return columns
}
