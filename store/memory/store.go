// Package memory provides an in-memory Store implementation for testing.
package memory

import (
	"context"
	"slices"
	"sync"

	mongobee "github.com/philips-internal/emr-mongobee"
	"github.com/philips-internal/emr-mongobee/store"
)

// uniqueChangeIndexName is the name the store gives the composite unique
// index it creates over (change_id, author).
const uniqueChangeIndexName = "change_id_1_author_1"

// Store is an in-memory implementation of store.Store.
// It is safe for concurrent access and models uniqueness-constraint
// rejection the way a real database does: duplicate ledger rows are only
// rejected while a unique composite index exists.
type Store struct {
	mu               sync.RWMutex
	records          []mongobee.ChangeRecord
	indexes          []store.IndexInfo
	locks            map[string]mongobee.LockRecord
	lockIndexEnsured bool
}

// New creates a new in-memory store with no indexes and an empty ledger.
func New() *Store {
	return &Store{
		locks: make(map[string]mongobee.LockRecord),
	}
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// FindChangeRecord returns the ledger row matching both fields exactly.
// Returns store.ErrNotFound if no row matches.
func (s *Store) FindChangeRecord(ctx context.Context, changeID, author string) (mongobee.ChangeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.ChangeID == changeID && rec.Author == author {
			return rec, nil
		}
	}
	return mongobee.ChangeRecord{}, store.ErrNotFound
}

// InsertChangeRecord appends a ledger row.
// Returns store.ErrDuplicateKey when a unique composite index exists and a
// row for (ChangeID, Author) is already present.
func (s *Store) InsertChangeRecord(ctx context.Context, record mongobee.ChangeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasUniqueChangeIndex() {
		for _, rec := range s.records {
			if rec.ChangeID == record.ChangeID && rec.Author == record.Author {
				return store.ErrDuplicateKey
			}
		}
	}

	s.records = append(s.records, record)
	return nil
}

// ListChangeIndexes returns the indexes defined on the changelog.
func (s *Store) ListChangeIndexes(ctx context.Context) ([]store.IndexInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	indexes := make([]store.IndexInfo, len(s.indexes))
	copy(indexes, s.indexes)
	return indexes, nil
}

// CreateUniqueChangeIndex creates the unique composite index over
// (change_id, author).
func (s *Store) CreateUniqueChangeIndex(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.indexes = append(s.indexes, store.IndexInfo{
		Name:    uniqueChangeIndexName,
		Columns: []string{"change_id", "author"},
		Unique:  true,
	})
	return nil
}

// DropChangeIndex drops the named index.
// Returns store.ErrNotFound if no index has that name.
func (s *Store) DropChangeIndex(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, idx := range s.indexes {
		if idx.Name == name {
			s.indexes = append(s.indexes[:i], s.indexes[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

// InsertLockRecord inserts the lock record under its key.
// Returns store.ErrDuplicateKey if the key is already present.
func (s *Store) InsertLockRecord(ctx context.Context, record mongobee.LockRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, held := s.locks[record.Key]; held {
		return store.ErrDuplicateKey
	}

	s.locks[record.Key] = record
	return nil
}

// FindLockRecord returns the lock record for the given key.
// Returns store.ErrNotFound if the lock is not held.
func (s *Store) FindLockRecord(ctx context.Context, key string) (mongobee.LockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, held := s.locks[key]
	if !held {
		return mongobee.LockRecord{}, store.ErrNotFound
	}
	return rec, nil
}

// DeleteLockRecord removes the lock record for the given key.
// Deleting an absent record is not an error.
func (s *Store) DeleteLockRecord(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.locks, key)
	return nil
}

// EnsureLockIndex records that the lock key index exists. The map key
// already provides the uniqueness guarantee.
func (s *Store) EnsureLockIndex(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lockIndexEnsured = true
	return nil
}

// SeedIndex adds an index description without touching the ledger.
// Tests use it to model changelogs created by older engine versions,
// e.g. a non-unique composite index that the guardian must heal.
func (s *Store) SeedIndex(index store.IndexInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.indexes = append(s.indexes, index)
}

// ChangeRecords returns a snapshot of the ledger in insertion order.
func (s *Store) ChangeRecords() []mongobee.ChangeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]mongobee.ChangeRecord, len(s.records))
	copy(records, s.records)
	return records
}

func (s *Store) hasUniqueChangeIndex() bool {
	for _, idx := range s.indexes {
		if idx.Unique && slices.Equal(idx.Columns, []string{"change_id", "author"}) {
			return true
		}
	}
	return false
}
