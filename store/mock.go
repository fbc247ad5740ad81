package store

import (
	"context"
	"sync"

	mongobee "github.com/philips-internal/emr-mongobee"
)

// MockStore is a configurable mock implementation of Store for use in tests.
// It allows setting up expected return values, tracking method calls, and
// injecting errors for testing error paths.
type MockStore struct {
	mu sync.RWMutex

	// FindChangeRecordFunc is called by FindChangeRecord if set.
	FindChangeRecordFunc func(ctx context.Context, changeID, author string) (mongobee.ChangeRecord, error)

	// InsertChangeRecordFunc is called by InsertChangeRecord if set.
	InsertChangeRecordFunc func(ctx context.Context, record mongobee.ChangeRecord) error

	// ListChangeIndexesFunc is called by ListChangeIndexes if set.
	ListChangeIndexesFunc func(ctx context.Context) ([]IndexInfo, error)

	// CreateUniqueChangeIndexFunc is called by CreateUniqueChangeIndex if set.
	CreateUniqueChangeIndexFunc func(ctx context.Context) error

	// DropChangeIndexFunc is called by DropChangeIndex if set.
	DropChangeIndexFunc func(ctx context.Context, name string) error

	// InsertLockRecordFunc is called by InsertLockRecord if set.
	InsertLockRecordFunc func(ctx context.Context, record mongobee.LockRecord) error

	// FindLockRecordFunc is called by FindLockRecord if set.
	FindLockRecordFunc func(ctx context.Context, key string) (mongobee.LockRecord, error)

	// DeleteLockRecordFunc is called by DeleteLockRecord if set.
	DeleteLockRecordFunc func(ctx context.Context, key string) error

	// EnsureLockIndexFunc is called by EnsureLockIndex if set.
	EnsureLockIndexFunc func(ctx context.Context) error

	// Call tracking
	FindChangeRecordCalls        []FindChangeRecordCall
	InsertChangeRecordCalls      []InsertChangeRecordCall
	ListChangeIndexesCalls       int
	CreateUniqueChangeIndexCalls int
	DropChangeIndexCalls         []DropChangeIndexCall
	InsertLockRecordCalls        []InsertLockRecordCall
	FindLockRecordCalls          []FindLockRecordCall
	DeleteLockRecordCalls        []DeleteLockRecordCall
	EnsureLockIndexCalls         int
}

// Call tracking structs
type FindChangeRecordCall struct {
	ChangeID string
	Author   string
}

type InsertChangeRecordCall struct {
	Record mongobee.ChangeRecord
}

type DropChangeIndexCall struct {
	Name string
}

type InsertLockRecordCall struct {
	Record mongobee.LockRecord
}

type FindLockRecordCall struct {
	Key string
}

type DeleteLockRecordCall struct {
	Key string
}

// NewMockStore creates a new MockStore with no behaviors configured.
// Unconfigured ledger lookups return ErrNotFound; unconfigured mutations
// succeed.
func NewMockStore() *MockStore {
	return &MockStore{}
}

// Compile-time check that MockStore implements Store.
var _ Store = (*MockStore)(nil)

// FindChangeRecord calls FindChangeRecordFunc if set, otherwise returns ErrNotFound.
func (m *MockStore) FindChangeRecord(ctx context.Context, changeID, author string) (mongobee.ChangeRecord, error) {
	m.mu.Lock()
	m.FindChangeRecordCalls = append(m.FindChangeRecordCalls, FindChangeRecordCall{ChangeID: changeID, Author: author})
	fn := m.FindChangeRecordFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, changeID, author)
	}
	return mongobee.ChangeRecord{}, ErrNotFound
}

// InsertChangeRecord calls InsertChangeRecordFunc if set, otherwise succeeds.
func (m *MockStore) InsertChangeRecord(ctx context.Context, record mongobee.ChangeRecord) error {
	m.mu.Lock()
	m.InsertChangeRecordCalls = append(m.InsertChangeRecordCalls, InsertChangeRecordCall{Record: record})
	fn := m.InsertChangeRecordFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, record)
	}
	return nil
}

// ListChangeIndexes calls ListChangeIndexesFunc if set, otherwise returns no indexes.
func (m *MockStore) ListChangeIndexes(ctx context.Context) ([]IndexInfo, error) {
	m.mu.Lock()
	m.ListChangeIndexesCalls++
	fn := m.ListChangeIndexesFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return nil, nil
}

// CreateUniqueChangeIndex calls CreateUniqueChangeIndexFunc if set, otherwise succeeds.
func (m *MockStore) CreateUniqueChangeIndex(ctx context.Context) error {
	m.mu.Lock()
	m.CreateUniqueChangeIndexCalls++
	fn := m.CreateUniqueChangeIndexFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return nil
}

// DropChangeIndex calls DropChangeIndexFunc if set, otherwise succeeds.
func (m *MockStore) DropChangeIndex(ctx context.Context, name string) error {
	m.mu.Lock()
	m.DropChangeIndexCalls = append(m.DropChangeIndexCalls, DropChangeIndexCall{Name: name})
	fn := m.DropChangeIndexFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, name)
	}
	return nil
}

// InsertLockRecord calls InsertLockRecordFunc if set, otherwise succeeds.
func (m *MockStore) InsertLockRecord(ctx context.Context, record mongobee.LockRecord) error {
	m.mu.Lock()
	m.InsertLockRecordCalls = append(m.InsertLockRecordCalls, InsertLockRecordCall{Record: record})
	fn := m.InsertLockRecordFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, record)
	}
	return nil
}

// FindLockRecord calls FindLockRecordFunc if set, otherwise returns ErrNotFound.
func (m *MockStore) FindLockRecord(ctx context.Context, key string) (mongobee.LockRecord, error) {
	m.mu.Lock()
	m.FindLockRecordCalls = append(m.FindLockRecordCalls, FindLockRecordCall{Key: key})
	fn := m.FindLockRecordFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, key)
	}
	return mongobee.LockRecord{}, ErrNotFound
}

// DeleteLockRecord calls DeleteLockRecordFunc if set, otherwise succeeds.
func (m *MockStore) DeleteLockRecord(ctx context.Context, key string) error {
	m.mu.Lock()
	m.DeleteLockRecordCalls = append(m.DeleteLockRecordCalls, DeleteLockRecordCall{Key: key})
	fn := m.DeleteLockRecordFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, key)
	}
	return nil
}

// EnsureLockIndex calls EnsureLockIndexFunc if set, otherwise succeeds.
func (m *MockStore) EnsureLockIndex(ctx context.Context) error {
	m.mu.Lock()
	m.EnsureLockIndexCalls++
	fn := m.EnsureLockIndexFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return nil
}
