// Package lock implements singleton mutual exclusion across runner
// instances using a uniqueness-constrained lock record in the target
// database. No external lock service is involved: an atomic insert either
// succeeds (lock acquired) or is rejected by the key's uniqueness constraint
// (lock held elsewhere).
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	mongobee "github.com/philips-internal/emr-mongobee"
	"github.com/philips-internal/emr-mongobee/store"
)

// Config holds configuration for the lock Manager.
type Config struct {
	// Store is the lock persistence backend (required).
	Store store.Store

	// WaitForLock enables polling for the lock when the immediate attempt
	// finds it held (default: false).
	WaitForLock bool

	// WaitTimeout is the maximum total time to wait for the lock when
	// WaitForLock is enabled (default: 5m).
	WaitTimeout time.Duration

	// PollInterval is the sleep between acquisition retries (default: 10s).
	PollInterval time.Duration

	// FailIfNotAcquired makes Acquire return ErrLockNotAcquired instead of
	// (false, nil) when the lock cannot be obtained within policy
	// (default: false).
	FailIfNotAcquired bool

	// Logger is for observability (optional).
	Logger mongobee.Logger
}

// Manager owns the lock record lifecycle for one runner instance.
// Each Manager carries its own owner token, so a record can be traced back
// to the instance that created it.
type Manager struct {
	config Config
	owner  string
}

// New creates a new lock Manager with the given configuration.
// Applies default values for WaitTimeout and PollInterval if not set.
func New(cfg Config) *Manager {
	if cfg.WaitTimeout == 0 {
		cfg.WaitTimeout = 5 * time.Minute
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Second
	}

	return &Manager{
		config: cfg,
		owner:  uuid.New().String(),
	}
}

// Acquire attempts to obtain the process lock.
//
// The immediate attempt is an atomic insert; a uniqueness-constraint
// rejection means another runner holds the lock and yields (false, nil),
// not an error. With WaitForLock enabled, acquisition is retried every
// PollInterval until WaitTimeout elapses or ctx is cancelled. When the lock
// is still unheld at the end of policy, the result is (false, nil), or
// (false, ErrLockNotAcquired) when FailIfNotAcquired is set.
func (m *Manager) Acquire(ctx context.Context) (bool, error) {
	acquired, err := m.tryAcquire(ctx)
	if err != nil {
		return false, err
	}

	if !acquired && m.config.WaitForLock {
		acquired, err = m.waitForLock(ctx)
		if err != nil {
			return false, err
		}
	}

	if !acquired && m.config.FailIfNotAcquired {
		return false, mongobee.ErrLockNotAcquired
	}

	return acquired, nil
}

// Release deletes the lock record. It must run on every exit path after a
// successful Acquire, including aborted runs.
func (m *Manager) Release(ctx context.Context) error {
	if err := m.config.Store.DeleteLockRecord(ctx, mongobee.LockKey); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	if m.config.Logger != nil {
		m.config.Logger.Debug(ctx, "released process lock", "owner", m.owner)
	}
	return nil
}

// IsHeld reports whether any runner instance currently holds the lock.
func (m *Manager) IsHeld(ctx context.Context) (bool, error) {
	_, err := m.config.Store.FindLockRecord(ctx, mongobee.LockKey)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check lock: %w", err)
	}
	return true, nil
}

// Owner returns this manager's owner token.
func (m *Manager) Owner() string {
	return m.owner
}

// waitForLock polls for the lock until it is acquired, WaitTimeout elapses,
// or ctx is cancelled.
func (m *Manager) waitForLock(ctx context.Context) (bool, error) {
	deadline := time.Now().Add(m.config.WaitTimeout)
	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		if m.config.Logger != nil {
			m.config.Logger.Info(ctx, "waiting for changelog lock", "pollInterval", m.config.PollInterval)
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
			acquired, err := m.tryAcquire(ctx)
			if err != nil {
				return false, err
			}
			if acquired {
				return true, nil
			}
		}
	}

	return false, nil
}

// tryAcquire performs one atomic insert of the lock record.
// A duplicate-key rejection means the lock is held elsewhere; any other
// insert failure is a fatal connection or configuration error.
func (m *Manager) tryAcquire(ctx context.Context) (bool, error) {
	record := mongobee.LockRecord{
		Key:        mongobee.LockKey,
		Owner:      m.owner,
		AcquiredAt: time.Now(),
	}

	err := m.config.Store.InsertLockRecord(ctx, record)
	if errors.Is(err, store.ErrDuplicateKey) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}

	if m.config.Logger != nil {
		m.config.Logger.Debug(ctx, "acquired process lock", "owner", m.owner)
	}
	return true, nil
}
