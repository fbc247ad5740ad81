// Package runner implements the top-level migration control loop: ensure
// the changelog constraint, acquire the process lock, execute each change
// unit exactly once (or every run for run-always units), and release the
// lock on every exit path.
package runner

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	mongobee "github.com/philips-internal/emr-mongobee"
	"github.com/philips-internal/emr-mongobee/ledger"
	"github.com/philips-internal/emr-mongobee/lock"
	"github.com/philips-internal/emr-mongobee/metrics"
	"github.com/philips-internal/emr-mongobee/store"
)

// Config holds configuration for the Runner.
type Config struct {
	// Store is the changelog and lock persistence backend (required).
	Store store.Store

	// Provider supplies the ordered change units for each run (required).
	Provider mongobee.Provider

	// DB is the database handle passed to change-unit actions. Required
	// only when the provider supplies units that take a handle.
	DB *sql.DB

	// Disabled turns Run into a no-op with no side effects.
	Disabled bool

	// WaitForLock enables polling when the lock is held elsewhere
	// (default: false).
	WaitForLock bool

	// WaitTimeout bounds the lock wait when WaitForLock is enabled
	// (default: 5m).
	WaitTimeout time.Duration

	// PollInterval is the sleep between lock acquisition retries
	// (default: 10s).
	PollInterval time.Duration

	// FailIfNotAcquired makes a missed lock a fatal error instead of a
	// silent no-op (default: false).
	FailIfNotAcquired bool

	// Logger is for observability (optional).
	Logger mongobee.Logger

	// Collector records run metrics (optional).
	Collector *metrics.Collector
}

// Runner executes change units against a shared database under a process
// lock. Safe for concurrent use across processes; a single Runner value is
// not meant to run concurrently with itself.
type Runner struct {
	config Config
	lock   *lock.Manager
	ledger *ledger.Ledger
}

// Compile-time check that Runner satisfies the public contract.
var _ mongobee.Runner = (*Runner)(nil)

// New creates a new Runner with the given configuration.
func New(cfg Config) *Runner {
	return &Runner{
		config: cfg,
		lock: lock.New(lock.Config{
			Store:             cfg.Store,
			WaitForLock:       cfg.WaitForLock,
			WaitTimeout:       cfg.WaitTimeout,
			PollInterval:      cfg.PollInterval,
			FailIfNotAcquired: cfg.FailIfNotAcquired,
			Logger:            cfg.Logger,
		}),
		ledger: ledger.New(ledger.Config{
			Store:  cfg.Store,
			Logger: cfg.Logger,
		}),
	}
}

// Run executes one migration pass.
//
// When disabled, it returns an empty report with no side effects. When the
// lock is held by another runner and FailIfNotAcquired is off, it returns a
// report with LockAcquired false and no error. A change unit whose action
// fails is recorded in the report and does not stop the run; every other
// failure aborts the remaining units. The lock is always released before
// Run returns.
func (r *Runner) Run(ctx context.Context) (*mongobee.Report, error) {
	start := time.Now()
	report, err := r.execute(ctx)

	if r.config.Collector != nil {
		r.config.Collector.ObserveRunDuration(time.Since(start).Seconds())
		switch {
		case err != nil:
			r.config.Collector.IncRun(metrics.ResultAborted)
		case r.config.Disabled:
			r.config.Collector.IncRun(metrics.ResultDisabled)
		case !report.LockAcquired:
			r.config.Collector.IncRun(metrics.ResultNotAcquired)
		default:
			r.config.Collector.IncRun(metrics.ResultCompleted)
		}
	}

	return report, err
}

func (r *Runner) execute(ctx context.Context) (*mongobee.Report, error) {
	report := &mongobee.Report{StartedAt: time.Now().UTC()}

	if r.config.Disabled {
		if r.config.Logger != nil {
			r.config.Logger.Info(ctx, "runner is disabled, exiting")
		}
		report.FinishedAt = time.Now().UTC()
		return report, nil
	}

	if r.config.Store == nil {
		return nil, fmt.Errorf("no database handle configured")
	}
	if r.config.Provider == nil {
		return nil, fmt.Errorf("no change unit provider configured")
	}

	if err := r.ledger.EnsureConstraint(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure changelog constraint: %w", err)
	}
	if err := r.config.Store.EnsureLockIndex(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure lock index: %w", err)
	}

	if r.config.Collector != nil {
		r.config.Collector.IncLockAcquireAttempt()
	}
	acquired, err := r.lock.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if !acquired {
		if r.config.Logger != nil {
			r.config.Logger.Info(ctx, "did not acquire process lock, another runner is active")
		}
		report.FinishedAt = time.Now().UTC()
		return report, nil
	}
	report.LockAcquired = true

	if r.config.Collector != nil {
		r.config.Collector.SetLockHeld(true)
	}
	defer func() {
		// Release must succeed even when the run was cancelled.
		releaseCtx := context.WithoutCancel(ctx)
		if releaseErr := r.lock.Release(releaseCtx); releaseErr != nil && r.config.Logger != nil {
			r.config.Logger.Error(releaseCtx, "failed to release process lock", "error", releaseErr)
		}
		if r.config.Collector != nil {
			r.config.Collector.SetLockHeld(false)
		}
	}()

	units, err := r.config.Provider.FetchChangeUnits(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch change units: %w", err)
	}

	for _, unit := range units {
		result, err := r.runUnit(ctx, unit)
		if err != nil {
			return nil, err
		}
		report.Results = append(report.Results, result)
	}

	report.FinishedAt = time.Now().UTC()

	if r.config.Logger != nil {
		r.config.Logger.Info(ctx, "migration run complete",
			"applied", report.Count(mongobee.StatusApplied),
			"reapplied", report.Count(mongobee.StatusReapplied),
			"skipped", report.Count(mongobee.StatusSkipped),
			"failed", report.Count(mongobee.StatusFailed))
	}

	return report, nil
}

// runUnit decides and executes the outcome for one change unit. A non-nil
// error aborts the run; an action failure is returned inside the result
// instead.
func (r *Runner) runUnit(ctx context.Context, unit mongobee.ChangeUnit) (mongobee.UnitResult, error) {
	result := mongobee.UnitResult{ChangeID: unit.ID, Author: unit.Author}

	if err := unit.Validate(); err != nil {
		return result, err
	}
	if unit.RunWithDB != nil && r.config.DB == nil {
		return result, fmt.Errorf("change unit %q takes a database handle but none is configured", unit.ID)
	}

	isNew, err := r.ledger.IsNew(ctx, unit.ID, unit.Author)
	if err != nil {
		return result, err
	}

	switch {
	case isNew:
		if err := r.invoke(ctx, unit); err != nil {
			return r.failed(ctx, result, err), nil
		}
		if err := r.ledger.Append(ctx, mongobee.NewChangeRecord(unit)); err != nil {
			return result, err
		}
		result.Status = mongobee.StatusApplied
		if r.config.Collector != nil {
			r.config.Collector.IncApplied()
		}
		if r.config.Logger != nil {
			r.config.Logger.Info(ctx, "applied change unit", "changeID", unit.ID, "author", unit.Author)
		}

	case unit.RunAlways:
		// The original ledger row already satisfies the constraint; a
		// re-execution never writes a second one.
		if err := r.invoke(ctx, unit); err != nil {
			return r.failed(ctx, result, err), nil
		}
		result.Status = mongobee.StatusReapplied
		if r.config.Collector != nil {
			r.config.Collector.IncReapplied()
		}
		if r.config.Logger != nil {
			r.config.Logger.Info(ctx, "reapplied change unit", "changeID", unit.ID, "author", unit.Author)
		}

	default:
		result.Status = mongobee.StatusSkipped
		if r.config.Collector != nil {
			r.config.Collector.IncSkipped()
		}
		if r.config.Logger != nil {
			r.config.Logger.Debug(ctx, "passed over change unit", "changeID", unit.ID, "author", unit.Author)
		}
	}

	return result, nil
}

func (r *Runner) invoke(ctx context.Context, unit mongobee.ChangeUnit) error {
	if unit.Run != nil {
		return unit.Run(ctx)
	}
	return unit.RunWithDB(ctx, r.config.DB)
}

func (r *Runner) failed(ctx context.Context, result mongobee.UnitResult, actionErr error) mongobee.UnitResult {
	result.Status = mongobee.StatusFailed
	result.Err = actionErr
	if r.config.Collector != nil {
		r.config.Collector.IncFailed()
	}
	if r.config.Logger != nil {
		r.config.Logger.Error(ctx, "change unit failed", "changeID", result.ChangeID, "author", result.Author, "error", actionErr)
	}
	return result
}

// IsExecutionInProgress reports whether any runner instance currently holds
// the process lock.
func (r *Runner) IsExecutionInProgress(ctx context.Context) (bool, error) {
	return r.lock.IsHeld(ctx)
}
