// Package mongobee is the public entry point for running database
// migrations. It wires the changelog store, lock manager and runner
// together behind a functional-options constructor.
package mongobee

import (
	"database/sql"
	"fmt"
	"time"

	rootpkg "github.com/philips-internal/emr-mongobee"
	"github.com/philips-internal/emr-mongobee/metrics"
	"github.com/philips-internal/emr-mongobee/runner"
	"github.com/philips-internal/emr-mongobee/store"
	"github.com/philips-internal/emr-mongobee/store/postgres"
)

// Re-export core types from root package
type (
	// ChangeUnit is a single versioned, idempotent migration step.
	ChangeUnit = rootpkg.ChangeUnit

	// ChangeRecord is one row of the append-only changelog ledger.
	ChangeRecord = rootpkg.ChangeRecord

	// Provider supplies the ordered change units for a run.
	Provider = rootpkg.Provider

	// Report lists the outcome of every change unit in a run.
	Report = rootpkg.Report

	// UnitResult is the outcome of a single change unit.
	UnitResult = rootpkg.UnitResult

	// Logger receives structured log events from the engine.
	Logger = rootpkg.Logger

	// Runner executes migration runs.
	Runner = rootpkg.Runner
)

// Option configures a migration runner.
type Option func(*config)

// config holds the internal configuration for creating a runner.
type config struct {
	db                *sql.DB
	store             store.Store
	provider          rootpkg.Provider
	enabled           bool
	waitForLock       bool
	lockWaitTimeout   time.Duration
	lockPollInterval  time.Duration
	failIfNotAcquired bool
	logger            rootpkg.Logger
	metricsEnabled    bool
	tableConfig       postgres.TableConfig
}

// New creates a new migration runner with the given options.
//
// Required options:
//   - WithProvider or WithChangeUnits: the change units to run
//   - WithStore or WithDatabase: where the changelog and lock live
//
// Optional configuration (with defaults):
//   - WithEnabled: enable or disable execution (default: true)
//   - WithWaitForLock: poll for a held lock instead of giving up (default: false)
//   - WithLockWaitTimeout: max total lock wait (default: 5m)
//   - WithLockPollInterval: sleep between lock retries (default: 10s)
//   - WithFailIfLockNotAcquired: treat a missed lock as fatal (default: false)
//   - WithTableNames: custom changelog/lock table names (default: dbchangelog, mongobeelock)
//   - WithLogger: logger for observability (default: nil)
//   - WithMetricsEnabled: enable Prometheus metrics (default: false)
//
// Example:
//
//	r, err := mongobee.New(
//	    mongobee.WithDatabase(db),
//	    mongobee.WithChangeUnits(units...),
//	)
//
// Returns an error if any required option is missing.
func New(opts ...Option) (rootpkg.Runner, error) {
	// Apply defaults
	cfg := &config{
		enabled:     true,
		tableConfig: postgres.DefaultTableConfig(),
	}

	// Apply options
	for _, opt := range opts {
		opt(cfg)
	}

	// Validate required fields
	if cfg.store == nil && cfg.db == nil {
		return nil, fmt.Errorf("database is required: use WithDatabase or WithStore option")
	}
	if cfg.provider == nil {
		return nil, fmt.Errorf("change units are required: use WithProvider or WithChangeUnits option")
	}

	// Create changelog store if not provided
	if cfg.store == nil {
		cfg.store = postgres.NewWithConfig(cfg.db, cfg.tableConfig)
	}

	var collector *metrics.Collector
	if cfg.metricsEnabled {
		collector = metrics.NewCollector(cfg.tableConfig.ChangelogTable)
	}

	return runner.New(runner.Config{
		Store:             cfg.store,
		Provider:          cfg.provider,
		DB:                cfg.db,
		Disabled:          !cfg.enabled,
		WaitForLock:       cfg.waitForLock,
		WaitTimeout:       cfg.lockWaitTimeout,
		PollInterval:      cfg.lockPollInterval,
		FailIfNotAcquired: cfg.failIfNotAcquired,
		Logger:            cfg.logger,
		Collector:         collector,
	}), nil
}

// WithDatabase sets the database connection holding the changelog and lock
// tables. Change units that take a handle receive this connection.
func WithDatabase(db *sql.DB) Option {
	return func(c *config) {
		c.db = db
	}
}

// WithStore sets a custom changelog store.
// Use this for a non-PostgreSQL backend or your own store.Store implementation.
func WithStore(s store.Store) Option {
	return func(c *config) {
		c.store = s
	}
}

// WithProvider sets the provider that supplies change units for each run.
// The engine executes units strictly in the order the provider returns them.
func WithProvider(p rootpkg.Provider) Option {
	return func(c *config) {
		c.provider = p
	}
}

// WithChangeUnits sets a fixed, ordered list of change units.
// Shorthand for WithProvider(mongobee.SliceProvider(units)).
func WithChangeUnits(units ...rootpkg.ChangeUnit) Option {
	return func(c *config) {
		c.provider = rootpkg.SliceProvider(units)
	}
}

// WithEnabled enables or disables migration execution. A disabled runner
// returns an empty report without touching the database.
func WithEnabled(enabled bool) Option {
	return func(c *config) {
		c.enabled = enabled
	}
}

// WithWaitForLock makes the runner poll for the lock when it is held by
// another instance instead of giving up immediately.
func WithWaitForLock(wait bool) Option {
	return func(c *config) {
		c.waitForLock = wait
	}
}

// WithLockWaitTimeout sets the maximum total time to wait for the lock.
func WithLockWaitTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.lockWaitTimeout = timeout
	}
}

// WithLockPollInterval sets the sleep between lock acquisition retries.
func WithLockPollInterval(interval time.Duration) Option {
	return func(c *config) {
		c.lockPollInterval = interval
	}
}

// WithFailIfLockNotAcquired makes Run return an error when the lock cannot
// be obtained, instead of terminating silently.
func WithFailIfLockNotAcquired(fail bool) Option {
	return func(c *config) {
		c.failIfNotAcquired = fail
	}
}

// WithTableNames sets custom table names for the changelog and lock:
//   - changelogTable: default is "dbchangelog"
//   - lockTable: default is "mongobeelock"
//
// CAUTION: renaming the changelog table after first use makes every
// previously applied change unit look unapplied, so all of them re-run
// against the new table. Keep the name stable once migrations have run.
func WithTableNames(changelogTable, lockTable string) Option {
	return func(c *config) {
		c.tableConfig = postgres.TableConfig{
			ChangelogTable: changelogTable,
			LockTable:      lockTable,
		}
	}
}

// WithLogger sets the logger for observability.
func WithLogger(logger rootpkg.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithMetricsEnabled enables Prometheus metrics collection.
func WithMetricsEnabled(enabled bool) Option {
	return func(c *config) {
		c.metricsEnabled = enabled
	}
}

// RunMigrations creates the changelog and lock tables on a PostgreSQL
// database. This should typically be run once during application deployment
// or startup; the statements are idempotent only at the schema level, so
// guard it the way you guard other DDL.
//
// To create tables with custom names, use RunMigrationsWithTableNames.
func RunMigrations(db *sql.DB) error {
	return RunMigrationsWithTableNames(db, postgres.DefaultTableConfig())
}

// RunMigrationsWithTableNames creates the changelog and lock tables with
// custom names. Use this if you specified custom names via WithTableNames.
//
// Example:
//
//	tableConfig := postgres.TableConfig{
//	    ChangelogTable: "app_changelog",
//	    LockTable:      "app_changelog_lock",
//	}
//	if err := mongobee.RunMigrationsWithTableNames(db, tableConfig); err != nil {
//	    log.Fatal(err)
//	}
func RunMigrationsWithTableNames(db *sql.DB, config postgres.TableConfig) error {
	ddl := postgres.MigrationUp(config)

	_, err := db.Exec(ddl)
	if err != nil {
		return fmt.Errorf("failed to execute migrations: %w", err)
	}

	return nil
}
