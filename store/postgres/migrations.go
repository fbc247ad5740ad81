package postgres

import "fmt"

// TableConfig configures the table names used by the engine.
//
// CAUTION: renaming the changelog table on an existing system makes prior
// changes appear unapplied, so they will run again.
type TableConfig struct {
	// ChangelogTable is the name of the applied-changes ledger table.
	ChangelogTable string

	// LockTable is the name of the process-lock table.
	LockTable string
}

// DefaultTableConfig returns the default table configuration.
func DefaultTableConfig() TableConfig {
	return TableConfig{
		ChangelogTable: "dbchangelog",
		LockTable:      "mongobeelock",
	}
}

// ChangeIndexName returns the name of the unique composite index the engine
// maintains on the changelog table.
func ChangeIndexName(changelogTable string) string {
	return fmt.Sprintf("%s_change_id_author_key", changelogTable)
}

// LockIndexName returns the name of the unique index the engine maintains on
// the lock table key column.
func LockIndexName(lockTable string) string {
	return fmt.Sprintf("%s_lock_key_key", lockTable)
}

// MigrationUp returns the SQL to create the changelog and lock tables.
// The unique constraint on (change_id, author) is deliberately not part of
// the table definition: the engine's constraint guardian creates it at run
// time and heals changelogs created by older engine versions.
func MigrationUp(config TableConfig) string {
	return fmt.Sprintf(`-- Create changelog ledger table
CREATE TABLE %s (
    change_id TEXT NOT NULL,
    author TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    metadata TEXT NOT NULL DEFAULT ''
);

-- Create process lock table
CREATE TABLE %s (
    lock_key TEXT NOT NULL,
    owner TEXT NOT NULL,
    acquired_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`, config.ChangelogTable, config.LockTable)
}

// MigrationDown returns the SQL to drop the changelog and lock tables.
func MigrationDown(config TableConfig) string {
	return fmt.Sprintf(`-- Drop process lock table
DROP TABLE IF EXISTS %s;

-- Drop changelog ledger table
DROP TABLE IF EXISTS %s;
`, config.LockTable, config.ChangelogTable)
}
