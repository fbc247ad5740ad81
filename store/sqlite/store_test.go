package sqlite

import (
	"fmt"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
)

func TestTableConfig(t *testing.T) {
	t.Run("default table names", func(t *testing.T) {
		s := New(nil)

		assert.Equal(t, "dbchangelog", s.changelogTable)
		assert.Equal(t, "mongobeelock", s.lockTable)
	})

	t.Run("custom table names are used", func(t *testing.T) {
		s := NewWithConfig(nil, TableConfig{
			ChangelogTable: "custom_changelog",
			LockTable:      "custom_lock",
		})

		assert.Equal(t, "custom_changelog", s.changelogTable)
		assert.Equal(t, "custom_lock", s.lockTable)
	})
}

func TestIsUniqueViolation(t *testing.T) {
	t.Run("unique constraint violation is detected", func(t *testing.T) {
		err := sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}
		assert.True(t, isUniqueViolation(err))
	})

	t.Run("primary key violation is detected", func(t *testing.T) {
		err := sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintPrimaryKey}
		assert.True(t, isUniqueViolation(err))
	})

	t.Run("wrapped error is detected", func(t *testing.T) {
		err := fmt.Errorf("insert failed: %w",
			sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique})
		assert.True(t, isUniqueViolation(err))
	})

	t.Run("other constraint violations are not unique violations", func(t *testing.T) {
		err := sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintNotNull}
		assert.False(t, isUniqueViolation(err))
	})

	t.Run("nil and plain errors are not unique violations", func(t *testing.T) {
		assert.False(t, isUniqueViolation(nil))
		assert.False(t, isUniqueViolation(assert.AnError))
	})
}

func TestMigrationSQL(t *testing.T) {
	config := DefaultTableConfig()

	t.Run("up creates both tables without the unique change index", func(t *testing.T) {
		up := MigrationUp(config)

		assert.Contains(t, up, "CREATE TABLE IF NOT EXISTS dbchangelog")
		assert.Contains(t, up, "CREATE TABLE IF NOT EXISTS mongobeelock")
		assert.NotContains(t, up, "UNIQUE")
	})

	t.Run("down drops both tables", func(t *testing.T) {
		down := MigrationDown(config)

		assert.Contains(t, down, "DROP TABLE IF EXISTS mongobeelock")
		assert.Contains(t, down, "DROP TABLE IF EXISTS dbchangelog")
	})
}

func TestIndexNames(t *testing.T) {
	assert.Equal(t, "dbchangelog_change_id_author_key", ChangeIndexName("dbchangelog"))
	assert.Equal(t, "mongobeelock_lock_key_key", LockIndexName("mongobeelock"))
}
