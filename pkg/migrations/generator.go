package migrations

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/philips-internal/emr-mongobee/store/mysql"
	"github.com/philips-internal/emr-mongobee/store/postgres"
	"github.com/philips-internal/emr-mongobee/store/sqlite"
)

var identifierRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// validateIdentifier ensures an identifier contains only safe characters for SQL.
// Returns an error if the identifier contains characters that could be used for SQL injection.
func validateIdentifier(name, fieldName string) error {
	if name == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("%s must start with a letter and contain only letters, numbers, and underscores (got: %s)", fieldName, name)
	}
	return nil
}

// validateConfig validates all configuration values to prevent SQL injection.
func validateConfig(config *Config) error {
	if err := validateIdentifier(config.ChangelogTable, "ChangelogTable"); err != nil {
		return err
	}
	if err := validateIdentifier(config.LockTable, "LockTable"); err != nil {
		return err
	}
	return nil
}

// Config configures migration generation for the changelog and lock tables.
type Config struct {
	// OutputFolder is the directory where the migration file will be written
	OutputFolder string

	// OutputFilename is the name of the migration file
	OutputFilename string

	// ChangelogTable is the name of the changelog ledger table
	ChangelogTable string

	// LockTable is the name of the process lock table
	LockTable string
}

// DefaultConfig returns the default configuration for changelog migrations.
func DefaultConfig() Config {
	timestamp := time.Now().Format("20060102150405")
	return Config{
		OutputFolder:   "migrations",
		OutputFilename: fmt.Sprintf("%s_init_changelog.sql", timestamp),
		ChangelogTable: "dbchangelog",
		LockTable:      "mongobeelock",
	}
}

// GeneratePostgres generates a PostgreSQL migration file.
func GeneratePostgres(config *Config) error {
	ddl := postgres.MigrationUp(postgres.TableConfig{
		ChangelogTable: config.ChangelogTable,
		LockTable:      config.LockTable,
	})
	return writeMigration(config, "PostgreSQL", ddl)
}

// GenerateMySQL generates a MySQL/MariaDB migration file.
func GenerateMySQL(config *Config) error {
	ddl := mysql.MigrationUp(mysql.TableConfig{
		ChangelogTable: config.ChangelogTable,
		LockTable:      config.LockTable,
	})
	return writeMigration(config, "MySQL/MariaDB", ddl)
}

// GenerateSQLite generates a SQLite migration file.
func GenerateSQLite(config *Config) error {
	ddl := sqlite.MigrationUp(sqlite.TableConfig{
		ChangelogTable: config.ChangelogTable,
		LockTable:      config.LockTable,
	})
	return writeMigration(config, "SQLite", ddl)
}

func writeMigration(config *Config, dialect, ddl string) error {
	// Validate configuration to prevent SQL injection
	if err := validateConfig(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Ensure output folder exists
	if err := os.MkdirAll(config.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	content := fmt.Sprintf(`-- Changelog Migration Infrastructure
-- Generated: %s
-- Database: %s

%s`,
		time.Now().Format(time.RFC3339),
		dialect,
		ddl,
	)

	outputPath := filepath.Join(config.OutputFolder, config.OutputFilename)
	if err := os.WriteFile(outputPath, []byte(content), 0o600); err != nil {
		return fmt.Errorf("failed to write migration file: %w", err)
	}

	return nil
}
