// Package migrations generates SQL migration files for the changelog and
// lock tables across PostgreSQL, MySQL/MariaDB, and SQLite. Use it when
// table creation is owned by an external migration tool rather than
// executed directly at startup.
package migrations
