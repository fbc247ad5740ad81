// Command mongobee runs a demonstration set of change units against a
// PostgreSQL database given by DATABASE_URL.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	rootpkg "github.com/philips-internal/emr-mongobee"
	"github.com/philips-internal/emr-mongobee/metrics"
	"github.com/philips-internal/emr-mongobee/pkg/mongobee"
	"github.com/philips-internal/emr-mongobee/pkg/version"
)

func main() {
	log.Printf("Starting mongobee v%s", version.Version)

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := mongobee.RunMigrations(db); err != nil {
		log.Printf("Migrations already applied or failed: %v", err)
	}

	// In a real application these would be the schema and data changes the
	// service needs before serving traffic.
	units := []mongobee.ChangeUnit{
		{
			ID:     "create-demo-table",
			Author: "demo",
			RunWithDB: func(ctx context.Context, db *sql.DB) error {
				_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS demo (id SERIAL PRIMARY KEY, note TEXT)`)
				return err
			},
		},
		{
			ID:     "seed-demo-row",
			Author: "demo",
			RunWithDB: func(ctx context.Context, db *sql.DB) error {
				_, err := db.ExecContext(ctx, `INSERT INTO demo (note) VALUES ('seeded')`)
				return err
			},
		},
		{
			ID:        "refresh-demo-stats",
			Author:    "demo",
			RunAlways: true,
			RunWithDB: func(ctx context.Context, db *sql.DB) error {
				_, err := db.ExecContext(ctx, `ANALYZE demo`)
				return err
			},
		},
	}

	r, err := mongobee.New(
		mongobee.WithDatabase(db),
		mongobee.WithChangeUnits(units...),
		mongobee.WithWaitForLock(true),
		mongobee.WithLockWaitTimeout(time.Minute),
		mongobee.WithLockPollInterval(2*time.Second),
		mongobee.WithLogger(rootpkg.NewSlogLogger(nil)),
		mongobee.WithMetricsEnabled(true),
	)
	if err != nil {
		log.Fatalf("Failed to create runner: %v", err)
	}

	metricsServer := metrics.NewServer(":9090")
	metricsServer.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	// Cancel the lock wait on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := r.Run(ctx)
	if err != nil {
		log.Fatalf("Migration run failed: %v", err)
	}

	if !report.LockAcquired {
		fmt.Println("Another runner holds the lock; nothing to do")
		return
	}

	fmt.Printf("Migration run complete: %d applied, %d reapplied, %d skipped, %d failed\n",
		report.Count(rootpkg.StatusApplied),
		report.Count(rootpkg.StatusReapplied),
		report.Count(rootpkg.StatusSkipped),
		report.Count(rootpkg.StatusFailed))

	for _, failure := range report.Failed() {
		fmt.Printf("  failed: %s by %s: %v\n", failure.ChangeID, failure.Author, failure.Err)
	}
}
