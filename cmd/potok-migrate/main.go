// Command potok-migrate applies or rolls back the scheduler's Postgres
// schema, as a thin wrapper over golang-migrate driven by the same
// internal/config DSN the scheduler itself uses.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/MatweyL/Potok/internal/config"
)

func main() {
	var (
		configFile = flag.String("config", "", "Configuration file path")
		dsn        = flag.String("dsn", "", "Postgres DSN (overrides config)")
		direction  = flag.String("direction", "up", "Migration direction: up or down")
		steps      = flag.Int("steps", 0, "Number of migration steps to apply (0 means all)")
	)
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "potok-migrate: %v\n", err)
		os.Exit(1)
	}
	if *dsn != "" {
		cfg.Store.DSN = *dsn
	}

	if err := runMigration(cfg.Store.DSN, "file://"+cfg.Store.MigrationsPath, *direction, *steps); err != nil {
		fmt.Fprintf(os.Stderr, "potok-migrate: %v\n", err)
		os.Exit(1)
	}
}

func runMigration(dsn, migrationsPath, direction string, steps int) error {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open connection: %w", err)
	}
	defer sqlDB.Close()

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("new migrator: %w", err)
	}

	var applyErr error
	switch {
	case steps != 0:
		applyErr = m.Steps(stepsFor(direction, steps))
	case direction == "down":
		applyErr = m.Down()
	default:
		applyErr = m.Up()
	}
	if applyErr != nil && applyErr != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", applyErr)
	}

	fmt.Println("potok-migrate: migrations applied")
	return nil
}

func stepsFor(direction string, steps int) int {
	if direction == "down" {
		return -steps
	}
	return steps
}
