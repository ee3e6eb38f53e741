// Package postgres implements internal/store's interfaces on top of
// pgx/v5, with schema migrations applied via golang-migrate.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"github.com/MatweyL/Potok/internal/logging"
)

// Config configures the connection pool and migration source.
type Config struct {
	DSN            string
	MaxConns       int32
	ConnectTimeout time.Duration
	MigrationsPath string
}

// DB owns the connection pool backing every store interface in this
// package.
type DB struct {
	pool *pgxpool.Pool
	cfg  Config
	log  *logging.Logger
}

// Open creates and pings a connection pool against cfg.DSN.
func Open(ctx context.Context, cfg Config, log *logging.Logger) (*DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres: dsn is required")
	}
	if cfg.MaxConns == 0 {
		cfg.MaxConns = 10
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if cfg.MigrationsPath == "" {
		cfg.MigrationsPath = "file://migrations"
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	connCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(connCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if log == nil {
		log = logging.New(logging.DefaultConfig())
	}
	return &DB{pool: pool, cfg: cfg, log: log.WithComponent("store.postgres")}, nil
}

// Close releases the connection pool.
func (db *DB) Close() { db.pool.Close() }

// MigrateToLatest applies every pending migration under cfg.MigrationsPath.
func (db *DB) MigrateToLatest(ctx context.Context) error {
	sqlDB, err := sql.Open("postgres", db.cfg.DSN)
	if err != nil {
		return fmt.Errorf("postgres: open migration connection: %w", err)
	}
	defer sqlDB.Close()

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("postgres: migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(db.cfg.MigrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("postgres: new migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("postgres: migrate up: %w", err)
	}
	db.log.Info("migrations applied", nil)
	return nil
}
