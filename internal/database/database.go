// Package database manages the Postgres connection pool and schema
// migrations.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/S-Corkum/agent-router/internal/config"
)

// Database represents the database access layer
type Database struct {
	db  *sqlx.DB
	cfg config.DatabaseConfig
}

// NewDatabase creates a new database connection pool and verifies it
func NewDatabase(ctx context.Context, cfg config.DatabaseConfig) (*Database, error) {
	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{db: db, cfg: cfg}, nil
}

// DB exposes the underlying sqlx handle for repositories
func (d *Database) DB() *sqlx.DB {
	return d.db
}

// Migrate applies pending schema migrations from the configured path
func (d *Database) Migrate() error {
	driver, err := postgres.WithInstance(d.db.DB, &postgres.Config{
		SchemaName: d.cfg.Schema,
	})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://"+d.cfg.MigrationsPath,
		d.cfg.Database,
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (d *Database) Close() error {
	return d.db.Close()
}
