// Package db holds the application schema and the helpers that apply it.
package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Direction of an application migration run.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Plan selects how far to migrate. Version wins over Steps; with neither set
// up means latest and down means one step.
type Plan struct {
	Direction Direction
	Steps     int
	Version   uint
}

// NewMigrator returns a golang-migrate instance over the embedded migrations.
func NewMigrator(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// MigrateRiver applies river's own schema.
func MigrateRiver(ctx context.Context, pool *pgxpool.Pool, log *zap.SugaredLogger) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("failed to create River migrator: %w", err)
	}

	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, &rivermigrate.MigrateOpts{})
	if err != nil {
		return fmt.Errorf("failed to run River migrations: %w", err)
	}

	for _, version := range res.Versions {
		log.Infow("Applied River migration", "version", version.Version, "name", version.Name)
	}
	if len(res.Versions) == 0 {
		log.Info("No River migrations needed")
	}
	return nil
}

// Apply runs the application migrations described by plan.
func Apply(m *migrate.Migrate, plan Plan, log *zap.SugaredLogger) error {
	current, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}
	if dirty {
		log.Warnw("Database is in dirty state, forcing version", "version", current)
		if err := m.Force(int(current)); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
	}
	log.Infow("Current migration state", "version", current, "dirty", dirty)

	switch {
	case plan.Version > 0:
		err = m.Migrate(plan.Version)
	case plan.Direction == Up && plan.Steps > 0:
		err = m.Steps(plan.Steps)
	case plan.Direction == Up:
		err = m.Up()
	case plan.Direction == Down && plan.Steps > 0:
		err = m.Steps(-plan.Steps)
	case plan.Direction == Down:
		err = m.Steps(-1)
	default:
		return fmt.Errorf("invalid direction: %s (must be 'up' or 'down')", plan.Direction)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to migrate %s: %w", plan.Direction, err)
	}

	final, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get final migration version: %w", err)
	}
	log.Infow("Application migrations completed", "final_version", final, "dirty", dirty)
	return nil
}
