package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/sarathsp06/hookshot/db"
	"github.com/sarathsp06/hookshot/internal/config"
	"github.com/sarathsp06/hookshot/internal/logger"
)

func main() {
	var (
		direction = flag.String("direction", "up", "Migration direction: up, down")
		steps     = flag.Int("steps", 0, "Number of migration steps (0 for all)")
		version   = flag.Uint("version", 0, "Target migration version")
		skipRiver = flag.Bool("skip-river", false, "Skip River queue migrations")
	)
	flag.Parse()

	log := logger.NewLogger("migration")
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Errorw("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		log.Warnw("Invalid log level, keeping default", "level", cfg.LogLevel, "error", err)
	}

	log.Infow("Starting database migration", "direction", *direction)

	plan := db.Plan{Direction: db.Direction(*direction), Steps: *steps, Version: *version}
	if err := run(context.Background(), cfg.DatabaseURL, plan, !*skipRiver, log); err != nil {
		log.Errorw("Migration failed", "error", err)
		logger.Sync()
		os.Exit(1)
	}

	log.Info("All migrations completed successfully")
}

func run(ctx context.Context, databaseURL string, plan db.Plan, withRiver bool, log *zap.SugaredLogger) error {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create database pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if withRiver && plan.Direction == db.Up {
		log.Info("Running River queue migrations")
		if err := db.MigrateRiver(ctx, pool, log); err != nil {
			return err
		}
	}

	log.Info("Running application migrations")
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer func(sqlDB *sql.DB) { _ = sqlDB.Close() }(sqlDB)

	m, err := db.NewMigrator(sqlDB)
	if err != nil {
		return err
	}
	return db.Apply(m, plan, log)
}
