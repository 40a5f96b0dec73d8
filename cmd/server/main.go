// Package main implements the entry point for the imgbatch API server, which
// accepts CSV batches of product image URLs and processes them in the
// background.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/phrazzld/imgbatch-api/internal/platform/postgres"
)

func main() {
	migrateCmd := flag.String("migrate", "",
		"run a migration command (up, down, reset, status, version) and exit")
	flag.Parse()

	if err := run(context.Background(), *migrateCmd); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

// run loads configuration and either executes a migration command or starts
// the server until it is signalled to stop.
func run(ctx context.Context, migrateCmd string) error {
	cfg, err := loadAppConfig()
	if err != nil {
		return err
	}

	logger, err := setupAppLogger(cfg)
	if err != nil {
		return err
	}
	logConfigSummary(cfg, logger)

	if migrateCmd != "" {
		return handleMigrations(ctx, cfg, migrateCmd, logger)
	}

	var db *sql.DB
	if cfg.Database.URL != "" {
		db, err = setupAppDatabase(ctx, cfg, logger)
		if err != nil {
			return err
		}
		if err := postgres.Migrate(ctx, db, "up", logger); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
	}

	app, err := newApplication(ctx, cfg, logger, db)
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	return app.Run(ctx)
}
