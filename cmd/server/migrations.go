package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/phrazzld/imgbatch-api/internal/config"
	"github.com/phrazzld/imgbatch-api/internal/platform/postgres"
)

// handleMigrations runs a single goose command against the configured
// database and returns.
func handleMigrations(ctx context.Context, cfg *config.Config, migrateCmd string, logger *slog.Logger) error {
	if cfg.Database.URL == "" {
		return errors.New("migrations require database.url to be set")
	}

	db, err := setupAppDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Error closing database connection", "error", err)
		}
	}()

	logger.Info("Executing migrations", "command", migrateCmd)
	return postgres.Migrate(ctx, db, migrateCmd, logger)
}
