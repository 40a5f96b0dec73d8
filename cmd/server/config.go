package main

import (
	"fmt"
	"log/slog"

	"github.com/phrazzld/imgbatch-api/internal/config"
)

// loadAppConfig loads the application configuration from environment variables or config file.
func loadAppConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// logConfigSummary logs the settings that shape the deployment without
// revealing credentials.
func logConfigSummary(cfg *config.Config, logger *slog.Logger) {
	logger.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"storage_backend", cfg.Storage.Backend,
		"worker_count", cfg.Worker.WorkerCount,
		"concurrency_limit", cfg.Worker.ConcurrencyLimit)

	logger.Debug("Persistence configuration",
		"database_url_present", cfg.Database.URL != "",
		"notify_enabled", cfg.Notify.URL != "")
}
