package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load,
// e.g. IMGBATCH_SERVER_PORT for server.port.
const EnvPrefix = "IMGBATCH"

var defaults = map[string]any{
	"server.port":             8080,
	"server.log_level":        "info",
	"server.shutdown_timeout": "15s",
	"server.max_payload_bytes": 10 << 20,

	"database.url":               "",
	"database.max_open_conns":    25,
	"database.max_idle_conns":    25,
	"database.conn_max_lifetime": "5m",

	"storage.backend":          "local",
	"storage.local_dir":        "./data",
	"storage.bucket":           "",
	"storage.prefix":           "",
	"storage.region":           "",
	"storage.endpoint_url":     "",
	"storage.access_key":       "",
	"storage.secret_key":       "",
	"storage.credentials_file": "",

	"worker.worker_count":         1,
	"worker.queue_size":           100,
	"worker.concurrency_limit":    8,
	"worker.max_attempts":         3,
	"worker.retry_delay":          "10s",
	"worker.stuck_request_age":    "30m",
	"worker.stuck_check_interval": "5m",
	"worker.lease_duration":       "2m",
	"worker.poll_interval":        "1s",
	"worker.batch_timeout":        "0s",

	"fetch.timeout":              "30s",
	"fetch.max_image_bytes":      20 << 20,
	"fetch.rate_limit":           0.0,
	"fetch.rate_burst":           0,
	"fetch.max_dimension":        2048,
	"fetch.jpeg_quality":         50,
	"fetch.dns_refresh_interval": "5m",

	"notify.url":         "",
	"notify.timeout":     "10s",
	"notify.max_retries": 3,
	"notify.buffer_size": 100,
}

// Load configuration from defaults, an optional config.yaml in the working
// directory, and environment variables. Environment variables take
// precedence over values from the config file.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
