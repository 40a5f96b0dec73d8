package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage" validate:"required"`
	Worker   WorkerConfig   `mapstructure:"worker" validate:"required"`
	Fetch    FetchConfig    `mapstructure:"fetch" validate:"required"`
	Notify   NotifyConfig   `mapstructure:"notify"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	MaxPayloadBytes int64         `mapstructure:"max_payload_bytes" validate:"gt=0"`
}

// DatabaseConfig contains all database-related configuration settings.
// An empty URL selects the in-memory record store and queue.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url" validate:"omitempty,url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
}

// StorageConfig selects the blob backend for payloads and output images.
type StorageConfig struct {
	Backend         string `mapstructure:"backend" validate:"required,oneof=local s3 gcs"`
	LocalDir        string `mapstructure:"local_dir" validate:"required_if=Backend local"`
	Bucket          string `mapstructure:"bucket" validate:"required_unless=Backend local"`
	Prefix          string `mapstructure:"prefix"`
	Region          string `mapstructure:"region"`
	EndpointURL     string `mapstructure:"endpoint_url" validate:"omitempty,url"`
	AccessKey       string `mapstructure:"access_key"`
	SecretKey       string `mapstructure:"secret_key"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// WorkerConfig controls the dispatcher, its retry policy and fan-out.
type WorkerConfig struct {
	WorkerCount        int           `mapstructure:"worker_count" validate:"gte=1"`
	QueueSize          int           `mapstructure:"queue_size" validate:"gte=1"`
	ConcurrencyLimit   int           `mapstructure:"concurrency_limit" validate:"gte=1"`
	MaxAttempts        int           `mapstructure:"max_attempts" validate:"gte=1"`
	RetryDelay         time.Duration `mapstructure:"retry_delay" validate:"gt=0"`
	StuckRequestAge    time.Duration `mapstructure:"stuck_request_age" validate:"gt=0"`
	StuckCheckInterval time.Duration `mapstructure:"stuck_check_interval" validate:"gt=0"`
	LeaseDuration      time.Duration `mapstructure:"lease_duration" validate:"gt=0"`
	PollInterval       time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	// BatchTimeout bounds a whole batch. Zero disables it.
	BatchTimeout time.Duration `mapstructure:"batch_timeout" validate:"gte=0"`
}

// FetchConfig controls remote image retrieval and the transform policy.
type FetchConfig struct {
	Timeout            time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxImageBytes      int64         `mapstructure:"max_image_bytes" validate:"gt=0"`
	RateLimit          float64       `mapstructure:"rate_limit" validate:"gte=0"`
	RateBurst          int           `mapstructure:"rate_burst" validate:"gte=0"`
	MaxDimension       int           `mapstructure:"max_dimension" validate:"gte=1"`
	JPEGQuality        int           `mapstructure:"jpeg_quality" validate:"gte=1,lte=100"`
	DNSRefreshInterval time.Duration `mapstructure:"dns_refresh_interval" validate:"gte=0"`
}

// NotifyConfig configures the outbound completion webhook.
// An empty URL disables notifications.
type NotifyConfig struct {
	URL        string        `mapstructure:"url" validate:"omitempty,url"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxRetries int           `mapstructure:"max_retries" validate:"gte=0"`
	BufferSize int           `mapstructure:"buffer_size" validate:"gte=1"`
}
