package blob

import (
	"context"
	"fmt"
	"log/slog"
)

// Supported backends
const (
	BackendLocal = "local"
	BackendS3    = "s3"
	BackendGCS   = "gcs"
)

// Config selects and configures a blob backend.
type Config struct {
	Backend         string
	LocalDir        string
	Bucket          string
	Prefix          string
	Region          string
	EndpointURL     string
	AccessKey       string
	SecretKey       string
	CredentialsFile string
}

// New builds the Store named by cfg.Backend. Backends holding network
// clients also implement io.Closer.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case "", BackendLocal:
		return NewLocalStore(cfg.LocalDir, logger)
	case BackendS3:
		return NewS3Store(ctx, S3Config{
			Bucket:      cfg.Bucket,
			Prefix:      cfg.Prefix,
			Region:      cfg.Region,
			EndpointURL: cfg.EndpointURL,
			AccessKey:   cfg.AccessKey,
			SecretKey:   cfg.SecretKey,
		}, logger)
	case BackendGCS:
		return NewGCSStore(ctx, GCSConfig{
			Bucket:          cfg.Bucket,
			Prefix:          cfg.Prefix,
			EndpointURL:     cfg.EndpointURL,
			CredentialsFile: cfg.CredentialsFile,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
