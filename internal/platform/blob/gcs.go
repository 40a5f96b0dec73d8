package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSConfig holds the settings for the Google Cloud Storage backend.
type GCSConfig struct {
	Bucket          string
	Prefix          string
	EndpointURL     string
	CredentialsFile string
}

// GCSStore keeps blobs as objects in a GCS bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// NewGCSStore creates a GCSStore. Without a credentials file the client
// uses application default credentials.
func NewGCSStore(ctx context.Context, cfg GCSConfig, logger *slog.Logger) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs bucket must be set")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.EndpointURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.EndpointURL))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCP Storage client: %w", err)
	}

	return &GCSStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger.With("component", "gcs_blob_store", "bucket", cfg.Bucket),
	}, nil
}

var _ Store = (*GCSStore)(nil)

// Put implements Store. The returned reference is a gs:// URI.
func (s *GCSStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return "", err
	}

	w := s.client.Bucket(s.bucket).Object(objectKey).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write object %s: %w", objectKey, err)
	}
	// the object is only committed on Close
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to commit object %s: %w", objectKey, err)
	}

	s.logger.Debug("object written", "key", objectKey, "bytes", len(data))
	return fmt.Sprintf("gs://%s/%s", s.bucket, objectKey), nil
}

// Get implements Store.
func (s *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}

	r, err := s.client.Bucket(s.bucket).Object(objectKey).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to open object %s: %w", objectKey, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", objectKey, err)
	}
	return data, nil
}

// Delete implements Store.
func (s *GCSStore) Delete(ctx context.Context, key string) error {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return err
	}

	err = s.client.Bucket(s.bucket).Object(objectKey).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete object %s: %w", objectKey, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (s *GCSStore) objectKey(key string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return withPrefix(s.prefix, cleaned), nil
}
