package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// LocalStore keeps blobs as files below a root directory.
type LocalStore struct {
	fs     afero.Fs
	root   string
	logger *slog.Logger
}

// NewLocalStore creates a LocalStore rooted at dir on the OS filesystem.
func NewLocalStore(dir string, logger *slog.Logger) (*LocalStore, error) {
	return NewLocalStoreWithFs(afero.NewOsFs(), dir, logger)
}

// NewLocalStoreWithFs creates a LocalStore on an arbitrary afero filesystem.
// Tests use this with afero.NewMemMapFs.
func NewLocalStoreWithFs(fsys afero.Fs, dir string, logger *slog.Logger) (*LocalStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStore{
		fs:     fsys,
		root:   dir,
		logger: logger.With("component", "local_blob_store"),
	}, nil
}

var _ Store = (*LocalStore)(nil)

// Put implements Store. The returned reference is the file path.
func (s *LocalStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	p, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := s.fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory for blob: %w", err)
	}

	// write to a temp file first so readers never observe a partial object
	tmp := p + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := s.fs.Rename(tmp, p); err != nil {
		_ = s.fs.Remove(tmp)
		return "", fmt.Errorf("failed to move blob into place: %w", err)
	}

	s.logger.Debug("blob written", "key", key, "bytes", len(data))
	return p, nil
}

// Get implements Store.
func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(s.fs, p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

// Delete implements Store.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

func (s *LocalStore) path(key string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}
