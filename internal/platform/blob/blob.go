package blob

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// Common blob store errors
var (
	ErrNotFound   = errors.New("blob not found")
	ErrInvalidKey = errors.New("invalid blob key")
)

// Store persists opaque byte blobs under slash-separated keys. Put returns
// a reference that identifies the stored object to clients; Get and Delete
// take the key, not the reference.
type Store interface {
	// Put writes data under key, replacing any existing object.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)

	// Get reads the object stored under key.
	// Returns ErrNotFound if there is no such object.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object stored under key. Deleting a missing
	// object is not an error.
	Delete(ctx context.Context, key string) error
}

// PayloadKey returns the key under which an uploaded batch payload is stored.
func PayloadKey(requestID string) string {
	return path.Join("payloads", requestID+".csv")
}

// OutputKey returns the key under which a transformed image is stored.
func OutputKey(name string) string {
	return path.Join("outputs", name+".jpg")
}

// cleanKey normalises a key and rejects ones that would escape the
// store root.
func cleanKey(key string) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean("/" + key)
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return cleaned, nil
}

// withPrefix joins an optional store-wide prefix with a key.
func withPrefix(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return path.Join(strings.Trim(prefix, "/"), key)
}
