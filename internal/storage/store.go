// Package storage abstracts the object store holding raw document bytes.
package storage

import (
	"context"
	"io"
	"time"
)

// ObjectStore is the blob port. Keys follow documents/{documentID}/{filename}.
type ObjectStore interface {
	// Upload stores size bytes from r under key with the given content type.
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Download streams the object back. The caller closes the reader.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// PresignedURL returns a time-limited download link.
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}
