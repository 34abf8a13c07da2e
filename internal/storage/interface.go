package storage

import (
	"context"
	"errors"
	"io"
)

var ErrNotFound = errors.New("blob not found")

// BlobStore holds uploaded documents and generated artifacts and hands back
// a retrievable URL for each.
type BlobStore interface {
	// Store saves data and returns its URL.
	Store(ctx context.Context, data []byte, contentType string) (string, error)

	// Delete removes the blob behind url. Deleting a missing blob is not an error.
	Delete(ctx context.Context, url string) error

	// Open returns the blob stored under key and its content type.
	Open(ctx context.Context, key string) (io.ReadCloser, string, error)
}
