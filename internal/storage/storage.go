// Package storage persists image payloads as keyed blobs.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound indicates no blob exists under the key.
var ErrNotFound = errors.New("blob not found")

// BlobStore stores opaque payloads under slash-separated keys.
type BlobStore interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// URL returns an absolute URL clients can fetch the blob from.
	URL(key string) string
}
