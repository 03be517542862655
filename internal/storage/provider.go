// Package storage defines the blob archive used for per-cycle reports.
// Implementations live in the gcs, local and memory subpackages.
package storage

import (
	"context"
	"io"
)

// BlobStore writes an object and returns a URI that locates it.
type BlobStore interface {
	PutObject(ctx context.Context, path, contentType string, r io.Reader) (string, error)
}

// Discard is a BlobStore that drops every object.
type Discard struct{}

// PutObject reads nothing and reports an empty URI.
func (Discard) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", nil
}
