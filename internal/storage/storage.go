// Package storage defines the blob store contract shared by the state store
// and the document archive.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned by GetObject when the object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// BlobStore reads and writes named objects.
type BlobStore interface {
	// PutObject writes the object and returns its URI.
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
	// GetObject returns the object contents or ErrObjectNotFound.
	GetObject(ctx context.Context, path string) ([]byte, error)
}
