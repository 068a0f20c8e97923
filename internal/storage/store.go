// Package storage provides the content-addressed blob store backing student
// uploads, staff annotations and bulk-export archives.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotExist indicates no blob lives at the requested path.
var ErrNotExist = errors.New("blob does not exist")

// Store is an opaque blob store addressed by relative slash-separated paths.
type Store interface {
	// Save writes the reader's content at path, replacing any existing blob.
	Save(ctx context.Context, path string, r io.Reader) error
	// Open returns the blob content for streaming. The caller closes it.
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	// Exists reports whether a blob is present at path.
	Exists(ctx context.Context, path string) (bool, error)
	// ModTime returns the last-modified time of the blob at path.
	ModTime(ctx context.Context, path string) (time.Time, error)
	// Remove deletes the blob at path. Removing a missing blob is not an error.
	Remove(ctx context.Context, path string) error
}
