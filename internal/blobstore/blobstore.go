// Package blobstore defines a tagged-blob storage contract: every blob is
// addressed by an opaque ID and carries a free-form tag set, which acts as
// the only secondary index. Any backend with a primary key and a
// multi-value tag index can implement it.
package blobstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a blob ID does not exist in the backend.
var ErrNotFound = errors.New("blob not found")

// Blob describes one stored document.
type Blob struct {
	ID      string
	Name    string
	Tags    []string
	Size    int64
	Created time.Time
}

// HasTag reports whether the blob's tag set contains tag.
func (b Blob) HasTag(tag string) bool {
	for _, t := range b.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Backend is the tagged-blob store. All operations may hit the network
// and must honor the caller's context.
type Backend interface {
	// List returns every blob whose tag set contains tag.
	List(ctx context.Context, tag string) ([]Blob, error)
	// Download returns the blob's content, or ErrNotFound.
	Download(ctx context.Context, id string) ([]byte, error)
	// Upload stores a new blob and returns its descriptor. The name is
	// informational; uniqueness is on the generated ID.
	Upload(ctx context.Context, name string, tags []string, data []byte) (Blob, error)
	// Delete removes a blob, or returns ErrNotFound.
	Delete(ctx context.Context, id string) error
}
