package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	ErrBlobNotFound = errors.New("blob not found")
	ErrInvalidRef   = errors.New("invalid blob reference")
)

// Staged is a fully written but not yet visible blob. Commit makes it
// reachable under its owner's directory; Discard removes it. Exactly one of
// the two must be called.
type Staged interface {
	Ref() string
	Size() int64
	Commit() error
	Discard() error
}

// RefInfo describes one committed blob on disk.
type RefInfo struct {
	Ref     string
	Size    int64
	ModTime time.Time
}

// BlobStore is the on-disk content store. Blobs are addressed by an opaque
// server-generated reference scoped to an owner, never by a user-supplied
// name.
type BlobStore interface {
	// Stage writes the full content to a location no listing or download
	// path can see. The returned Staged carries the generated ref and the
	// exact byte count written.
	Stage(ctx context.Context, ownerID string, content io.Reader) (Staged, error)

	// Open returns the content of a committed blob.
	Open(ownerID, ref string) (io.ReadSeekCloser, error)

	// Remove deletes a committed blob. Removing an absent blob returns
	// ErrBlobNotFound and has no side effects.
	Remove(ownerID, ref string) error

	// Refs lists the committed blobs of one owner.
	Refs(ownerID string) ([]RefInfo, error)

	// Owners lists every owner directory present on disk.
	Owners() ([]string, error)

	// RemoveOwner deletes an owner's directory and anything left in it.
	RemoveOwner(ownerID string) error

	// SweepStaged removes staged leftovers older than the cutoff. Crash
	// debris only; live uploads are younger than any sane cutoff.
	SweepStaged(olderThan time.Time) (int, error)
}
