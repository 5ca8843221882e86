package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/servepics/servepics/internal/repository"
	"github.com/servepics/servepics/internal/storage"
)

// Reaper removes orphaned blobs: content on disk with no registry row. The
// registry is the source of truth for existence, so orphans are garbage left
// behind by crashes or best-effort cascade deletes.
//
// A blob is only reaped once it is older than the grace window. An upload
// renames its blob into place moments before its transaction commits, so a
// fresh blob may legitimately have no registry row yet.
type Reaper struct {
	files    repository.FileRegistry
	store    storage.BlobStore
	interval time.Duration
	grace    time.Duration
}

func NewReaper(files repository.FileRegistry, store storage.BlobStore, interval, grace time.Duration) *Reaper {
	return &Reaper{
		files:    files,
		store:    store,
		interval: interval,
		grace:    grace,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := r.Sweep(ctx)
			if err != nil {
				slog.Error("orphan sweep failed", "error", err)
			} else if removed > 0 {
				slog.Info("orphan sweep completed", "removed", removed)
			}
		}
	}
}

// Sweep scans every owner directory once and removes orphaned blobs and
// stale staging leftovers. Returns the number of files removed.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-r.grace)
	removed := 0

	owners, err := r.store.Owners()
	if err != nil {
		return 0, err
	}

	for _, owner := range owners {
		// Disk snapshot first, registry second: a blob committed after
		// the snapshot is simply not considered this round.
		refs, err := r.store.Refs(owner)
		if err != nil {
			slog.Warn("failed to list blobs", "error", err, "owner_id", owner)
			continue
		}

		known, err := r.files.BlobRefsByOwner(ctx, owner)
		if err != nil {
			return removed, err
		}
		registered := make(map[string]struct{}, len(known))
		for _, ref := range known {
			registered[ref] = struct{}{}
		}

		for _, info := range refs {
			if _, ok := registered[info.Ref]; ok {
				continue
			}
			if info.ModTime.After(cutoff) {
				continue
			}

			err := r.store.Remove(owner, info.Ref)
			if err != nil && !errors.Is(err, storage.ErrBlobNotFound) {
				slog.Warn("failed to reap orphan blob", "error", err, "owner_id", owner, "blob_ref", info.Ref)
				continue
			}
			slog.Info("reaped orphan blob", "owner_id", owner, "blob_ref", info.Ref, "size", info.Size)
			removed++
		}
	}

	swept, err := r.store.SweepStaged(cutoff)
	if err != nil {
		slog.Warn("failed to sweep staging directory", "error", err)
	}
	removed += swept

	return removed, nil
}
