package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/servepics/servepics/internal/apperr"
	"github.com/servepics/servepics/internal/db"
	"github.com/servepics/servepics/internal/model"
	"github.com/servepics/servepics/internal/repository"
	"github.com/servepics/servepics/internal/storage"
	"github.com/servepics/servepics/internal/validation"
)

// DriveService coordinates the file lifecycle across the blob store, the
// file registry and the quota ledger. Uploads stage bytes outside any
// transaction, then admit, register and reveal the blob as one atomic unit;
// deletes mirror that. On any failure the filesystem and the ledger stay
// consistent: a staged or freshly committed blob is cleaned up whenever the
// transaction does not land.
type DriveService struct {
	db    *sqlx.DB
	users repository.UserRepository
	files repository.FileRegistry
	store storage.BlobStore
}

func NewDriveService(database *sqlx.DB, users repository.UserRepository, files repository.FileRegistry, store storage.BlobStore) *DriveService {
	return &DriveService{
		db:    database,
		users: users,
		files: files,
		store: store,
	}
}

// Upload validates, stages and commits a new file for the user.
//
// The quota admission and the registry insert run in one transaction; the
// admission itself is a single conditional update, so two concurrent uploads
// can never both pass on a stale storage_used snapshot. Staging the bytes
// happens before the transaction opens because it is the slow part.
func (s *DriveService) Upload(ctx context.Context, userID, filename, mimeType string, content io.Reader) (*model.File, error) {
	name := validation.SanitizeFilename(filename)

	// Reject on mimetype or filename before a single byte hits the disk
	if violations := validation.ValidateFile(name, mimeType, 0); len(violations) > 0 {
		return nil, &apperr.ValidationError{Violations: violations}
	}

	// Stage one byte past the cap so an oversized upload is detectable
	// without ever writing the whole thing
	staged, err := s.store.Stage(ctx, userID, io.LimitReader(content, validation.MaxFileSize+1))
	if err != nil {
		return nil, apperr.StorageIO("failed to stage upload", err)
	}

	if violations := validation.ValidateFile(name, mimeType, staged.Size()); len(violations) > 0 {
		discard(staged)
		return nil, &apperr.ValidationError{Violations: violations}
	}

	file := &model.File{
		ID:           uuid.New().String(),
		UserID:       userID,
		BlobRef:      staged.Ref(),
		OriginalName: name,
		Size:         staged.Size(),
		MimeType:     mimeType,
		UploadedAt:   time.Now().UTC(),
	}

	revealed := false
	err = db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		err := s.users.WithTx(tx).ReserveStorage(ctx, userID, file.Size)
		if err != nil {
			var qe *apperr.QuotaExceededError
			if errors.As(err, &qe) {
				return qe
			}
			if errors.Is(err, repository.ErrUserNotFound) {
				return apperr.ErrNotFound
			}
			return apperr.Internal("failed to reserve storage", err)
		}

		err = s.files.WithTx(tx).Create(ctx, file)
		if err != nil {
			return apperr.Internal("failed to create file record", err)
		}

		// Reveal the blob last, while the reservation is still
		// uncommitted: a rename failure rolls everything back.
		err = staged.Commit()
		if err != nil {
			return apperr.StorageIO("failed to commit blob", err)
		}
		revealed = true

		return nil
	})
	if err != nil {
		if revealed {
			// Transaction commit failed after the rename: take the
			// blob back out so the ledger and the disk agree.
			removeErr := s.store.Remove(userID, file.BlobRef)
			if removeErr != nil && !errors.Is(removeErr, storage.ErrBlobNotFound) {
				slog.Error("failed to remove blob after aborted upload", "error", removeErr, "user_id", userID, "blob_ref", file.BlobRef)
			}
		} else {
			discard(staged)
		}
		return nil, err
	}

	slog.Info("file uploaded", "user_id", userID, "file_id", file.ID, "size", file.Size)
	return file, nil
}

// List returns the user's files, most recent upload first.
func (s *DriveService) List(ctx context.Context, userID string) ([]*model.File, error) {
	files, err := s.files.AllByOwner(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("failed to list files", err)
	}
	return files, nil
}

// Download opens a file's content after checking ownership. A registry row
// whose blob is gone from disk is a corruption and is surfaced, never
// silently served as an empty stream.
func (s *DriveService) Download(ctx context.Context, userID, fileID string) (io.ReadSeekCloser, *model.File, error) {
	file, err := s.files.ByIDAndOwner(ctx, fileID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrFileNotFound) {
			return nil, nil, apperr.ErrNotFound
		}
		return nil, nil, apperr.Internal("failed to look up file", err)
	}

	rc, err := s.store.Open(userID, file.BlobRef)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			slog.Error("registry row has no blob on disk", "file_id", file.ID, "user_id", userID, "blob_ref", file.BlobRef)
			return nil, nil, apperr.StorageIO("file content missing from storage", err)
		}
		return nil, nil, apperr.StorageIO("failed to open file content", err)
	}

	return rc, file, nil
}

// Delete removes a single file. The blob is unlinked before the registry row
// and the quota release commit; a blob removal failure other than "already
// absent" aborts the whole operation so the ledger never undercounts what is
// actually on disk.
func (s *DriveService) Delete(ctx context.Context, userID, fileID string) error {
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		files := s.files.WithTx(tx)

		file, err := files.ByIDAndOwner(ctx, fileID, userID)
		if err != nil {
			if errors.Is(err, repository.ErrFileNotFound) {
				return apperr.ErrNotFound
			}
			return apperr.Internal("failed to look up file", err)
		}

		err = s.store.Remove(userID, file.BlobRef)
		if err != nil {
			if errors.Is(err, storage.ErrBlobNotFound) {
				slog.Warn("blob already absent on delete", "file_id", file.ID, "blob_ref", file.BlobRef)
			} else {
				return apperr.StorageIO("failed to remove file content", err)
			}
		}

		err = files.Delete(ctx, file.ID)
		if err != nil {
			return apperr.Internal("failed to delete file record", err)
		}

		err = s.users.WithTx(tx).ReleaseStorage(ctx, userID, file.Size)
		if err != nil {
			return apperr.Internal("failed to release storage", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("file deleted", "user_id", userID, "file_id", fileID)
	return nil
}

func discard(staged storage.Staged) {
	err := staged.Discard()
	if err != nil {
		slog.Error("failed to discard staged blob", "error", err)
	}
}
