package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/servepics/servepics/internal/model"
)

var (
	ErrFileNotFound = errors.New("file not found")
)

// FileRegistry is the source of truth for file existence. Every read and
// delete is scoped by owner; a file id alone never authorizes access.
type FileRegistry interface {
	// WithTx returns a copy of the registry bound to the transaction.
	WithTx(tx *sqlx.Tx) FileRegistry

	Create(ctx context.Context, file *model.File) error
	ByIDAndOwner(ctx context.Context, id, ownerID string) (*model.File, error)
	AllByOwner(ctx context.Context, ownerID string) ([]*model.File, error)
	Delete(ctx context.Context, id string) error

	// DeleteAllByOwner removes every row the owner has and returns the
	// removed files so the caller can clean up their blobs.
	DeleteAllByOwner(ctx context.Context, ownerID string) ([]*model.File, error)

	// BlobRefsByOwner lists the blob references the registry knows for one
	// owner. Anything on disk outside this set is an orphan.
	BlobRefsByOwner(ctx context.Context, ownerID string) ([]string, error)
}

type fileRegistry struct {
	q querier
}

func NewFileRegistry(db *sqlx.DB) FileRegistry {
	return &fileRegistry{q: db}
}

func (r *fileRegistry) WithTx(tx *sqlx.Tx) FileRegistry {
	return &fileRegistry{q: tx}
}

func (r *fileRegistry) Create(ctx context.Context, file *model.File) error {
	query := `INSERT INTO files (id, user_id, blob_ref, original_name, size, mime_type, uploaded_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.q.ExecContext(ctx, query,
		file.ID,
		file.UserID,
		file.BlobRef,
		file.OriginalName,
		file.Size,
		file.MimeType,
		file.UploadedAt,
	)

	return err
}

func (r *fileRegistry) ByIDAndOwner(ctx context.Context, id, ownerID string) (*model.File, error) {
	file := &model.File{}
	query := `SELECT * FROM files WHERE id = $1 AND user_id = $2`

	err := r.q.GetContext(ctx, file, query, id, ownerID)
	if err == sql.ErrNoRows {
		return nil, ErrFileNotFound
	}

	return file, err
}

func (r *fileRegistry) AllByOwner(ctx context.Context, ownerID string) ([]*model.File, error) {
	var files []*model.File
	query := `SELECT * FROM files WHERE user_id = $1 ORDER BY uploaded_at DESC, id DESC`

	err := r.q.SelectContext(ctx, &files, query, ownerID)
	if err != nil {
		return nil, err
	}

	return files, nil
}

func (r *fileRegistry) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM files WHERE id = $1`

	result, err := r.q.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrFileNotFound
	}

	return nil
}

func (r *fileRegistry) DeleteAllByOwner(ctx context.Context, ownerID string) ([]*model.File, error) {
	files, err := r.AllByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	_, err = r.q.ExecContext(ctx, `DELETE FROM files WHERE user_id = $1`, ownerID)
	if err != nil {
		return nil, err
	}

	return files, nil
}

func (r *fileRegistry) BlobRefsByOwner(ctx context.Context, ownerID string) ([]string, error) {
	var refs []string
	query := `SELECT blob_ref FROM files WHERE user_id = $1`

	err := r.q.SelectContext(ctx, &refs, query, ownerID)
	if err != nil {
		return nil, err
	}

	return refs, nil
}
