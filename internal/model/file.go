package model

import (
	"time"
)

type File struct {
	ID           string    `db:"id"`
	UserID       string    `db:"user_id"` // Owning user, rows cascade on user deletion
	BlobRef      string    `db:"blob_ref"`
	OriginalName string    `db:"original_name"` // Sanitized user-supplied name, metadata only
	Size         int64     `db:"size"`          // Exact on-disk byte count
	MimeType     string    `db:"mime_type"`
	UploadedAt   time.Time `db:"uploaded_at"`
}
