package validation

import (
	"fmt"
	"strings"
)

// MaxFileSize is the upload size cap.
const MaxFileSize = 100 << 20 // 100 MiB

// AllowedMimeTypes is the upload allow-list. Anything not listed is rejected.
var AllowedMimeTypes = map[string]bool{
	// Images
	"image/jpeg": true, "image/jpg": true, "image/png": true,
	"image/gif": true, "image/webp": true, "image/svg+xml": true,
	// Documents
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"application/vnd.ms-powerpoint":                                     true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"text/plain": true, "text/csv": true,
	// Archives
	"application/zip": true, "application/x-rar-compressed": true,
	"application/x-7z-compressed": true,
	// Audio
	"audio/mpeg": true, "audio/wav": true, "audio/ogg": true, "audio/mp4": true,
	// Video
	"video/mp4": true, "video/mpeg": true, "video/quicktime": true,
	"video/x-msvideo": true, "video/webm": true,
}

// SanitizeFilename strips any path component, replaces every character
// outside [A-Za-z0-9._-] with an underscore, and truncates to 255 bytes.
// The result is only ever stored as metadata, never used as a disk path.
func SanitizeFilename(name string) string {
	// Drop everything up to the last path separator, either flavor
	if i := strings.LastIndexAny(name, "/\\"); i >= 0 {
		name = name[i+1:]
	}

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	s := b.String()
	if len(s) > 255 {
		s = s[:255]
	}
	return s
}

// ValidateFile checks a sanitized filename, declared mimetype and size
// against the upload rules. Every violation is collected; nothing
// short-circuits. An empty slice means the file is acceptable.
//
// A size of zero is treated as "not yet known" so the mimetype and filename
// checks can run before any bytes hit the disk.
func ValidateFile(name, mimeType string, size int64) []string {
	var violations []string

	if size > MaxFileSize {
		violations = append(violations, fmt.Sprintf("file size exceeds %d MB limit", MaxFileSize>>20))
	}

	if !AllowedMimeTypes[mimeType] {
		violations = append(violations, "file type not allowed")
	}

	if name == "" || len(name) > 255 {
		violations = append(violations, "invalid filename")
	}

	// name.tar.gz is fine, name.jpg.exe.txt is not
	if strings.Count(name, ".") > 2 {
		violations = append(violations, "too many file extensions")
	}

	return violations
}
