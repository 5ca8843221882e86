package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "photo.jpg", "photo.jpg"},
		{"unix path stripped", "/etc/passwd", "passwd"},
		{"windows path stripped", `C:\Users\me\cat.png`, "cat.png"},
		{"traversal neutralized", "../../secret.txt", "secret.txt"},
		{"spaces replaced", "my holiday photo.jpg", "my_holiday_photo.jpg"},
		{"shell chars replaced", "a;rm -rf$(x).png", "a_rm_-rf__x_.png"},
		{"unicode replaced", "héllo.png", "h_llo.png"},
		{"truncated to 255", strings.Repeat("a", 300) + ".jpg", strings.Repeat("a", 255)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}
}

func TestValidateFile(t *testing.T) {
	tests := []struct {
		name       string
		filename   string
		mimeType   string
		size       int64
		violations int
	}{
		{"valid image", "photo.jpg", "image/jpeg", 1024, 0},
		{"valid archive two extensions", "backup.tar.gz", "application/zip", 1024, 0},
		{"size zero means unknown", "photo.jpg", "image/jpeg", 0, 0},
		{"oversize", "big.mp4", "video/mp4", MaxFileSize + 1, 1},
		{"exactly at cap", "big.mp4", "video/mp4", MaxFileSize, 0},
		{"executable mimetype", "setup.exe", "application/x-msdownload", 10, 1},
		{"empty filename", "", "image/png", 10, 1},
		{"too long filename", strings.Repeat("a", 256), "image/png", 10, 1},
		{"double extension bypass", "x.jpg.exe.txt", "text/plain", 10, 1},
		{"everything wrong at once", "x.a.b.c", "application/x-msdownload", MaxFileSize + 1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			violations := ValidateFile(tt.filename, tt.mimeType, tt.size)
			assert.Len(t, violations, tt.violations)
		})
	}
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("user@example.com"))
	assert.Error(t, ValidateEmail(""))
	assert.Error(t, ValidateEmail("not-an-email"))
	assert.Error(t, ValidateEmail(strings.Repeat("a", 250)+"@example.com"))
}

func TestValidateUsername(t *testing.T) {
	assert.NoError(t, ValidateUsername("alice_2024"))
	assert.NoError(t, ValidateUsername("bob-42"))
	assert.Error(t, ValidateUsername("ab"))
	assert.Error(t, ValidateUsername(strings.Repeat("a", 31)))
	assert.Error(t, ValidateUsername("bad name"))
	assert.Error(t, ValidateUsername("bad/name"))
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, ValidatePassword("Secure1234"))
	assert.NoError(t, ValidatePassword("lower-with-punct"))
	assert.Error(t, ValidatePassword("short1A"))
	assert.Error(t, ValidatePassword(strings.Repeat("aB1", 30)))
	assert.Error(t, ValidatePassword("alllowercase"))
}
