package model

import (
	"time"
)

// Storage tiers in bytes. Admins get the large tier on creation; toggling
// Pro switches a regular account between the free and pro tiers.
const (
	StorageLimitFree  int64 = 5 << 30   // 5 GiB
	StorageLimitPro   int64 = 35 << 30  // 35 GiB
	StorageLimitAdmin int64 = 100 << 30 // 100 GiB
)

type User struct {
	ID           string     `db:"id"`
	Email        string     `db:"email"`
	Username     string     `db:"username"`
	PasswordHash string     `db:"password_hash"`
	IsAdmin      bool       `db:"is_admin"`
	IsPro        bool       `db:"is_pro"`
	StorageUsed  int64      `db:"storage_used"`
	StorageLimit int64      `db:"storage_limit"`
	CreatedAt    time.Time  `db:"created_at"`
	LastLogin    *time.Time `db:"last_login"`
}

// StorageAvailable returns the remaining quota in bytes, never negative.
func (u *User) StorageAvailable() int64 {
	if u.StorageUsed >= u.StorageLimit {
		return 0
	}
	return u.StorageLimit - u.StorageUsed
}

// StoragePercent returns quota usage as a percentage for display.
func (u *User) StoragePercent() float64 {
	if u.StorageLimit <= 0 {
		return 0
	}
	return float64(u.StorageUsed) / float64(u.StorageLimit) * 100
}

// PlatformStats is the admin dashboard aggregate.
type PlatformStats struct {
	TotalUsers        int64 `db:"total_users"`
	ProUsers          int64 `db:"pro_users"`
	TotalFiles        int64 `db:"total_files"`
	TotalStorageUsed  int64 `db:"total_storage_used"`
	TotalStorageLimit int64 `db:"total_storage_limit"`
}
