package service

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servepics/servepics/internal/apperr"
	"github.com/servepics/servepics/internal/db"
	"github.com/servepics/servepics/internal/model"
	"github.com/servepics/servepics/internal/repository"
	"github.com/servepics/servepics/internal/storage"
)

type testEnv struct {
	db    *sqlx.DB
	users repository.UserRepository
	files repository.FileRegistry
	store *storage.LocalStore
	root  string
	drive *DriveService
	admin *AdminService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	database, err := db.Init("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.RunMigrations(database.DB, "sqlite"))

	root := t.TempDir()
	store, err := storage.NewLocalStore(root)
	require.NoError(t, err)

	users := repository.NewUserRepository(database)
	files := repository.NewFileRegistry(database)

	return &testEnv{
		db:    database,
		users: users,
		files: files,
		store: store,
		root:  root,
		drive: NewDriveService(database, users, files, store),
		admin: NewAdminService(database, users, files, store),
	}
}

func (e *testEnv) createUser(t *testing.T, limit int64, isAdmin bool) *model.User {
	t.Helper()

	user := &model.User{
		ID:           uuid.New().String(),
		Email:        uuid.New().String() + "@example.com",
		Username:     "tester",
		PasswordHash: "x",
		IsAdmin:      isAdmin,
		StorageLimit: limit,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, e.users.Create(context.Background(), user))
	return user
}

// blobCount counts committed blobs in the user's directory on disk.
func (e *testEnv) blobCount(t *testing.T, userID string) int {
	t.Helper()
	refs, err := e.store.Refs(userID)
	require.NoError(t, err)
	return len(refs)
}

// stagedCount counts files left in the staging directory.
func (e *testEnv) stagedCount(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(e.root, ".tmp"))
	require.NoError(t, err)
	return len(entries)
}

func (e *testEnv) storageUsed(t *testing.T, userID string) int64 {
	t.Helper()
	user, err := e.users.ByID(context.Background(), userID)
	require.NoError(t, err)
	return user.StorageUsed
}

func TestDrive_UploadSuccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, 5_000_000_000, false)

	content := strings.Repeat("x", 10_000)
	file, err := env.drive.Upload(ctx, user.ID, "vacation photo.jpg", "image/jpeg", strings.NewReader(content))
	require.NoError(t, err)

	assert.Equal(t, "vacation_photo.jpg", file.OriginalName)
	assert.Equal(t, int64(10_000), file.Size)
	assert.Equal(t, "image/jpeg", file.MimeType)
	assert.Regexp(t, "^[0-9a-f]{32}$", file.BlobRef)

	// Ledger matches the bytes on disk
	assert.Equal(t, int64(10_000), env.storageUsed(t, user.ID))
	assert.Equal(t, 1, env.blobCount(t, user.ID))
	assert.Zero(t, env.stagedCount(t))

	// Round-trip the content
	rc, got, err := env.drive.Download(ctx, user.ID, file.ID)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
	assert.Equal(t, file.OriginalName, got.OriginalName)
}

func TestDrive_UploadQuotaExceeded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, 15_000, false)

	_, err := env.drive.Upload(ctx, user.ID, "first.jpg", "image/jpeg", strings.NewReader(strings.Repeat("x", 10_000)))
	require.NoError(t, err)

	// Second upload would overshoot: rejected, nothing moves, no orphan
	_, err = env.drive.Upload(ctx, user.ID, "second.jpg", "image/jpeg", strings.NewReader(strings.Repeat("x", 10_000)))
	var qe *apperr.QuotaExceededError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, int64(10_000), qe.Used)
	assert.Equal(t, int64(15_000), qe.Limit)

	assert.Equal(t, int64(10_000), env.storageUsed(t, user.ID))
	assert.Equal(t, 1, env.blobCount(t, user.ID))
	assert.Zero(t, env.stagedCount(t))

	files, err := env.drive.List(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestDrive_UploadDisallowedMimetypeWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, 5_000_000_000, false)

	_, err := env.drive.Upload(ctx, user.ID, "setup.exe", "application/x-msdownload", strings.NewReader("MZ..."))
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	// Rejected before staging: no disk write at all
	assert.Zero(t, env.blobCount(t, user.ID))
	assert.Zero(t, env.stagedCount(t))
	assert.Zero(t, env.storageUsed(t, user.ID))
}

func TestDrive_UploadUnknownUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.drive.Upload(ctx, uuid.New().String(), "a.jpg", "image/jpeg", strings.NewReader("data"))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Zero(t, env.stagedCount(t))
}

func TestDrive_DeleteRestoresQuota(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, 5_000_000_000, false)

	file, err := env.drive.Upload(ctx, user.ID, "doomed.jpg", "image/jpeg", strings.NewReader(strings.Repeat("x", 10_000)))
	require.NoError(t, err)
	require.Equal(t, int64(10_000), env.storageUsed(t, user.ID))

	require.NoError(t, env.drive.Delete(ctx, user.ID, file.ID))

	assert.Zero(t, env.storageUsed(t, user.ID))
	assert.Zero(t, env.blobCount(t, user.ID))

	files, err := env.drive.List(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, files)

	// Deleting again: the row is gone
	assert.ErrorIs(t, env.drive.Delete(ctx, user.ID, file.ID), apperr.ErrNotFound)
}

func TestDrive_DeleteIsOwnerScoped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, 5_000_000_000, false)
	bob := env.createUser(t, 5_000_000_000, false)

	file, err := env.drive.Upload(ctx, alice.ID, "private.jpg", "image/jpeg", strings.NewReader("secret"))
	require.NoError(t, err)

	// Bob cannot delete or download Alice's file; to him it does not exist
	assert.ErrorIs(t, env.drive.Delete(ctx, bob.ID, file.ID), apperr.ErrNotFound)
	_, _, err = env.drive.Download(ctx, bob.ID, file.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.Equal(t, int64(6), env.storageUsed(t, alice.ID))
	assert.Equal(t, 1, env.blobCount(t, alice.ID))
}

func TestDrive_DownloadMissingBlobIsSurfaced(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, 5_000_000_000, false)

	file, err := env.drive.Upload(ctx, user.ID, "a.jpg", "image/jpeg", strings.NewReader("data"))
	require.NoError(t, err)

	// Corrupt the store behind the registry's back
	require.NoError(t, env.store.Remove(user.ID, file.BlobRef))

	_, _, err = env.drive.Download(ctx, user.ID, file.ID)
	assert.Equal(t, apperr.KindStorageIO, apperr.KindOf(err))
}

func TestDrive_DeleteWithAbsentBlobStillReleases(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, 5_000_000_000, false)

	file, err := env.drive.Upload(ctx, user.ID, "a.jpg", "image/jpeg", strings.NewReader("data"))
	require.NoError(t, err)
	require.NoError(t, env.store.Remove(user.ID, file.BlobRef))

	// "Already absent" is not an abort condition
	require.NoError(t, env.drive.Delete(ctx, user.ID, file.ID))
	assert.Zero(t, env.storageUsed(t, user.ID))
}

func TestDrive_ConcurrentUploadsNeverOvershoot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Room for one and a half uploads: exactly one must win
	const size = 10_000
	user := env.createUser(t, size+size/2, false)

	content := strings.Repeat("x", size)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.drive.Upload(ctx, user.ID, "race.jpg", "image/jpeg", strings.NewReader(content))
		}(i)
	}
	wg.Wait()

	var failures []error
	for _, err := range errs {
		if err != nil {
			failures = append(failures, err)
		}
	}
	require.Len(t, failures, 1, "exactly one upload must fail")

	var qe *apperr.QuotaExceededError
	assert.ErrorAs(t, failures[0], &qe)

	assert.Equal(t, int64(size), env.storageUsed(t, user.ID))
	assert.Equal(t, 1, env.blobCount(t, user.ID))
	assert.Zero(t, env.stagedCount(t))
}

func TestDrive_LedgerMatchesFilesAfterMixedOperations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, 1_000_000, false)

	var kept []*model.File
	for i, size := range []int{100, 2_000, 30_000} {
		file, err := env.drive.Upload(ctx, user.ID, "f.jpg", "image/jpeg", strings.NewReader(strings.Repeat("x", size)))
		require.NoError(t, err)
		if i != 1 {
			kept = append(kept, file)
		} else {
			require.NoError(t, env.drive.Delete(ctx, user.ID, file.ID))
		}
	}

	var sum int64
	files, err := env.drive.List(ctx, user.ID)
	require.NoError(t, err)
	for _, f := range files {
		sum += f.Size
	}
	assert.Len(t, files, len(kept))
	assert.Equal(t, sum, env.storageUsed(t, user.ID))
	assert.Equal(t, len(kept), env.blobCount(t, user.ID))
}
