package service

import (
	"context"
	"errors"
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

	"golang.org/x/crypto/bcrypt"
)

// AdminService holds the administrator-only operations: account cascade
// deletion, Pro tier toggling and platform overviews. Every entry point
// re-checks the acting user's admin flag against the database.
type AdminService struct {
	db    *sqlx.DB
	users repository.UserRepository
	files repository.FileRegistry
	store storage.BlobStore
}

func NewAdminService(database *sqlx.DB, users repository.UserRepository, files repository.FileRegistry, store storage.BlobStore) *AdminService {
	return &AdminService{
		db:    database,
		users: users,
		files: files,
		store: store,
	}
}

func (s *AdminService) requireAdmin(ctx context.Context, actingID string) (*model.User, error) {
	acting, err := s.users.ByID(ctx, actingID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperr.ErrForbidden
		}
		return nil, apperr.Internal("failed to look up acting user", err)
	}
	if !acting.IsAdmin {
		return nil, apperr.ErrForbidden
	}
	return acting, nil
}

// DeleteUser removes an account together with every file it owns.
//
// Blob removal here is deliberately best-effort, unlike single-file delete:
// the dominant goal is that the account ends up gone, and an orphaned blob
// is acceptable residue for the reaper. Admins cannot delete themselves or
// other admin accounts.
func (s *AdminService) DeleteUser(ctx context.Context, actingAdminID, targetUserID string) error {
	if _, err := s.requireAdmin(ctx, actingAdminID); err != nil {
		return err
	}

	if actingAdminID == targetUserID {
		return apperr.New(apperr.KindForbidden, "cannot delete your own account")
	}

	target, err := s.users.ByID(ctx, targetUserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return apperr.ErrNotFound
		}
		return apperr.Internal("failed to look up target user", err)
	}
	if target.IsAdmin {
		return apperr.New(apperr.KindForbidden, "cannot delete an admin account")
	}

	err = db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		removed, err := s.files.WithTx(tx).DeleteAllByOwner(ctx, targetUserID)
		if err != nil {
			return apperr.Internal("failed to delete file records", err)
		}

		for _, file := range removed {
			err := s.store.Remove(targetUserID, file.BlobRef)
			if err != nil && !errors.Is(err, storage.ErrBlobNotFound) {
				// Keep going: the cascade must complete even when a
				// blob refuses to die
				slog.Warn("failed to remove blob during cascade delete", "error", err, "user_id", targetUserID, "blob_ref", file.BlobRef)
			}
		}

		err = s.users.WithTx(tx).Delete(ctx, targetUserID)
		if err != nil {
			return apperr.Internal("failed to delete user", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	// Drop the now-empty owner directory; leftovers are reaped out-of-band
	err = s.store.RemoveOwner(targetUserID)
	if err != nil {
		slog.Warn("failed to remove owner directory", "error", err, "user_id", targetUserID)
	}

	slog.Info("user deleted", "admin_id", actingAdminID, "user_id", targetUserID)
	return nil
}

// TogglePro flips the target's Pro flag and moves storage_limit to the
// matching tier. storage_used is untouched.
func (s *AdminService) TogglePro(ctx context.Context, actingAdminID, targetUserID string) (bool, int64, error) {
	if _, err := s.requireAdmin(ctx, actingAdminID); err != nil {
		return false, 0, err
	}

	target, err := s.users.ByID(ctx, targetUserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return false, 0, apperr.ErrNotFound
		}
		return false, 0, apperr.Internal("failed to look up target user", err)
	}

	isPro := !target.IsPro
	limit := model.StorageLimitFree
	if isPro {
		limit = model.StorageLimitPro
	}

	err = s.users.SetPro(ctx, targetUserID, isPro, limit)
	if err != nil {
		return false, 0, apperr.Internal("failed to update subscription", err)
	}

	slog.Info("pro subscription toggled", "admin_id", actingAdminID, "user_id", targetUserID, "is_pro", isPro)
	return isPro, limit, nil
}

// ListUsers returns every account, newest first.
func (s *AdminService) ListUsers(ctx context.Context, actingAdminID string) ([]*model.User, error) {
	if _, err := s.requireAdmin(ctx, actingAdminID); err != nil {
		return nil, err
	}

	users, err := s.users.All(ctx)
	if err != nil {
		return nil, apperr.Internal("failed to list users", err)
	}
	return users, nil
}

// Stats returns the platform-wide aggregate for the dashboard.
func (s *AdminService) Stats(ctx context.Context, actingAdminID string) (*model.PlatformStats, error) {
	if _, err := s.requireAdmin(ctx, actingAdminID); err != nil {
		return nil, err
	}

	stats, err := s.users.Stats(ctx)
	if err != nil {
		return nil, apperr.Internal("failed to compute stats", err)
	}
	return stats, nil
}

// UserFiles lists another user's files for the admin view.
func (s *AdminService) UserFiles(ctx context.Context, actingAdminID, targetUserID string) ([]*model.File, error) {
	if _, err := s.requireAdmin(ctx, actingAdminID); err != nil {
		return nil, err
	}

	files, err := s.files.AllByOwner(ctx, targetUserID)
	if err != nil {
		return nil, apperr.Internal("failed to list files", err)
	}
	return files, nil
}

// CreateAdmin provisions a new administrator account with the large tier.
func (s *AdminService) CreateAdmin(ctx context.Context, actingAdminID, email, username, password string) (*model.User, error) {
	if _, err := s.requireAdmin(ctx, actingAdminID); err != nil {
		return nil, err
	}

	var violations []string
	if err := validation.ValidateEmail(email); err != nil {
		violations = append(violations, err.Error())
	}
	if err := validation.ValidateUsername(username); err != nil {
		violations = append(violations, err.Error())
	}
	if err := validation.ValidatePassword(password); err != nil {
		violations = append(violations, err.Error())
	}
	if len(violations) > 0 {
		return nil, &apperr.ValidationError{Violations: violations}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Internal("failed to hash password", err)
	}

	admin := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
		IsAdmin:      true,
		StorageLimit: model.StorageLimitAdmin,
		CreatedAt:    time.Now().UTC(),
	}

	err = s.users.Create(ctx, admin)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, apperr.New(apperr.KindConflict, "email already exists")
		}
		return nil, apperr.Internal("failed to create admin account", err)
	}

	slog.Info("admin account created", "admin_id", actingAdminID, "new_admin_id", admin.ID)
	return admin, nil
}
