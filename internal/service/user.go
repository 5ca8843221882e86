package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/servepics/servepics/internal/apperr"
	"github.com/servepics/servepics/internal/model"
	"github.com/servepics/servepics/internal/repository"
	"github.com/servepics/servepics/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

// StorageStats is the per-user quota summary.
type StorageStats struct {
	Used       int64
	Limit      int64
	Percentage float64
}

type UserService struct {
	users repository.UserRepository
}

func NewUserService(users repository.UserRepository) *UserService {
	return &UserService{users: users}
}

// Register creates a regular account on the free tier.
func (s *UserService) Register(ctx context.Context, email, username, password string) (*model.User, error) {
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

	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
		StorageLimit: model.StorageLimitFree,
		CreatedAt:    time.Now().UTC(),
	}

	err = s.users.Create(ctx, user)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, apperr.New(apperr.KindConflict, "email already exists")
		}
		return nil, apperr.Internal("failed to create user", err)
	}

	slog.Info("user registered", "user_id", user.ID)
	return user, nil
}

// Authenticate checks credentials and records the login time. The identity
// it returns is what the lifecycle operations trust as the acting user.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.users.ByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperr.New(apperr.KindForbidden, "invalid email or password")
		}
		return nil, apperr.Internal("failed to look up user", err)
	}

	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password))
	if err != nil {
		return nil, apperr.New(apperr.KindForbidden, "invalid email or password")
	}

	err = s.users.UpdateLastLogin(ctx, user.ID)
	if err != nil {
		slog.Warn("failed to update last login", "error", err, "user_id", user.ID)
	}

	return user, nil
}

// Info returns the user's account record.
func (s *UserService) Info(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.ByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Internal("failed to look up user", err)
	}
	return user, nil
}

// Storage returns the user's quota usage.
func (s *UserService) Storage(ctx context.Context, userID string) (*StorageStats, error) {
	user, err := s.Info(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &StorageStats{
		Used:       user.StorageUsed,
		Limit:      user.StorageLimit,
		Percentage: user.StoragePercent(),
	}, nil
}

// BootstrapAdmin creates the default admin account if no account with the
// given email exists yet. Called once at startup.
func (s *UserService) BootstrapAdmin(ctx context.Context, email, password string) error {
	_, err := s.users.ByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return apperr.Internal("failed to look up admin account", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return apperr.Internal("failed to hash admin password", err)
	}

	admin := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		Username:     "Admin",
		PasswordHash: string(hash),
		IsAdmin:      true,
		StorageLimit: model.StorageLimitAdmin,
		CreatedAt:    time.Now().UTC(),
	}

	err = s.users.Create(ctx, admin)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil // lost a race with another instance, fine
		}
		return apperr.Internal("failed to create admin account", err)
	}

	slog.Info("default admin account created", "email", email)
	slog.Warn("change the default admin password")
	return nil
}
