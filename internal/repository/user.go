package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/servepics/servepics/internal/apperr"
	"github.com/servepics/servepics/internal/model"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already exists")
)

type UserRepository interface {
	// WithTx returns a copy of the repository bound to the transaction.
	WithTx(tx *sqlx.Tx) UserRepository

	Create(ctx context.Context, user *model.User) error
	ByID(ctx context.Context, id string) (*model.User, error)
	ByEmail(ctx context.Context, email string) (*model.User, error)
	All(ctx context.Context) ([]*model.User, error)
	Delete(ctx context.Context, id string) error
	UpdateLastLogin(ctx context.Context, id string) error

	// ReserveStorage atomically admits and applies a quota increment: the
	// update only succeeds when storage_used + size stays within
	// storage_limit. Run it inside the same transaction as the file insert.
	ReserveStorage(ctx context.Context, id string, size int64) error

	// ReleaseStorage subtracts size from storage_used, flooring at zero.
	ReleaseStorage(ctx context.Context, id string, size int64) error

	SetPro(ctx context.Context, id string, isPro bool, limit int64) error
	Stats(ctx context.Context) (*model.PlatformStats, error)
}

type userRepository struct {
	q querier
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepository{q: db}
}

func (r *userRepository) WithTx(tx *sqlx.Tx) UserRepository {
	return &userRepository{q: tx}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	query := `INSERT INTO users (id, email, username, password_hash, is_admin, is_pro, storage_used, storage_limit, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.q.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.Username,
		user.PasswordHash,
		user.IsAdmin,
		user.IsPro,
		user.StorageUsed,
		user.StorageLimit,
		user.CreatedAt,
	)
	if err != nil {
		// Check for unique constraint violation (works for both SQLite and PostgreSQL)
		errStr := err.Error()
		if strings.Contains(errStr, "UNIQUE constraint failed") || strings.Contains(errStr, "duplicate key value") {
			return ErrDuplicateEmail
		}
		return err
	}

	return nil
}

func (r *userRepository) ByID(ctx context.Context, id string) (*model.User, error) {
	user := &model.User{}
	query := `SELECT * FROM users WHERE id = $1`

	err := r.q.GetContext(ctx, user, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}

	return user, err
}

func (r *userRepository) ByEmail(ctx context.Context, email string) (*model.User, error) {
	user := &model.User{}
	query := `SELECT * FROM users WHERE email = $1`

	err := r.q.GetContext(ctx, user, query, email)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}

	return user, err
}

func (r *userRepository) All(ctx context.Context) ([]*model.User, error) {
	var users []*model.User
	query := `SELECT * FROM users ORDER BY created_at DESC`

	err := r.q.SelectContext(ctx, &users, query)
	if err != nil {
		return nil, err
	}

	return users, nil
}

func (r *userRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM users WHERE id = $1`

	result, err := r.q.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (r *userRepository) UpdateLastLogin(ctx context.Context, id string) error {
	query := `UPDATE users SET last_login = CURRENT_TIMESTAMP WHERE id = $1`

	_, err := r.q.ExecContext(ctx, query, id)
	return err
}

func (r *userRepository) ReserveStorage(ctx context.Context, id string, size int64) error {
	query := `UPDATE users SET storage_used = storage_used + $1
	          WHERE id = $2 AND storage_used + $1 <= storage_limit`

	result, err := r.q.ExecContext(ctx, query, size, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	// Nothing updated: either the user is gone or the quota is full.
	user, err := r.ByID(ctx, id)
	if err != nil {
		return err
	}

	return &apperr.QuotaExceededError{
		Used:      user.StorageUsed,
		Limit:     user.StorageLimit,
		Requested: size,
	}
}

func (r *userRepository) ReleaseStorage(ctx context.Context, id string, size int64) error {
	// Floors at zero so accounting drift can never push the ledger negative
	query := `UPDATE users SET storage_used = CASE WHEN storage_used < $1 THEN 0 ELSE storage_used - $1 END
	          WHERE id = $2`

	result, err := r.q.ExecContext(ctx, query, size, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (r *userRepository) SetPro(ctx context.Context, id string, isPro bool, limit int64) error {
	query := `UPDATE users SET is_pro = $1, storage_limit = $2 WHERE id = $3`

	result, err := r.q.ExecContext(ctx, query, isPro, limit, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (r *userRepository) Stats(ctx context.Context) (*model.PlatformStats, error) {
	stats := &model.PlatformStats{}
	query := `SELECT COUNT(*) AS total_users,
	                 COALESCE(SUM(CASE WHEN is_pro THEN 1 ELSE 0 END), 0) AS pro_users,
	                 COALESCE(SUM(storage_used), 0) AS total_storage_used,
	                 COALESCE(SUM(storage_limit), 0) AS total_storage_limit
	          FROM users`

	err := r.q.GetContext(ctx, stats, query)
	if err != nil {
		return nil, err
	}

	err = r.q.GetContext(ctx, &stats.TotalFiles, `SELECT COUNT(*) FROM files`)
	if err != nil {
		return nil, err
	}

	return stats, nil
}
