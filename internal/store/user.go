package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/messageapi/apiserver/types"
)

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	const query = `
		SELECT id, username, password_hash, created_at
		FROM users
		WHERE username = $1`
	var user types.User
	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

// Create inserts a user. A concurrent registration of the same username loses
// the race on the unique index and gets ErrAlreadyExists.
func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	const query = `
		INSERT INTO users (username, password_hash)
		VALUES ($1, $2)
		RETURNING id, created_at`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Username,
		user.PasswordHash,
	).Scan(&user.ID, &user.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return types.User{}, ErrAlreadyExists
		}
		if isValueTooLong(err) {
			return types.User{}, ErrValueTooLong
		}
		return types.User{}, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}
