package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/volunhub/api/internal/domain"
	"github.com/volunhub/api/internal/repository"
)

// CreateUser stores a new account.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (id, username, email, role, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.Role,
		user.PasswordHash,
		user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicateUser
		}
		return err
	}
	return nil
}

// GetUserByID loads a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT id, username, email, role, password_hash, created_at
		FROM users WHERE id = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, id))
}

// GetUserByLogin loads a user matching either username or email.
func (r *Repository) GetUserByLogin(ctx context.Context, usernameOrEmail string) (*domain.User, error) {
	const query = `SELECT id, username, email, role, password_hash, created_at
		FROM users WHERE username = $1 OR email = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, usernameOrEmail))
}

func (r *Repository) scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.Role,
		&user.PasswordHash,
		&user.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}
