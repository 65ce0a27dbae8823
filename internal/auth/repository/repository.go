// Package repository is the data access layer for users, refresh tokens, and
// tenant API keys.
package repository

import (
	"context"
	"errors"
	"time"

	"dialer_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// User is a dashboard account scoped to a tenant.
type User struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	Email        string
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
}

// Repository provides auth data access.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates an auth repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UserByEmail fetches a user by email.
func (r *Repository) UserByEmail(ctx context.Context, email string) (*User, error) {
	query := `
		SELECT id, tenant_id, email, password_hash, roles, created_at
		FROM users
		WHERE email = $1`

	var u User
	err := r.pool.QueryRow(ctx, query, email).Scan(
		&u.ID, &u.TenantID, &u.Email, &u.PasswordHash, &u.Roles, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "failed to query user", err)
	}
	return &u, nil
}

// UserByID fetches a user by id.
func (r *Repository) UserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `
		SELECT id, tenant_id, email, password_hash, roles, created_at
		FROM users
		WHERE id = $1`

	var u User
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&u.ID, &u.TenantID, &u.Email, &u.PasswordHash, &u.Roles, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "failed to query user", err)
	}
	return &u, nil
}

// CreateRefreshToken stores a hashed refresh token.
func (r *Repository) CreateRefreshToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, NOW())`
	if _, err := r.pool.Exec(ctx, query, uuid.New(), userID, tokenHash, expiresAt); err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to store refresh token", err)
	}
	return nil
}

// RefreshTokenOwner resolves a hashed refresh token to its user and expiry.
func (r *Repository) RefreshTokenOwner(ctx context.Context, tokenHash string) (uuid.UUID, time.Time, error) {
	query := `SELECT user_id, expires_at FROM refresh_tokens WHERE token_hash = $1`

	var userID uuid.UUID
	var expiresAt time.Time
	err := r.pool.QueryRow(ctx, query, tokenHash).Scan(&userID, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, time.Time{}, apperr.Unauthorized("invalid refresh token")
		}
		return uuid.Nil, time.Time{}, apperr.Wrap(apperr.KindInternal, "failed to query refresh token", err)
	}
	return userID, expiresAt, nil
}

// RevokeRefreshToken deletes one refresh token by hash.
func (r *Repository) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1`, tokenHash); err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to revoke refresh token", err)
	}
	return nil
}

// TenantAPIKeyHash returns the bcrypt hash of the tenant's scheduler API key.
func (r *Repository) TenantAPIKeyHash(ctx context.Context, tenantID uuid.UUID) (string, error) {
	var hash *string
	err := r.pool.QueryRow(ctx, `SELECT api_key_hash FROM tenants WHERE id = $1`, tenantID).Scan(&hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperr.NotFound("tenant not found")
		}
		return "", apperr.Wrap(apperr.KindInternal, "failed to query tenant api key", err)
	}
	if hash == nil || *hash == "" {
		return "", apperr.Unauthorized("tenant has no api key")
	}
	return *hash, nil
}
