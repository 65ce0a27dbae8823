// Package service implements authentication: dashboard sign-in with JWT
// access tokens and rotating refresh tokens, and API-key verification for
// the scheduler's internal path.
package service

import (
	"context"
	"errors"
	"time"

	"dialer_backend/internal/auth/repository"
	"dialer_backend/internal/auth/token"
	"dialer_backend/platform/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("token invalid")
)

const accessTokenType = "access"

// Service implements the auth flows.
type Service struct {
	repo *repository.Repository
	cfg  config.JWTConfig
}

// New creates the auth service.
func New(repo *repository.Repository, cfg config.JWTConfig) *Service {
	return &Service{repo: repo, cfg: cfg}
}

// SignIn verifies credentials and returns an access and refresh token pair.
func (s *Service) SignIn(ctx context.Context, email, plainPassword string) (string, string, error) {
	user, err := s.repo.UserByEmail(ctx, email)
	if err != nil {
		return "", "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(plainPassword)); err != nil {
		return "", "", ErrInvalidCredentials
	}
	return s.issueTokens(ctx, user)
}

// Refresh rotates a refresh token and returns a fresh pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, string, error) {
	hash := token.HashSHA256(refreshToken)
	userID, expiresAt, err := s.repo.RefreshTokenOwner(ctx, hash)
	if err != nil {
		return "", "", ErrTokenInvalid
	}
	if time.Now().After(expiresAt) {
		_ = s.repo.RevokeRefreshToken(ctx, hash)
		return "", "", ErrTokenExpired
	}
	_ = s.repo.RevokeRefreshToken(ctx, hash)

	user, err := s.repo.UserByID(ctx, userID)
	if err != nil {
		return "", "", ErrTokenInvalid
	}
	return s.issueTokens(ctx, user)
}

// SignOut revokes a refresh token.
func (s *Service) SignOut(ctx context.Context, refreshToken string) error {
	return s.repo.RevokeRefreshToken(ctx, token.HashSHA256(refreshToken))
}

// VerifyAPIKey checks a tenant's scheduler API key against its stored bcrypt
// hash and returns the tenant id on success.
func (s *Service) VerifyAPIKey(ctx context.Context, tenantID uuid.UUID, secret string) error {
	hash, err := s.repo.TenantAPIKeyHash(ctx, tenantID)
	if err != nil {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

func (s *Service) issueTokens(ctx context.Context, user *repository.User) (string, string, error) {
	claims := jwt.MapClaims{
		"sub":       user.ID.String(),
		"type":      accessTokenType,
		"roles":     user.Roles,
		"tenant_id": user.TenantID.String(),
		"exp":       time.Now().Add(s.cfg.GetAccessTokenTTL()).Unix(),
		"iat":       time.Now().Unix(),
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(s.cfg.GetJWTAccessSecret()))
	if err != nil {
		return "", "", err
	}

	refreshToken, err := token.GenerateRandom(48)
	if err != nil {
		return "", "", err
	}
	hash := token.HashSHA256(refreshToken)
	expiresAt := time.Now().Add(s.cfg.GetRefreshTokenTTL())
	if err := s.repo.CreateRefreshToken(ctx, user.ID, hash, expiresAt); err != nil {
		return "", "", err
	}

	return accessToken, refreshToken, nil
}
