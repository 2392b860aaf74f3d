// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 tokenward Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/tokenward/tokenward/internal/auth"
	"github.com/tokenward/tokenward/internal/store"
)

// TokenRepository implements auth.TokenRepository using PostgreSQL.
// Refresh tokens live in refresh_tokens, reset tokens in password_reset_tokens.
type TokenRepository struct {
	db store.DB
}

// NewTokenRepository creates a new TokenRepository.
func NewTokenRepository(db store.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// SaveRefreshToken stores a new refresh token record.
func (r *TokenRepository) SaveRefreshToken(ctx context.Context, token *auth.StoredRefreshToken) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO refresh_tokens (token_hash, user_id, issued_at, expires_at, last_used_at)
		VALUES ($1, $2, $3, $4, $5)
	`, token.TokenHash, token.UserID.String(), token.IssuedAt, token.ExpiresAt, token.LastUsedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code("REFRESH_TOKEN_CONFLICT").
				With("user_id", token.UserID.String()).
				Wrap(auth.ErrConflict)
		}
		return oops.Code("REFRESH_TOKEN_SAVE_FAILED").
			With("operation", "insert refresh token").
			With("user_id", token.UserID.String()).
			Wrap(err)
	}
	return nil
}

// FindRefreshToken returns the record for tokenHash, expired or not.
func (r *TokenRepository) FindRefreshToken(ctx context.Context, tokenHash string) (*auth.StoredRefreshToken, error) {
	var (
		userIDStr string
		t         auth.StoredRefreshToken
	)
	err := r.db.QueryRow(ctx, `
		SELECT token_hash, user_id, issued_at, expires_at, last_used_at
		FROM refresh_tokens
		WHERE token_hash = $1
	`, tokenHash).Scan(&t.TokenHash, &userIDStr, &t.IssuedAt, &t.ExpiresAt, &t.LastUsedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("REFRESH_TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("REFRESH_TOKEN_FIND_FAILED").
			With("operation", "select refresh token").
			Wrap(err)
	}

	t.UserID, err = ulid.Parse(userIDStr)
	if err != nil {
		return nil, oops.Code("REFRESH_TOKEN_INVALID_USER").
			With("operation", "parse user id").
			With("user_id", userIDStr).
			Wrap(err)
	}
	return &t, nil
}

// UpdateLastUsed stamps the record's last use time.
func (r *TokenRepository) UpdateLastUsed(ctx context.Context, tokenHash string, at time.Time) error {
	result, err := r.db.Exec(ctx, `
		UPDATE refresh_tokens SET last_used_at = $2 WHERE token_hash = $1
	`, tokenHash, at)
	if err != nil {
		return oops.Code("REFRESH_TOKEN_TOUCH_FAILED").
			With("operation", "update last_used_at").
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("REFRESH_TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return nil
}

// RevokeRefreshToken deletes the record for tokenHash. Only the caller whose
// DELETE removed the row gets true.
func (r *TokenRepository) RevokeRefreshToken(ctx context.Context, tokenHash string) (bool, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return false, oops.Code("REFRESH_TOKEN_REVOKE_FAILED").
			With("operation", "delete refresh token").
			Wrap(err)
	}
	return result.RowsAffected() == 1, nil
}

// RevokeAllUserTokens deletes every refresh token of a user.
func (r *TokenRepository) RevokeAllUserTokens(ctx context.Context, userID ulid.ULID) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID.String())
	if err != nil {
		return 0, oops.Code("REFRESH_TOKEN_REVOKE_ALL_FAILED").
			With("operation", "delete user refresh tokens").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// DeleteExpiredRefreshTokens removes records with expires_at <= before.
func (r *TokenRepository) DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, oops.Code("REFRESH_TOKEN_PURGE_FAILED").
			With("operation", "delete expired refresh tokens").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}
