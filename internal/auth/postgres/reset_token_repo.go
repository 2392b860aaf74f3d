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
)

// SavePasswordResetToken stores a new reset token and returns its ID.
func (r *TokenRepository) SavePasswordResetToken(ctx context.Context, userID ulid.ULID, tokenHash string, expiresAt time.Time) (ulid.ULID, error) {
	id := ulid.Make()
	_, err := r.db.Exec(ctx, `
		INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
	`, id.String(), userID.String(), tokenHash, expiresAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ulid.ULID{}, oops.Code("RESET_TOKEN_CONFLICT").
				With("user_id", userID.String()).
				Wrap(auth.ErrConflict)
		}
		return ulid.ULID{}, oops.Code("RESET_TOKEN_SAVE_FAILED").
			With("operation", "insert password reset token").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return id, nil
}

// FindPasswordResetToken returns the unused, unexpired token for tokenHash.
func (r *TokenRepository) FindPasswordResetToken(ctx context.Context, tokenHash string, now time.Time) (*auth.PasswordResetToken, error) {
	var (
		idStr, userIDStr string
		t                auth.PasswordResetToken
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, token_hash, expires_at, used_at, created_at
		FROM password_reset_tokens
		WHERE token_hash = $1 AND used_at IS NULL AND expires_at > $2
	`, tokenHash, now).Scan(&idStr, &userIDStr, &t.TokenHash, &t.ExpiresAt, &t.UsedAt, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("RESET_TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("RESET_TOKEN_FIND_FAILED").
			With("operation", "select password reset token").
			Wrap(err)
	}

	if t.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("RESET_TOKEN_INVALID_ID").With("id", idStr).Wrap(err)
	}
	if t.UserID, err = ulid.Parse(userIDStr); err != nil {
		return nil, oops.Code("RESET_TOKEN_INVALID_USER").With("user_id", userIDStr).Wrap(err)
	}
	return &t, nil
}

// MarkPasswordResetTokenAsUsed sets used_at only if it is still NULL, so of
// two concurrent consumers exactly one succeeds.
func (r *TokenRepository) MarkPasswordResetTokenAsUsed(ctx context.Context, id ulid.ULID, at time.Time) error {
	result, err := r.db.Exec(ctx, `
		UPDATE password_reset_tokens SET used_at = $2 WHERE id = $1 AND used_at IS NULL
	`, id.String(), at)
	if err != nil {
		return oops.Code("RESET_TOKEN_MARK_FAILED").
			With("operation", "mark password reset token used").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("RESET_TOKEN_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeletePasswordResetTokensOfUser removes every reset token of a user.
func (r *TokenRepository) DeletePasswordResetTokensOfUser(ctx context.Context, userID ulid.ULID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM password_reset_tokens WHERE user_id = $1`, userID.String())
	if err != nil {
		return oops.Code("RESET_TOKEN_DELETE_FAILED").
			With("operation", "delete user password reset tokens").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}

// DeleteExpiredPasswordResetTokens removes tokens that expired or were used
// at or before the given time.
func (r *TokenRepository) DeleteExpiredPasswordResetTokens(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `
		DELETE FROM password_reset_tokens WHERE expires_at <= $1 OR used_at <= $1
	`, before)
	if err != nil {
		return 0, oops.Code("RESET_TOKEN_PURGE_FAILED").
			With("operation", "delete expired password reset tokens").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

var _ auth.TokenRepository = (*TokenRepository)(nil)
