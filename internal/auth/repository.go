// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 tokenward Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// RefreshTokenRepository persists hashed refresh tokens.
type RefreshTokenRepository interface {
	// SaveRefreshToken stores a new refresh token record.
	SaveRefreshToken(ctx context.Context, token *StoredRefreshToken) error

	// FindRefreshToken returns the record for tokenHash, or ErrNotFound.
	// Expired records are returned; callers decide what to do with them.
	FindRefreshToken(ctx context.Context, tokenHash string) (*StoredRefreshToken, error)

	// UpdateLastUsed stamps the record's last use time.
	UpdateLastUsed(ctx context.Context, tokenHash string, at time.Time) error

	// RevokeRefreshToken deletes the record for tokenHash. It reports whether
	// this call removed it, so concurrent callers can tell which one won.
	// Deleting an absent record is not an error.
	RevokeRefreshToken(ctx context.Context, tokenHash string) (bool, error)

	// RevokeAllUserTokens deletes every refresh token of a user and returns
	// how many were removed.
	RevokeAllUserTokens(ctx context.Context, userID ulid.ULID) (int64, error)

	// DeleteExpiredRefreshTokens removes records that expired at or before
	// the given time and returns the count.
	DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error)
}

// PasswordResetRepository persists hashed password-reset tokens.
type PasswordResetRepository interface {
	// SavePasswordResetToken stores a new reset token and returns its ID.
	SavePasswordResetToken(ctx context.Context, userID ulid.ULID, tokenHash string, expiresAt time.Time) (ulid.ULID, error)

	// FindPasswordResetToken returns the token matching tokenHash only if it
	// is unused and expires after now. Anything else is ErrNotFound.
	FindPasswordResetToken(ctx context.Context, tokenHash string, now time.Time) (*PasswordResetToken, error)

	// MarkPasswordResetTokenAsUsed sets used_at if it is still unset.
	// Returns ErrNotFound if the token is missing or was already used.
	MarkPasswordResetTokenAsUsed(ctx context.Context, id ulid.ULID, at time.Time) error

	// DeletePasswordResetTokensOfUser removes every reset token of a user.
	DeletePasswordResetTokensOfUser(ctx context.Context, userID ulid.ULID) error

	// DeleteExpiredPasswordResetTokens removes tokens that expired or were
	// used at or before the given time and returns the count.
	DeleteExpiredPasswordResetTokens(ctx context.Context, before time.Time) (int64, error)
}

// TokenRepository is the full token storage contract.
type TokenRepository interface {
	RefreshTokenRepository
	PasswordResetRepository
}

// UserLookup resolves users by ID.
type UserLookup interface {
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)
}
