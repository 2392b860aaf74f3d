// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 tokenward Contributors

package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Access token rejection reasons. They are recorded in logs and metrics only.
const (
	reasonUnverified   = "unverified"
	reasonWrongType    = "wrong_type"
	reasonBadSubject   = "bad_subject"
	reasonMissingEmail = "missing_email"
)

// AccessClaims is the identity extracted from a valid access token.
type AccessClaims struct {
	UserID    ulid.ULID
	Email     string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenValidator turns an access token into claims.
type TokenValidator interface {
	ValidateAccessToken(ctx context.Context, token string) (*AccessClaims, error)
}

// AccessTokenValidator validates access tokens with only a TokenVerifier.
// It backs TokenService.ValidateAccessToken and is usable on its own by
// services that hold nothing but the public key.
type AccessTokenValidator struct {
	verifier TokenVerifier
	logger   *slog.Logger
}

// NewAccessTokenValidator creates a validator. logger may be nil.
func NewAccessTokenValidator(verifier TokenVerifier, logger *slog.Logger) (*AccessTokenValidator, error) {
	if verifier == nil {
		return nil, oops.Errorf("token verifier is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessTokenValidator{verifier: verifier, logger: logger}, nil
}

// ValidateAccessToken implements TokenValidator. Every rejection is the same
// KindInvalidToken error.
func (v *AccessTokenValidator) ValidateAccessToken(ctx context.Context, token string) (*AccessClaims, error) {
	claims, ok := v.verifier.Verify(token)
	if !ok {
		return nil, v.reject(ctx, reasonUnverified)
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, v.reject(ctx, reasonWrongType)
	}
	if claims.Subject == "" {
		return nil, v.reject(ctx, reasonBadSubject)
	}
	userID, err := ulid.ParseStrict(claims.Subject)
	if err != nil || userID == (ulid.ULID{}) {
		return nil, v.reject(ctx, reasonBadSubject)
	}
	if claims.Email == "" {
		return nil, v.reject(ctx, reasonMissingEmail)
	}

	out := &AccessClaims{
		UserID:  userID,
		Email:   claims.Email,
		TokenID: claims.ID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

func (v *AccessTokenValidator) reject(ctx context.Context, reason string) error {
	AccessValidationFailures.WithLabelValues(reason).Inc()
	v.logger.DebugContext(ctx, "access token rejected", "reason", reason)
	return invalidToken()
}

var _ TokenValidator = (*AccessTokenValidator)(nil)
