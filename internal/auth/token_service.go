// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 tokenward Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TokenPair is the pair of tokens handed to a client. Expiry values are
// milliseconds from issuance.
type TokenPair struct {
	AccessToken           string `json:"access_token"`
	RefreshToken          string `json:"refresh_token"`
	AccessTokenExpiresIn  int64  `json:"access_token_expires_in"`
	RefreshTokenExpiresIn int64  `json:"refresh_token_expires_in"`
}

// TokenService issues, rotates, validates and revokes token pairs.
// Hashing of refresh tokens never leaves this type.
type TokenService struct {
	issuer    AccessTokenIssuer
	generator RefreshTokenGenerator
	hasher    TokenHasher
	tokens    RefreshTokenRepository
	users     UserLookup
	validator *AccessTokenValidator
	clock     func() time.Time
	logger    *slog.Logger
}

// NewTokenService creates a TokenService.
func NewTokenService(
	issuer AccessTokenIssuer,
	generator RefreshTokenGenerator,
	hasher TokenHasher,
	tokens RefreshTokenRepository,
	users UserLookup,
	opts ...Option,
) (*TokenService, error) {
	if issuer == nil {
		return nil, oops.Errorf("access token issuer is required")
	}
	if generator == nil {
		return nil, oops.Errorf("refresh token generator is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("token hasher is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("token repository is required")
	}
	if users == nil {
		return nil, oops.Errorf("user lookup is required")
	}

	o := newOptions(opts)
	validator, err := NewAccessTokenValidator(issuer, o.logger)
	if err != nil {
		return nil, err
	}

	return &TokenService{
		issuer:    issuer,
		generator: generator,
		hasher:    hasher,
		tokens:    tokens,
		users:     users,
		validator: validator,
		clock:     o.clock,
		logger:    o.logger,
	}, nil
}

// GenerateTokens issues a new access token and refresh token for the user.
// It does not touch any token the user already holds.
func (s *TokenService) GenerateTokens(ctx context.Context, userID ulid.ULID, email string) (pair *TokenPair, err error) {
	ctx, span := tracer.Start(ctx, "TokenService.GenerateTokens",
		trace.WithAttributes(attribute.String("user.id", userID.String())))
	defer func() { endSpan(span, err) }()

	return s.generate(ctx, userID, email, s.clock())
}

func (s *TokenService) generate(ctx context.Context, userID ulid.ULID, email string, now time.Time) (*TokenPair, error) {
	access, err := s.issuer.IssueAccessToken(userID, email, now)
	if err != nil {
		return nil, oops.Code("TOKEN_GENERATE_FAILED").
			With("operation", "issue access token").
			With("user_id", userID.String()).
			Wrap(err)
	}

	raw, err := s.generator.Generate(userID, now)
	if err != nil {
		return nil, oops.Code("TOKEN_GENERATE_FAILED").
			With("operation", "generate refresh token").
			With("user_id", userID.String()).
			Wrap(err)
	}

	stored := &StoredRefreshToken{
		TokenHash: s.hasher.Hash(raw.Token),
		UserID:    userID,
		IssuedAt:  raw.IssuedAt,
		ExpiresAt: raw.ExpiresAt,
	}
	if err := s.tokens.SaveRefreshToken(ctx, stored); err != nil {
		return nil, oops.Code("TOKEN_GENERATE_FAILED").
			With("operation", "save refresh token").
			With("user_id", userID.String()).
			Wrap(err)
	}

	TokensIssued.WithLabelValues("access").Inc()
	TokensIssued.WithLabelValues("refresh").Inc()

	return &TokenPair{
		AccessToken:           access.Token,
		RefreshToken:          raw.Token,
		AccessTokenExpiresIn:  access.ExpiresAt.Sub(now).Milliseconds(),
		RefreshTokenExpiresIn: raw.ExpiresAt.Sub(now).Milliseconds(),
	}, nil
}

// ValidateAndRefresh rotates a refresh token. The presented token is deleted
// with a compare-and-delete before the replacement pair is issued, so a token
// can be redeemed at most once even under concurrent use.
func (s *TokenService) ValidateAndRefresh(ctx context.Context, rawRefreshToken string) (pair *TokenPair, err error) {
	ctx, span := tracer.Start(ctx, "TokenService.ValidateAndRefresh")
	defer func() { endSpan(span, err) }()

	if rawRefreshToken == "" {
		return nil, s.rejectRefresh(ctx, OutcomeNotFound, ulid.ULID{})
	}

	now := s.clock()
	hash := s.hasher.Hash(rawRefreshToken)

	stored, err := s.tokens.FindRefreshToken(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, s.rejectRefresh(ctx, OutcomeNotFound, ulid.ULID{})
		}
		RefreshRotations.WithLabelValues(OutcomeError).Inc()
		return nil, oops.Code("TOKEN_REFRESH_FAILED").
			With("operation", "find refresh token").
			Wrap(err)
	}

	if stored.IsExpiredAt(now) {
		if _, delErr := s.tokens.RevokeRefreshToken(ctx, hash); delErr != nil {
			s.logger.WarnContext(ctx, "failed to delete expired refresh token",
				"user_id", stored.UserID.String(), "error", delErr)
		}
		return nil, s.rejectRefresh(ctx, OutcomeExpired, stored.UserID)
	}

	user, err := s.users.GetByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, s.rejectRefresh(ctx, OutcomeUserMissing, stored.UserID)
		}
		RefreshRotations.WithLabelValues(OutcomeError).Inc()
		return nil, oops.Code("TOKEN_REFRESH_FAILED").
			With("operation", "get user").
			With("user_id", stored.UserID.String()).
			Wrap(err)
	}

	if err := s.tokens.UpdateLastUsed(ctx, hash, now); err != nil {
		s.logger.WarnContext(ctx, "failed to update refresh token last use",
			"user_id", user.ID.String(), "error", err)
	}

	removed, err := s.tokens.RevokeRefreshToken(ctx, hash)
	if err != nil {
		RefreshRotations.WithLabelValues(OutcomeError).Inc()
		return nil, oops.Code("TOKEN_REFRESH_FAILED").
			With("operation", "revoke refresh token").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	if !removed {
		s.logger.WarnContext(ctx, "refresh token redeemed concurrently", "user_id", user.ID.String())
		return nil, s.rejectRefresh(ctx, OutcomeReused, user.ID)
	}

	pair, err = s.generate(ctx, user.ID, user.Email, now)
	if err != nil {
		RefreshRotations.WithLabelValues(OutcomeError).Inc()
		return nil, err
	}

	RefreshRotations.WithLabelValues(OutcomeSuccess).Inc()
	return pair, nil
}

func (s *TokenService) rejectRefresh(ctx context.Context, outcome string, userID ulid.ULID) error {
	RefreshRotations.WithLabelValues(outcome).Inc()
	attrs := []any{"outcome", outcome}
	if userID != (ulid.ULID{}) {
		attrs = append(attrs, "user_id", userID.String())
	}
	s.logger.DebugContext(ctx, "refresh token rejected", attrs...)
	return invalidToken()
}

// ValidateAccessToken verifies an access token and returns its claims.
func (s *TokenService) ValidateAccessToken(ctx context.Context, token string) (*AccessClaims, error) {
	return s.validator.ValidateAccessToken(ctx, token)
}

// RevokeRefreshToken deletes a refresh token. Unknown tokens are ignored.
func (s *TokenService) RevokeRefreshToken(ctx context.Context, rawRefreshToken string) error {
	if rawRefreshToken == "" {
		return nil
	}
	if _, err := s.tokens.RevokeRefreshToken(ctx, s.hasher.Hash(rawRefreshToken)); err != nil {
		return oops.Code("TOKEN_REVOKE_FAILED").
			With("operation", "revoke refresh token").
			Wrap(err)
	}
	return nil
}

// RevokeAllForUser deletes every refresh token of the user.
func (s *TokenService) RevokeAllForUser(ctx context.Context, userID ulid.ULID) (int64, error) {
	n, err := s.tokens.RevokeAllUserTokens(ctx, userID)
	if err != nil {
		return 0, oops.Code("TOKEN_REVOKE_ALL_FAILED").
			With("operation", "revoke all user tokens").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return n, nil
}

// PurgeExpired deletes refresh tokens that have expired.
func (s *TokenService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.tokens.DeleteExpiredRefreshTokens(ctx, s.clock())
	if err != nil {
		return 0, oops.Code("TOKEN_PURGE_FAILED").
			With("operation", "delete expired refresh tokens").
			Wrap(err)
	}
	return n, nil
}
