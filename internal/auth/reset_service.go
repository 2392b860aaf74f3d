// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 tokenward Contributors

package auth

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Reset token configuration.
const (
	ResetTokenBytes      = 32 // 32 bytes = 64 hex chars
	DefaultResetTokenTTL = time.Hour
)

// PasswordResetToken is the persisted form of a password-reset token.
// UsedAt is set exactly once.
type PasswordResetToken struct {
	ID        ulid.ULID
	UserID    ulid.ULID
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// IsUsableAt reports whether the token can still be consumed at now.
func (r *PasswordResetToken) IsUsableAt(now time.Time) bool {
	return r.UsedAt == nil && r.ExpiresAt.After(now)
}

// IssuedResetToken is a newly issued reset token. Token is delivered to the
// user once and never stored.
type IssuedResetToken struct {
	ID        ulid.ULID
	Token     string
	UserID    ulid.ULID
	ExpiresAt time.Time
}

// ResetTokenService manages the password-reset token lifecycle:
// Issued -> Used, or Issued -> Expired.
type ResetTokenService struct {
	resets PasswordResetRepository
	hasher TokenHasher
	ttl    time.Duration
	clock  func() time.Time
	logger *slog.Logger
}

// NewResetTokenService creates a ResetTokenService. A zero ttl selects
// DefaultResetTokenTTL.
func NewResetTokenService(resets PasswordResetRepository, hasher TokenHasher, ttl time.Duration, opts ...Option) (*ResetTokenService, error) {
	if resets == nil {
		return nil, oops.Errorf("reset token repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("token hasher is required")
	}
	if ttl == 0 {
		ttl = DefaultResetTokenTTL
	}
	if ttl < 0 {
		return nil, oops.Errorf("reset token ttl must be positive")
	}

	o := newOptions(opts)
	return &ResetTokenService{
		resets: resets,
		hasher: hasher,
		ttl:    ttl,
		clock:  o.clock,
		logger: o.logger,
	}, nil
}

// Issue creates a reset token for the user.
func (s *ResetTokenService) Issue(ctx context.Context, userID ulid.ULID) (*IssuedResetToken, error) {
	token, err := randomToken(ResetTokenBytes, hex.EncodeToString)
	if err != nil {
		return nil, oops.Code("RESET_TOKEN_GENERATE_FAILED").Wrap(err)
	}

	expiresAt := s.clock().Add(s.ttl)
	id, err := s.resets.SavePasswordResetToken(ctx, userID, s.hasher.Hash(token), expiresAt)
	if err != nil {
		return nil, oops.Code("RESET_ISSUE_FAILED").
			With("operation", "save reset token").
			With("user_id", userID.String()).
			Wrap(err)
	}

	TokensIssued.WithLabelValues("reset").Inc()
	ResetTokenEvents.WithLabelValues("issued").Inc()

	return &IssuedResetToken{ID: id, Token: token, UserID: userID, ExpiresAt: expiresAt}, nil
}

// Validate returns the owner of a usable reset token without consuming it.
func (s *ResetTokenService) Validate(ctx context.Context, rawToken string) (ulid.ULID, error) {
	reset, err := s.find(ctx, rawToken, "validate")
	if err != nil {
		return ulid.ULID{}, err
	}
	return reset.UserID, nil
}

// Consume marks a reset token as used and returns its owner. A token can be
// consumed once; concurrent consumers see exactly one success.
func (s *ResetTokenService) Consume(ctx context.Context, rawToken string) (ulid.ULID, error) {
	reset, err := s.find(ctx, rawToken, "consume")
	if err != nil {
		return ulid.ULID{}, err
	}

	if err := s.resets.MarkPasswordResetTokenAsUsed(ctx, reset.ID, s.clock()); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ulid.ULID{}, s.reject(ctx, "consume", "already_used")
		}
		return ulid.ULID{}, oops.Code("RESET_CONSUME_FAILED").
			With("operation", "mark reset token used").
			With("user_id", reset.UserID.String()).
			Wrap(err)
	}

	ResetTokenEvents.WithLabelValues("consumed").Inc()
	return reset.UserID, nil
}

func (s *ResetTokenService) find(ctx context.Context, rawToken, op string) (*PasswordResetToken, error) {
	if rawToken == "" {
		return nil, s.reject(ctx, op, "empty")
	}
	reset, err := s.resets.FindPasswordResetToken(ctx, s.hasher.Hash(rawToken), s.clock())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, s.reject(ctx, op, "not_found")
		}
		return nil, oops.Code("RESET_LOOKUP_FAILED").
			With("operation", "find reset token").
			Wrap(err)
	}
	return reset, nil
}

func (s *ResetTokenService) reject(ctx context.Context, op, reason string) error {
	ResetTokenEvents.WithLabelValues("rejected").Inc()
	s.logger.DebugContext(ctx, "reset token rejected", "operation", op, "reason", reason)
	return invalidToken()
}

// InvalidateAllForUser deletes every reset token of the user.
func (s *ResetTokenService) InvalidateAllForUser(ctx context.Context, userID ulid.ULID) error {
	if err := s.resets.DeletePasswordResetTokensOfUser(ctx, userID); err != nil {
		return oops.Code("RESET_INVALIDATE_FAILED").
			With("operation", "delete reset tokens of user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}

// PurgeExpired deletes reset tokens that are expired or used.
func (s *ResetTokenService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.resets.DeleteExpiredPasswordResetTokens(ctx, s.clock())
	if err != nil {
		return 0, oops.Code("RESET_PURGE_FAILED").
			With("operation", "delete expired reset tokens").
			Wrap(err)
	}
	return n, nil
}
