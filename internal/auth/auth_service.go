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
)

// dummyPasswordHash is used when a user doesn't exist to prevent timing attacks.
// This is NOT a real credential - it's a fake hash that will never match any password.
//
//nolint:gosec // G101: intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// AuthConfig holds the account policies of an AuthService.
type AuthConfig struct {
	// SingleSession revokes every existing refresh token of a user on login.
	SingleSession bool

	// Lockout locks an account after repeated login failures.
	Lockout LockoutPolicy
}

// DefaultAuthConfig returns single-session login with the default lockout policy.
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{SingleSession: true, Lockout: DefaultLockoutPolicy()}
}

// AuthService implements the account flows on top of TokenService and
// ResetTokenService.
type AuthService struct {
	users    UserRepository
	hasher   PasswordHasher
	tokens   *TokenService
	resets   *ResetTokenService
	notifier ResetNotifier
	cfg      AuthConfig
	clock    func() time.Time
	logger   *slog.Logger
}

// NewAuthService creates an AuthService.
func NewAuthService(
	users UserRepository,
	hasher PasswordHasher,
	tokens *TokenService,
	resets *ResetTokenService,
	notifier ResetNotifier,
	cfg AuthConfig,
	opts ...Option,
) (*AuthService, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("token service is required")
	}
	if resets == nil {
		return nil, oops.Errorf("reset token service is required")
	}
	if notifier == nil {
		return nil, oops.Errorf("reset notifier is required")
	}

	o := newOptions(opts)
	return &AuthService{
		users:    users,
		hasher:   hasher,
		tokens:   tokens,
		resets:   resets,
		notifier: notifier,
		cfg:      cfg,
		clock:    o.clock,
		logger:   o.logger,
	}, nil
}

// Register creates a new user account.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*User, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(username, email, hash, s.clock())
	if err != nil {
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, oops.Code(CodeConflict).
				With("operation", "create user").
				Wrap(ErrConflict)
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String())
	return user, nil
}

// Login authenticates a user and issues a token pair.
// Unknown users still pay for a password verification so response time does
// not reveal which usernames exist.
func (s *AuthService) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	now := s.clock()

	user, lookupErr := s.users.GetByUsername(ctx, username)
	targetHash := dummyPasswordHash
	switch {
	case lookupErr == nil:
		targetHash = user.PasswordHash
	case errors.Is(lookupErr, ErrNotFound):
		user = nil
	default:
		LoginAttempts.WithLabelValues(OutcomeError).Inc()
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get user by username").
			Wrap(lookupErr)
	}

	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil && user != nil {
		LoginAttempts.WithLabelValues(OutcomeError).Inc()
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID.String()).
			Wrap(verifyErr)
	}

	if user == nil || !valid {
		if user != nil {
			user.RecordFailure(s.cfg.Lockout, now)
			if err := s.recordLoginResult(ctx, user); err != nil {
				s.logger.WarnContext(ctx, "failed to record login failure",
					"user_id", user.ID.String(), "error", err)
			}
		}
		LoginAttempts.WithLabelValues(OutcomeRejected).Inc()
		return nil, invalidCredentials()
	}

	// Lockout is checked after verification to keep timing uniform.
	if user.IsLockedAt(now) {
		LoginAttempts.WithLabelValues(OutcomeLocked).Inc()
		return nil, oops.Code(CodeAccountLocked).
			With("locked_until", *user.LockedUntil).
			Wrap(ErrAccountLocked)
	}

	user.RecordSuccess(now)
	if err := s.recordLoginResult(ctx, user); err != nil {
		s.logger.WarnContext(ctx, "failed to record login success",
			"user_id", user.ID.String(), "error", err)
	}
	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgradePasswordHash(ctx, user, password)
	}

	if s.cfg.SingleSession {
		if _, err := s.tokens.RevokeAllForUser(ctx, user.ID); err != nil {
			s.logger.WarnContext(ctx, "failed to revoke previous sessions",
				"user_id", user.ID.String(), "error", err)
		}
	}

	pair, err := s.tokens.GenerateTokens(ctx, user.ID, user.Email)
	if err != nil {
		LoginAttempts.WithLabelValues(OutcomeError).Inc()
		return nil, err
	}

	LoginAttempts.WithLabelValues(OutcomeSuccess).Inc()
	return pair, nil
}

func (s *AuthService) recordLoginResult(ctx context.Context, user *User) error {
	return s.users.RecordLoginResult(ctx, user.ID, user.FailedAttempts, user.LockedUntil, user.UpdatedAt) //nolint:wrapcheck // logged by the caller
}

// upgradePasswordHash rehashes with the current parameters. The write is
// skipped if the stored hash changed after it was read.
func (s *AuthService) upgradePasswordHash(ctx context.Context, user *User, password string) {
	upgraded, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to upgrade password hash",
			"user_id", user.ID.String(), "error", err)
		return
	}
	replaced, err := s.users.UpgradePasswordHash(ctx, user.ID, user.PasswordHash, upgraded)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to upgrade password hash",
			"user_id", user.ID.String(), "error", err)
		return
	}
	if !replaced {
		s.logger.DebugContext(ctx, "password changed during login, hash upgrade skipped",
			"user_id", user.ID.String())
	}
}

// Refresh rotates a refresh token into a new pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	return s.tokens.ValidateAndRefresh(ctx, refreshToken)
}

// Logout revokes a single refresh token. Unknown tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.tokens.RevokeRefreshToken(ctx, refreshToken)
}

// LogoutAll revokes every refresh token of the user.
func (s *AuthService) LogoutAll(ctx context.Context, userID ulid.ULID) (int64, error) {
	return s.tokens.RevokeAllForUser(ctx, userID)
}

// Authenticate validates an access token.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*AccessClaims, error) {
	return s.tokens.ValidateAccessToken(ctx, accessToken)
}

// RequestPasswordReset issues a reset token for the account with the given
// email and hands it to the notifier. Unknown emails succeed silently.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	issued, err := s.resets.Issue(ctx, user.ID)
	if err != nil {
		return err
	}

	if err := s.notifier.NotifyPasswordReset(ctx, user, issued); err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "notify").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return nil
}

// ResetPassword consumes a reset token and sets a new password. All refresh
// tokens and remaining reset tokens of the user are voided.
func (s *AuthService) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	userID, err := s.resets.Consume(ctx, resetToken)
	if err != nil {
		return err
	}

	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, ErrNotFound) {
			return invalidToken()
		}
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "update password").
			With("user_id", userID.String()).
			Wrap(err)
	}

	if _, err := s.tokens.RevokeAllForUser(ctx, userID); err != nil {
		return err
	}

	if err := s.resets.InvalidateAllForUser(ctx, userID); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate reset tokens",
			"user_id", userID.String(), "error", err)
	}

	s.logger.InfoContext(ctx, "password reset", "user_id", userID.String())
	return nil
}

// ChangePassword replaces the password of a signed-in user after checking
// the current one. Every refresh token of the user is revoked.
func (s *AuthService) ChangePassword(ctx context.Context, userID ulid.ULID, currentPassword, newPassword string) error {
	user, err := s.verifyUserPassword(ctx, userID, currentPassword)
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "update password").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	if _, err := s.tokens.RevokeAllForUser(ctx, user.ID); err != nil {
		return err
	}
	return nil
}

// DeleteAccount voids every token of the user and deletes the account.
func (s *AuthService) DeleteAccount(ctx context.Context, userID ulid.ULID, password string) error {
	user, err := s.verifyUserPassword(ctx, userID, password)
	if err != nil {
		return err
	}

	if _, err := s.tokens.RevokeAllForUser(ctx, user.ID); err != nil {
		return err
	}
	if err := s.resets.InvalidateAllForUser(ctx, user.ID); err != nil {
		return err
	}

	if err := s.users.Delete(ctx, user.ID); err != nil {
		return oops.Code("AUTH_DELETE_ACCOUNT_FAILED").
			With("operation", "delete user").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "account deleted", "user_id", user.ID.String())
	return nil
}

func (s *AuthService) verifyUserPassword(ctx context.Context, userID ulid.ULID, password string) (*User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, invalidCredentials()
		}
		return nil, oops.Code("AUTH_LOOKUP_FAILED").
			With("operation", "get user").
			With("user_id", userID.String()).
			Wrap(err)
	}

	valid, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, oops.Code("AUTH_LOOKUP_FAILED").
			With("operation", "verify password").
			With("user_id", userID.String()).
			Wrap(err)
	}
	if !valid {
		return nil, invalidCredentials()
	}
	return user, nil
}
