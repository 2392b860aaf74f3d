// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 tokenward Contributors

package memory

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/tokenward/tokenward/internal/auth"
)

// SaveRefreshToken implements auth.RefreshTokenRepository.
func (s *Store) SaveRefreshToken(_ context.Context, token *auth.StoredRefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.refresh[token.TokenHash]; ok {
		return oops.Code("REFRESH_TOKEN_CONFLICT").
			With("user_id", token.UserID.String()).
			Wrap(auth.ErrConflict)
	}
	s.refresh[token.TokenHash] = copyRefresh(token)
	return nil
}

// FindRefreshToken implements auth.RefreshTokenRepository.
func (s *Store) FindRefreshToken(_ context.Context, tokenHash string) (*auth.StoredRefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.refresh[tokenHash]
	if !ok {
		return nil, oops.Code("REFRESH_TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return copyRefresh(t), nil
}

// UpdateLastUsed implements auth.RefreshTokenRepository.
func (s *Store) UpdateLastUsed(_ context.Context, tokenHash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.refresh[tokenHash]
	if !ok {
		return oops.Code("REFRESH_TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	t.LastUsedAt = &at
	return nil
}

// RevokeRefreshToken implements auth.RefreshTokenRepository.
func (s *Store) RevokeRefreshToken(_ context.Context, tokenHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.refresh[tokenHash]; !ok {
		return false, nil
	}
	delete(s.refresh, tokenHash)
	return true, nil
}

// RevokeAllUserTokens implements auth.RefreshTokenRepository.
func (s *Store) RevokeAllUserTokens(_ context.Context, userID ulid.ULID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for hash, t := range s.refresh {
		if t.UserID == userID {
			delete(s.refresh, hash)
			n++
		}
	}
	return n, nil
}

// DeleteExpiredRefreshTokens implements auth.RefreshTokenRepository.
func (s *Store) DeleteExpiredRefreshTokens(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for hash, t := range s.refresh {
		if !t.ExpiresAt.After(before) {
			delete(s.refresh, hash)
			n++
		}
	}
	return n, nil
}

// SavePasswordResetToken implements auth.PasswordResetRepository.
func (s *Store) SavePasswordResetToken(_ context.Context, userID ulid.ULID, tokenHash string, expiresAt time.Time) (ulid.ULID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.resets {
		if r.TokenHash == tokenHash {
			return ulid.ULID{}, oops.Code("RESET_TOKEN_CONFLICT").
				With("user_id", userID.String()).
				Wrap(auth.ErrConflict)
		}
	}

	id := ulid.Make()
	s.resets[id] = &auth.PasswordResetToken{
		ID:        id,
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: s.now(),
	}
	return id, nil
}

// FindPasswordResetToken implements auth.PasswordResetRepository.
func (s *Store) FindPasswordResetToken(_ context.Context, tokenHash string, now time.Time) (*auth.PasswordResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.resets {
		if r.TokenHash == tokenHash && r.IsUsableAt(now) {
			return copyReset(r), nil
		}
	}
	return nil, oops.Code("RESET_TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
}

// MarkPasswordResetTokenAsUsed implements auth.PasswordResetRepository.
func (s *Store) MarkPasswordResetTokenAsUsed(_ context.Context, id ulid.ULID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.resets[id]
	if !ok || r.UsedAt != nil {
		return oops.Code("RESET_TOKEN_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	r.UsedAt = &at
	return nil
}

// DeletePasswordResetTokensOfUser implements auth.PasswordResetRepository.
func (s *Store) DeletePasswordResetTokensOfUser(_ context.Context, userID ulid.ULID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, r := range s.resets {
		if r.UserID == userID {
			delete(s.resets, id)
		}
	}
	return nil
}

// DeleteExpiredPasswordResetTokens implements auth.PasswordResetRepository.
func (s *Store) DeleteExpiredPasswordResetTokens(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, r := range s.resets {
		if !r.ExpiresAt.After(before) || (r.UsedAt != nil && !r.UsedAt.After(before)) {
			delete(s.resets, id)
			n++
		}
	}
	return n, nil
}

func copyRefresh(t *auth.StoredRefreshToken) *auth.StoredRefreshToken {
	c := *t
	if t.LastUsedAt != nil {
		at := *t.LastUsedAt
		c.LastUsedAt = &at
	}
	return &c
}

func copyReset(r *auth.PasswordResetToken) *auth.PasswordResetToken {
	c := *r
	if r.UsedAt != nil {
		at := *r.UsedAt
		c.UsedAt = &at
	}
	return &c
}

var _ auth.TokenRepository = (*Store)(nil)
