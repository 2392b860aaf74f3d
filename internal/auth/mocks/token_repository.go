// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 tokenward Contributors

package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/tokenward/tokenward/internal/auth"
)

// MockTokenRepository is a mock of auth.TokenRepository.
type MockTokenRepository struct {
	mock.Mock
}

// NewMockTokenRepository creates a MockTokenRepository that asserts its
// expectations when the test ends.
func NewMockTokenRepository(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockTokenRepository {
	m := &MockTokenRepository{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// SaveRefreshToken implements auth.RefreshTokenRepository.
func (m *MockTokenRepository) SaveRefreshToken(ctx context.Context, token *auth.StoredRefreshToken) error {
	return m.Called(ctx, token).Error(0)
}

// FindRefreshToken implements auth.RefreshTokenRepository.
func (m *MockTokenRepository) FindRefreshToken(ctx context.Context, tokenHash string) (*auth.StoredRefreshToken, error) {
	args := m.Called(ctx, tokenHash)
	if v := args.Get(0); v != nil {
		return v.(*auth.StoredRefreshToken), args.Error(1)
	}
	return nil, args.Error(1)
}

// UpdateLastUsed implements auth.RefreshTokenRepository.
func (m *MockTokenRepository) UpdateLastUsed(ctx context.Context, tokenHash string, at time.Time) error {
	return m.Called(ctx, tokenHash, at).Error(0)
}

// RevokeRefreshToken implements auth.RefreshTokenRepository.
func (m *MockTokenRepository) RevokeRefreshToken(ctx context.Context, tokenHash string) (bool, error) {
	args := m.Called(ctx, tokenHash)
	return args.Bool(0), args.Error(1)
}

// RevokeAllUserTokens implements auth.RefreshTokenRepository.
func (m *MockTokenRepository) RevokeAllUserTokens(ctx context.Context, userID ulid.ULID) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

// DeleteExpiredRefreshTokens implements auth.RefreshTokenRepository.
func (m *MockTokenRepository) DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

// SavePasswordResetToken implements auth.PasswordResetRepository.
func (m *MockTokenRepository) SavePasswordResetToken(ctx context.Context, userID ulid.ULID, tokenHash string, expiresAt time.Time) (ulid.ULID, error) {
	args := m.Called(ctx, userID, tokenHash, expiresAt)
	return args.Get(0).(ulid.ULID), args.Error(1)
}

// FindPasswordResetToken implements auth.PasswordResetRepository.
func (m *MockTokenRepository) FindPasswordResetToken(ctx context.Context, tokenHash string, now time.Time) (*auth.PasswordResetToken, error) {
	args := m.Called(ctx, tokenHash, now)
	if v := args.Get(0); v != nil {
		return v.(*auth.PasswordResetToken), args.Error(1)
	}
	return nil, args.Error(1)
}

// MarkPasswordResetTokenAsUsed implements auth.PasswordResetRepository.
func (m *MockTokenRepository) MarkPasswordResetTokenAsUsed(ctx context.Context, id ulid.ULID, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

// DeletePasswordResetTokensOfUser implements auth.PasswordResetRepository.
func (m *MockTokenRepository) DeletePasswordResetTokensOfUser(ctx context.Context, userID ulid.ULID) error {
	return m.Called(ctx, userID).Error(0)
}

// DeleteExpiredPasswordResetTokens implements auth.PasswordResetRepository.
func (m *MockTokenRepository) DeleteExpiredPasswordResetTokens(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

var _ auth.TokenRepository = (*MockTokenRepository)(nil)
