// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 tokenward Contributors

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/tokenward/tokenward/internal/auth"
)

// MockResetNotifier is a mock of auth.ResetNotifier.
type MockResetNotifier struct {
	mock.Mock
}

// NewMockResetNotifier creates a MockResetNotifier that asserts its
// expectations when the test ends.
func NewMockResetNotifier(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockResetNotifier {
	m := &MockResetNotifier{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// NotifyPasswordReset implements auth.ResetNotifier.
func (m *MockResetNotifier) NotifyPasswordReset(ctx context.Context, user *auth.User, token *auth.IssuedResetToken) error {
	return m.Called(ctx, user, token).Error(0)
}

var _ auth.ResetNotifier = (*MockResetNotifier)(nil)
