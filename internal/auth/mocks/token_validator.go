// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 tokenward Contributors

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/tokenward/tokenward/internal/auth"
)

// MockTokenValidator is a mock of auth.TokenValidator.
type MockTokenValidator struct {
	mock.Mock
}

// NewMockTokenValidator creates a MockTokenValidator that asserts its
// expectations when the test ends.
func NewMockTokenValidator(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockTokenValidator {
	m := &MockTokenValidator{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// ValidateAccessToken implements auth.TokenValidator.
func (m *MockTokenValidator) ValidateAccessToken(ctx context.Context, token string) (*auth.AccessClaims, error) {
	args := m.Called(ctx, token)
	if v := args.Get(0); v != nil {
		return v.(*auth.AccessClaims), args.Error(1)
	}
	return nil, args.Error(1)
}

var _ auth.TokenValidator = (*MockTokenValidator)(nil)
