// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 tokenward Contributors

package auth

import (
	"context"
	"log/slog"
)

// ResetNotifier delivers a raw password-reset token to its owner, typically by email.
type ResetNotifier interface {
	NotifyPasswordReset(ctx context.Context, user *User, token *IssuedResetToken) error
}

// ResetNotifierFunc adapts a function to ResetNotifier.
type ResetNotifierFunc func(ctx context.Context, user *User, token *IssuedResetToken) error

// NotifyPasswordReset implements ResetNotifier.
func (f ResetNotifierFunc) NotifyPasswordReset(ctx context.Context, user *User, token *IssuedResetToken) error {
	return f(ctx, user, token)
}

// LogResetNotifier records that a reset was requested without delivering
// anything. The token itself is never logged.
type LogResetNotifier struct {
	Logger *slog.Logger
}

// NotifyPasswordReset implements ResetNotifier.
func (n LogResetNotifier) NotifyPasswordReset(ctx context.Context, user *User, token *IssuedResetToken) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "password reset requested",
		"user_id", user.ID.String(),
		"reset_id", token.ID.String(),
		"expires_at", token.ExpiresAt)
	return nil
}
