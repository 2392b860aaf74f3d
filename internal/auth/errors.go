// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 tokenward Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// Error codes attached to the errors returned by the services.
const (
	CodeInvalidToken       = "AUTH_INVALID_TOKEN"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeConflict           = "AUTH_CONFLICT"
	CodeAccountLocked      = "AUTH_ACCOUNT_LOCKED"
)

// Sentinel errors. Use errors.Is or KindOf to classify.
var (
	// ErrNotFound is returned by repositories when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidToken is returned for any rejected access, refresh or reset token.
	ErrInvalidToken = errors.New("invalid token")

	// ErrInvalidCredentials is returned when a username/password pair is rejected.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrConflict is returned when a unique attribute is already taken.
	ErrConflict = errors.New("conflict")

	// ErrAccountLocked is returned when login is attempted on a locked account.
	ErrAccountLocked = errors.New("account locked")
)

// Kind classifies an error for callers that map errors onto a transport.
type Kind int

// Error kinds.
const (
	KindInternal Kind = iota
	KindInvalidToken
	KindInvalidCredentials
	KindConflict
	KindAccountLocked
)

func (k Kind) String() string {
	switch k {
	case KindInvalidToken:
		return "invalid_token"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindConflict:
		return "conflict"
	case KindAccountLocked:
		return "account_locked"
	default:
		return "internal"
	}
}

// KindOf returns the Kind of err. Unclassified errors are KindInternal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrInvalidToken):
		return KindInvalidToken
	case errors.Is(err, ErrInvalidCredentials):
		return KindInvalidCredentials
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrAccountLocked):
		return KindAccountLocked
	default:
		return KindInternal
	}
}

// invalidToken builds a fresh rejection that carries no detail about why the
// token was refused.
func invalidToken() error {
	return oops.Code(CodeInvalidToken).Wrap(ErrInvalidToken)
}

func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Wrap(ErrInvalidCredentials)
}
