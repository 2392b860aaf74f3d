// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 tokenward Contributors

package authrpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tokenward/tokenward/internal/auth"
	"github.com/tokenward/tokenward/pkg/errutil"
)

var errUnauthenticated = status.Error(codes.Unauthenticated, "unauthenticated")

// toStatus maps a service error onto a gRPC status. Messages are fixed per
// kind; internal failures are logged and never described to the caller.
func (s *Server) toStatus(ctx context.Context, method string, err error) error {
	switch auth.KindOf(err) {
	case auth.KindInvalidToken:
		return status.Error(codes.Unauthenticated, "invalid token")
	case auth.KindInvalidCredentials:
		return status.Error(codes.Unauthenticated, "invalid credentials")
	case auth.KindConflict:
		return status.Error(codes.AlreadyExists, "username or email already registered")
	case auth.KindAccountLocked:
		return status.Error(codes.PermissionDenied, "account locked")
	}

	if errors.Is(err, auth.ErrEmptyPassword) || validationCodes[errutil.CodeOf(err)] {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	errutil.LogError(ctx, s.logger.With("method", method), "auth rpc failed", err)
	return status.Error(codes.Internal, "internal error")
}

// validationCodes are rejections of caller input.
var validationCodes = map[string]bool{
	"USER_INVALID_USERNAME": true,
	"USER_INVALID_EMAIL":    true,
}
