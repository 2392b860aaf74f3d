// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 tokenward Contributors

// Package errutil holds helpers for logging and asserting oops errors.
package errutil

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// UnknownCode is returned by CodeOf for errors without an oops code.
const UnknownCode = "UNKNOWN"

// CodeOf returns the oops code of err, or UnknownCode.
func CodeOf(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return UnknownCode
	}
	code, ok := oopsErr.Code().(string)
	if !ok || code == "" {
		return UnknownCode
	}
	return code
}

// Attrs returns the slog attributes describing err: the message, and for
// oops errors the code and context.
func Attrs(err error) []any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return []any{"error", err}
	}
	attrs := []any{"error", oopsErr.Error()}
	if code := oopsErr.Code(); code != nil {
		attrs = append(attrs, "code", code)
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		attrs = append(attrs, "context", ctx)
	}
	return attrs
}

// LogError logs err at error level with its structured attributes. ctx
// carries the trace the record is attached to.
func LogError(ctx context.Context, logger *slog.Logger, msg string, err error) {
	logger.ErrorContext(ctx, msg, Attrs(err)...)
}
