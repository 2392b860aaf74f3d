// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 tokenward Contributors

package errutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorCode asserts that err is an oops error with the given code.
func AssertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T", err)
	assert.Equal(t, code, oopsErr.Code())
}

// AssertErrorContext asserts that err is an oops error with the given context key/value.
func AssertErrorContext(t *testing.T, err error, key string, value any) {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T", err)
	ctx := oopsErr.Context()
	assert.Contains(t, ctx, key)
	assert.Equal(t, value, ctx[key])
}

// AssertNoSecret asserts that none of secrets appears in the message or the
// oops context of err.
func AssertNoSecret(t *testing.T, err error, secrets ...string) {
	t.Helper()
	require.Error(t, err)

	surfaces := []string{err.Error()}
	if oopsErr, ok := oops.AsOops(err); ok {
		for k, v := range oopsErr.Context() {
			surfaces = append(surfaces, k+"="+fmt.Sprint(v))
		}
	}
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		for _, s := range surfaces {
			assert.False(t, strings.Contains(s, secret), "error exposes a secret: %q", s)
		}
	}
}
