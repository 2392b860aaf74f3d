// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 tokenward Contributors

package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenward/tokenward/pkg/errutil"
)

type fakeMigrator struct {
	version  uint
	dirty    bool
	applied  []uint
	pending  []uint
	upErr    error
	calls    []string
	forced   int
	closed   bool
	closeErr error
}

func (f *fakeMigrator) Up() error {
	f.calls = append(f.calls, "up")
	if f.upErr != nil {
		return f.upErr
	}
	f.applied = append(f.applied, f.pending...)
	if n := len(f.applied); n > 0 {
		f.version = f.applied[n-1]
	}
	f.pending = nil
	return nil
}

func (f *fakeMigrator) Down() error {
	f.calls = append(f.calls, "down")
	f.pending = append(f.applied, f.pending...)
	f.applied = nil
	f.version = 0
	return nil
}

func (f *fakeMigrator) Version() (uint, bool, error) { return f.version, f.dirty, nil }

func (f *fakeMigrator) Force(version int) error {
	f.calls = append(f.calls, "force")
	f.forced = version
	f.dirty = false
	return nil
}

func (f *fakeMigrator) PendingMigrations() ([]uint, error) { return f.pending, nil }
func (f *fakeMigrator) AppliedMigrations() ([]uint, error) { return f.applied, nil }

func (f *fakeMigrator) Close() error {
	f.closed = true
	return f.closeErr
}

// useMigrator routes the migrate commands to m and records the URL used.
func useMigrator(t *testing.T, m *fakeMigrator) *string {
	t.Helper()
	var gotURL string
	orig := newMigrator
	newMigrator = func(url string) (Migrator, error) {
		gotURL = url
		return m, nil
	}
	t.Cleanup(func() { newMigrator = orig })
	return &gotURL
}

const testDatabaseURL = "postgres://tokenward@localhost:5432/tokenward"

func TestMigrate_Up(t *testing.T) {
	m := &fakeMigrator{pending: []uint{1, 2, 3}}
	url := useMigrator(t, m)

	out, err := execute(t, "migrate", "up", "--database-url", testDatabaseURL)
	require.NoError(t, err)
	assert.Equal(t, testDatabaseURL, *url)
	assert.Equal(t, []string{"up"}, m.calls)
	assert.True(t, m.closed)
	assert.Contains(t, out, "version 3")
}

func TestMigrate_BareCommandRunsUp(t *testing.T) {
	m := &fakeMigrator{pending: []uint{1}}
	useMigrator(t, m)

	_, err := execute(t, "migrate", "--database-url", testDatabaseURL)
	require.NoError(t, err)
	assert.Equal(t, []string{"up"}, m.calls)
}

func TestMigrate_UpFailure(t *testing.T) {
	m := &fakeMigrator{upErr: errors.New("boom")}
	useMigrator(t, m)

	_, err := execute(t, "migrate", "up", "--database-url", testDatabaseURL)
	require.Error(t, err)
	assert.True(t, m.closed, "migrator is closed on failure")
}

func TestMigrate_UsesEnvironmentURL(t *testing.T) {
	m := &fakeMigrator{}
	url := useMigrator(t, m)
	t.Setenv("TOKENWARD_DATABASE__URL", testDatabaseURL)

	_, err := execute(t, "migrate", "status")
	require.NoError(t, err)
	assert.Equal(t, testDatabaseURL, *url)
}

func TestMigrate_RequiresURL(t *testing.T) {
	m := &fakeMigrator{}
	useMigrator(t, m)

	_, err := execute(t, "migrate", "up")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	assert.Empty(t, m.calls)
}

func TestMigrate_Status(t *testing.T) {
	m := &fakeMigrator{version: 1, applied: []uint{1}, pending: []uint{2, 3}}
	useMigrator(t, m)

	out, err := execute(t, "migrate", "status", "--database-url", testDatabaseURL)
	require.NoError(t, err)
	assert.Contains(t, out, "Schema version: 1 (clean)")
	assert.Contains(t, out, "Applied: 1")
	assert.Contains(t, out, "000001_users")
	assert.Contains(t, out, "Pending: 2")
	assert.Contains(t, out, "000002_refresh_tokens")
	assert.Contains(t, out, "000003_password_reset_tokens")
}

func TestMigrate_StatusDirty(t *testing.T) {
	m := &fakeMigrator{version: 2, dirty: true, applied: []uint{1, 2}}
	useMigrator(t, m)

	out, err := execute(t, "migrate", "status", "--database-url", testDatabaseURL)
	require.NoError(t, err)
	assert.Contains(t, out, "DIRTY")
}

func TestMigrate_DownRequiresConfirmation(t *testing.T) {
	m := &fakeMigrator{applied: []uint{1, 2, 3}, version: 3}
	useMigrator(t, m)

	_, err := execute(t, "migrate", "down", "--database-url", testDatabaseURL)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIRMATION_REQUIRED")
	assert.Empty(t, m.calls)

	out, err := execute(t, "migrate", "down", "--yes", "--database-url", testDatabaseURL)
	require.NoError(t, err)
	assert.Equal(t, []string{"down"}, m.calls)
	assert.Contains(t, out, "rolled back")
}

func TestMigrate_Force(t *testing.T) {
	m := &fakeMigrator{version: 2, dirty: true}
	useMigrator(t, m)

	out, err := execute(t, "migrate", "force", "1", "--database-url", testDatabaseURL)
	require.NoError(t, err)
	assert.Equal(t, 1, m.forced)
	assert.False(t, m.dirty)
	assert.Contains(t, out, "Forced schema version to 1")
}

func TestParseForceVersion(t *testing.T) {
	tests := []struct {
		arg     string
		want    int
		wantErr bool
	}{
		{arg: "0", want: 0},
		{arg: "3", want: 3},
		{arg: "-1", wantErr: true},
		{arg: "two", wantErr: true},
		{arg: "", wantErr: true},
		{arg: "1.5", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			got, err := parseForceVersion(tt.arg)
			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, "INVALID_VERSION")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
