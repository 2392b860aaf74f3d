// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 tokenward Contributors

// Package xdg provides XDG Base Directory paths for tokenward.
package xdg

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "tokenward"

// ConfigFileName is the name of the config file looked up in ConfigDir.
const ConfigFileName = "config.yaml"

// ConfigDir returns the XDG config directory for tokenward.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() (string, error) {
	return dir("XDG_CONFIG_HOME", ".config")
}

// KeysDir returns the directory keygen writes key material to by default.
func KeysDir() (string, error) {
	base, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "keys"), nil
}

// DefaultConfigFile returns the config file in ConfigDir if it exists, or ""
// when there is none.
func DefaultConfigFile() (string, error) {
	base, err := ConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(base, ConfigFileName)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", oops.Code("XDG_STAT_FAILED").With("path", path).Wrap(err)
	}
	return path, nil
}

// EnsureDir creates a directory and all parent directories if they don't exist.
// Directories are created with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return oops.Code("XDG_MKDIR_FAILED").With("path", path).Wrap(err)
	}
	return nil
}

func dir(envVar, homeFallback string) (string, error) {
	base := os.Getenv(envVar)
	if base == "" {
		home := os.Getenv("HOME")
		if home == "" {
			return "", oops.Code("XDG_NO_HOME").Errorf("neither %s nor HOME is set", envVar)
		}
		base = filepath.Join(home, homeFallback)
	}
	return filepath.Join(base, appName), nil
}
