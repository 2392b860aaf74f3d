// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 tokenward Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/tokenward/tokenward/internal/config"
	"github.com/tokenward/tokenward/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the tokenward CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokenward",
		Short: "tokenward - access, refresh and password-reset token service",
		Long: `tokenward issues short-lived signed access tokens, rotates single-use
refresh tokens with reuse detection and manages password-reset tokens.

Configuration is read from the --config YAML file (default
$XDG_CONFIG_HOME/tokenward/config.yaml when present), then TOKENWARD_*
environment variables (TOKENWARD_TOKENS__ACCESS_TTL=5m), then flags.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewKeygenCmd())
	cmd.AddCommand(NewSchemaCmd())
	cmd.AddCommand(NewTokenCmd())

	return cmd
}

// loadConfig loads configuration for cmd from --config or, when unset, the
// config file in the XDG config directory.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configFile
	if path == "" {
		found, err := xdg.DefaultConfigFile()
		if err != nil {
			return nil, err
		}
		path = found
	}
	return config.Load(path, cmd.Flags())
}
