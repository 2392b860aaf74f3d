// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 tokenward Contributors

package main

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/tokenward/tokenward/internal/auth"
	"github.com/tokenward/tokenward/internal/config"
)

// verifiedToken is the output of token verify.
type verifiedToken struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	TokenID   string    `json:"token_id,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewTokenCmd creates the token command group.
func NewTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Inspect tokens",
	}

	verify := &cobra.Command{
		Use:   "verify TOKEN",
		Short: "Verify an access token with the public key and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runTokenVerify(cmd, cfg.Tokens, args[0])
		},
	}
	d := config.Default()
	verify.Flags().String("verify-key", "", "Ed25519 verification key PEM file")
	verify.Flags().String("issuer", d.Tokens.Issuer, "expected issuer")
	verify.Flags().String("audience", d.Tokens.Audience, "expected audience")
	cmd.AddCommand(verify)

	return cmd
}

func runTokenVerify(cmd *cobra.Command, cfg config.TokensConfig, token string) error {
	if cfg.VerifyKeyFile == "" {
		return oops.Code("CONFIG_INVALID").Errorf("tokens.verify_key_file is required")
	}
	pub, err := auth.LoadVerifyKey(cfg.VerifyKeyFile)
	if err != nil {
		return err
	}
	verifier, err := auth.NewAccessTokenVerifier(pub, cfg.JWT(), nil)
	if err != nil {
		return err
	}
	validator, err := auth.NewAccessTokenValidator(verifier, nil)
	if err != nil {
		return err
	}

	claims, err := validator.ValidateAccessToken(cmd.Context(), strings.TrimSpace(token))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(verifiedToken{
		UserID:    claims.UserID.String(),
		Email:     claims.Email,
		TokenID:   claims.TokenID,
		IssuedAt:  claims.IssuedAt.UTC(),
		ExpiresAt: claims.ExpiresAt.UTC(),
	})
}
