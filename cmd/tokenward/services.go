// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 tokenward Contributors

package main

import (
	"crypto/ed25519"
	"log/slog"

	"github.com/samber/oops"

	"github.com/tokenward/tokenward/internal/auth"
	"github.com/tokenward/tokenward/internal/config"
)

// repositories are the storage backends of the services.
type repositories struct {
	users  auth.UserRepository
	tokens auth.TokenRepository
}

// services is the wired token lifecycle.
type services struct {
	auth      *auth.AuthService
	tokens    *auth.TokenService
	resets    *auth.ResetTokenService
	validator *auth.AccessTokenValidator
	sweeper   *auth.Sweeper
}

// loadKeys reads the configured key pair and checks that the halves match.
func loadKeys(cfg config.TokensConfig) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	priv, err := auth.LoadSigningKey(cfg.SigningKeyFile)
	if err != nil {
		return nil, nil, err
	}
	pub, err := auth.LoadVerifyKey(cfg.VerifyKeyFile)
	if err != nil {
		return nil, nil, err
	}
	if !pub.Equal(priv.Public()) {
		return nil, nil, oops.Code("KEY_MISMATCH").
			With("signing_key_file", cfg.SigningKeyFile).
			With("verify_key_file", cfg.VerifyKeyFile).
			Errorf("verify key is not the public half of the signing key")
	}
	return priv, pub, nil
}

func buildServices(cfg *config.Config, priv ed25519.PrivateKey, pub ed25519.PublicKey, repos repositories, logger *slog.Logger) (*services, error) {
	jwtCfg := cfg.Tokens.JWT()
	opts := []auth.Option{auth.WithLogger(logger)}

	issuer, err := auth.NewJWTIssuer(priv, jwtCfg, nil)
	if err != nil {
		return nil, err
	}
	// Calls arriving over gRPC are checked with the public key alone, the
	// same way a separate resource server would.
	verifier, err := auth.NewAccessTokenVerifier(pub, jwtCfg, nil)
	if err != nil {
		return nil, err
	}
	validator, err := auth.NewAccessTokenValidator(verifier, logger)
	if err != nil {
		return nil, err
	}
	generator, err := auth.NewOpaqueTokenGenerator(cfg.Tokens.RefreshTTL)
	if err != nil {
		return nil, err
	}
	hasher, err := auth.NewHMACTokenHasher([]byte(cfg.Tokens.RefreshSecret))
	if err != nil {
		return nil, err
	}

	tokens, err := auth.NewTokenService(issuer, generator, hasher, repos.tokens, repos.users, opts...)
	if err != nil {
		return nil, oops.With("operation", "create token service").Wrap(err)
	}
	resets, err := auth.NewResetTokenService(repos.tokens, hasher, cfg.Tokens.ResetTTL, opts...)
	if err != nil {
		return nil, oops.With("operation", "create reset token service").Wrap(err)
	}

	authCfg := auth.DefaultAuthConfig()
	authCfg.SingleSession = cfg.Tokens.SingleSession
	authSvc, err := auth.NewAuthService(repos.users, auth.NewArgon2idHasher(), tokens, resets,
		auth.LogResetNotifier{Logger: logger}, authCfg, opts...)
	if err != nil {
		return nil, oops.With("operation", "create auth service").Wrap(err)
	}

	sweeper, err := auth.NewSweeper(cfg.Sweeper.Interval, tokens, resets, opts...)
	if err != nil {
		return nil, oops.With("operation", "create sweeper").Wrap(err)
	}

	return &services{
		auth:      authSvc,
		tokens:    tokens,
		resets:    resets,
		validator: validator,
		sweeper:   sweeper,
	}, nil
}
