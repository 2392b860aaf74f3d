// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 tokenward Contributors

// Package auth implements the credential lifecycle of tokenward.
//
// # Tokens
//
// Access tokens are short-lived EdDSA-signed JWTs produced by a JWTIssuer and
// checked by anything holding the public key (AccessTokenVerifier). Refresh
// tokens are opaque random strings; only their HMAC digest is ever stored.
// Password-reset tokens follow the same hash-only rule and are single use.
//
// # Services
//
//   - TokenService - issue, rotate, validate and revoke token pairs
//   - ResetTokenService - issue and consume password-reset tokens
//   - AuthService - register, login, refresh, logout and password flows
//
// Services are created with New*Service constructors that validate their
// dependencies. Every token rejection surfaces as KindInvalidToken and every
// credential rejection as KindInvalidCredentials; the internal reason is
// only visible in logs and metrics.
package auth
