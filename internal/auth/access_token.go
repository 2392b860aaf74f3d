// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 tokenward Contributors

package auth

import (
	"crypto/ed25519"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// TokenTypeAccess is the token_type claim carried by access tokens.
const TokenTypeAccess = "access"

// DefaultAccessTokenTTL is the access token lifetime when none is configured.
const DefaultAccessTokenTTL = 15 * time.Minute

// DefaultClockSkew is the leeway applied to exp, nbf and iat when none is
// configured. Expiry is exact by default.
const DefaultClockSkew time.Duration = 0

// TokenClaims are the claims carried by a signed access token.
// Subject holds the user ID and ID holds a unique token identifier.
type TokenClaims struct {
	Email     string `json:"email,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	jwt.RegisteredClaims
}

// AccessToken is a freshly signed access token. It is never persisted.
type AccessToken struct {
	Token     string
	UserID    ulid.ULID
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenVerifier checks signed access tokens.
type TokenVerifier interface {
	// Verify returns the claims and true only if the signature is valid, the
	// token is not expired and issuer and audience match. It never fails in
	// any other way.
	Verify(token string) (*TokenClaims, bool)
}

// AccessTokenIssuer creates and verifies signed access tokens.
type AccessTokenIssuer interface {
	TokenVerifier

	// IssueAccessToken signs an access token for the user valid from now.
	IssueAccessToken(userID ulid.ULID, email string, now time.Time) (*AccessToken, error)

	// TTL returns the lifetime of issued tokens.
	TTL() time.Duration
}

// JWTConfig configures access token issuance and verification.
type JWTConfig struct {
	Issuer    string
	Audience  string
	TTL       time.Duration
	ClockSkew time.Duration
}

func (c JWTConfig) validate() error {
	if c.Issuer == "" {
		return oops.Code("JWT_CONFIG_INVALID").Errorf("issuer is required")
	}
	if c.Audience == "" {
		return oops.Code("JWT_CONFIG_INVALID").Errorf("audience is required")
	}
	if c.ClockSkew < 0 {
		return oops.Code("JWT_CONFIG_INVALID").Errorf("clock skew cannot be negative")
	}
	return nil
}

// AccessTokenVerifier verifies EdDSA access tokens with a public key only.
// Resource servers use it without access to the signing key.
type AccessTokenVerifier struct {
	key    ed25519.PublicKey
	parser *jwt.Parser
}

// NewAccessTokenVerifier creates a verifier. clock may be nil for time.Now.
func NewAccessTokenVerifier(key ed25519.PublicKey, cfg JWTConfig, clock func() time.Time) (*AccessTokenVerifier, error) {
	if len(key) != ed25519.PublicKeySize {
		return nil, oops.Code("JWT_CONFIG_INVALID").Errorf("verification key is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = time.Now
	}

	return &AccessTokenVerifier{
		key: key,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithAudience(cfg.Audience),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithLeeway(cfg.ClockSkew),
			jwt.WithTimeFunc(clock),
		),
	}, nil
}

// Verify implements TokenVerifier.
func (v *AccessTokenVerifier) Verify(token string) (*TokenClaims, bool) {
	if token == "" {
		return nil, false
	}
	claims := &TokenClaims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil || !parsed.Valid {
		return nil, false
	}
	return claims, true
}

// JWTIssuer signs access tokens with an Ed25519 private key.
type JWTIssuer struct {
	*AccessTokenVerifier
	key ed25519.PrivateKey
	cfg JWTConfig
}

// NewJWTIssuer creates an issuer. The verifying half is derived from key.
// A zero TTL selects DefaultAccessTokenTTL.
func NewJWTIssuer(key ed25519.PrivateKey, cfg JWTConfig, clock func() time.Time) (*JWTIssuer, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, oops.Code("JWT_CONFIG_INVALID").Errorf("signing key is required")
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultAccessTokenTTL
	}
	if cfg.TTL < 0 {
		return nil, oops.Code("JWT_CONFIG_INVALID").Errorf("access token ttl must be positive")
	}

	pub, ok := key.Public().(ed25519.PublicKey)
	if !ok {
		return nil, oops.Code("JWT_CONFIG_INVALID").Errorf("signing key has no ed25519 public half")
	}
	verifier, err := NewAccessTokenVerifier(pub, cfg, clock)
	if err != nil {
		return nil, err
	}

	return &JWTIssuer{AccessTokenVerifier: verifier, key: key, cfg: cfg}, nil
}

// TTL implements AccessTokenIssuer.
func (i *JWTIssuer) TTL() time.Duration {
	return i.cfg.TTL
}

// IssueAccessToken implements AccessTokenIssuer.
// The exp and iat claims have jwt.TimePrecision. ExpiresAt is truncated the
// same way, so it never reports a later expiry than the signed one.
func (i *JWTIssuer) IssueAccessToken(userID ulid.ULID, email string, now time.Time) (*AccessToken, error) {
	expiresAt := now.Add(i.cfg.TTL).Truncate(jwt.TimePrecision)
	claims := TokenClaims{
		Email:     email,
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.cfg.Issuer,
			Subject:   userID.String(),
			Audience:  jwt.ClaimStrings{i.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        ulid.Make().String(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(i.key)
	if err != nil {
		return nil, oops.Code("ACCESS_TOKEN_SIGN_FAILED").
			With("user_id", userID.String()).
			Wrap(err)
	}

	return &AccessToken{
		Token:     signed,
		UserID:    userID,
		Email:     email,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}, nil
}

var (
	_ AccessTokenIssuer = (*JWTIssuer)(nil)
	_ TokenVerifier     = (*AccessTokenVerifier)(nil)
)
