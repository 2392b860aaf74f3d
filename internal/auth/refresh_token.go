// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 tokenward Contributors

package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Refresh token configuration.
const (
	RefreshTokenBytes      = 32 // 256 bits of entropy
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour

	// MinTokenSecretBytes is the minimum HMAC secret length.
	MinTokenSecretBytes = 32
)

// RawRefreshToken is a newly generated refresh token. Token is handed to the
// client exactly once and never stored.
type RawRefreshToken struct {
	Token     string
	UserID    ulid.ULID
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// StoredRefreshToken is the persisted form of a refresh token.
type StoredRefreshToken struct {
	TokenHash  string
	UserID     ulid.ULID
	IssuedAt   time.Time
	ExpiresAt  time.Time
	LastUsedAt *time.Time
}

// IsExpiredAt reports whether the token is no longer usable at now.
func (t *StoredRefreshToken) IsExpiredAt(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// RefreshTokenGenerator creates opaque refresh tokens.
type RefreshTokenGenerator interface {
	Generate(userID ulid.ULID, now time.Time) (*RawRefreshToken, error)
	TTL() time.Duration
}

// OpaqueTokenGenerator generates refresh tokens from crypto/rand.
// Tokens carry no claims; they only have meaning through the store.
type OpaqueTokenGenerator struct {
	ttl time.Duration
}

// NewOpaqueTokenGenerator creates a generator. A zero ttl selects DefaultRefreshTokenTTL.
func NewOpaqueTokenGenerator(ttl time.Duration) (*OpaqueTokenGenerator, error) {
	if ttl == 0 {
		ttl = DefaultRefreshTokenTTL
	}
	if ttl < 0 {
		return nil, oops.Code("REFRESH_CONFIG_INVALID").Errorf("refresh token ttl must be positive")
	}
	return &OpaqueTokenGenerator{ttl: ttl}, nil
}

// TTL implements RefreshTokenGenerator.
func (g *OpaqueTokenGenerator) TTL() time.Duration {
	return g.ttl
}

// Generate implements RefreshTokenGenerator.
func (g *OpaqueTokenGenerator) Generate(userID ulid.ULID, now time.Time) (*RawRefreshToken, error) {
	token, err := randomToken(RefreshTokenBytes, base64.RawURLEncoding.EncodeToString)
	if err != nil {
		return nil, oops.Code("REFRESH_TOKEN_GENERATE_FAILED").
			With("requested_bytes", RefreshTokenBytes).
			Wrap(err)
	}
	return &RawRefreshToken{
		Token:     token,
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: now.Add(g.ttl),
	}, nil
}

func randomToken(n int, encode func([]byte) string) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err //nolint:wrapcheck // callers attach the code
	}
	return encode(b), nil
}

// TokenHasher maps a raw token to its storage lookup key.
type TokenHasher interface {
	Hash(raw string) string
}

// HMACTokenHasher computes hex encoded HMAC-SHA256 digests with a server secret.
// The secret is copied at construction and never changes afterwards.
type HMACTokenHasher struct {
	secret []byte
}

// NewHMACTokenHasher creates a hasher. The secret must be at least
// MinTokenSecretBytes long.
func NewHMACTokenHasher(secret []byte) (*HMACTokenHasher, error) {
	if len(secret) < MinTokenSecretBytes {
		return nil, oops.Code("TOKEN_SECRET_INVALID").
			With("min_bytes", MinTokenSecretBytes).
			Errorf("token secret must be at least %d bytes", MinTokenSecretBytes)
	}
	return &HMACTokenHasher{secret: append([]byte(nil), secret...)}, nil
}

// Hash implements TokenHasher.
func (h *HMACTokenHasher) Hash(raw string) string {
	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

var (
	_ RefreshTokenGenerator = (*OpaqueTokenGenerator)(nil)
	_ TokenHasher           = (*HMACTokenHasher)(nil)
)
