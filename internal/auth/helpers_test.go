// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 tokenward Contributors

package auth_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tokenward/tokenward/internal/auth"
	"github.com/tokenward/tokenward/internal/auth/memory"
)

const (
	testIssuer   = "https://auth.tokenward.test"
	testAudience = "tokenward-api"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// cheapArgon2 keeps hashing fast in tests.
var cheapArgon2 = auth.Argon2Params{Time: 1, Memory: 1024, Threads: 1, SaltLen: 16, KeyLen: 32}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testJWTConfig() auth.JWTConfig {
	return auth.JWTConfig{Issuer: testIssuer, Audience: testAudience, TTL: 15 * time.Minute}
}

func newSigningKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return priv
}

type testEnv struct {
	clock    *fakeClock
	key      ed25519.PrivateKey
	store    *memory.Store
	issuer   *auth.JWTIssuer
	hasher   *auth.HMACTokenHasher
	pwHasher *auth.Argon2idHasher
	tokens   *auth.TokenService
	resets   *auth.ResetTokenService
	svc      *auth.AuthService

	mu       sync.Mutex
	notified []*auth.IssuedResetToken
}

func newTestEnv(t *testing.T, cfg auth.AuthConfig) *testEnv {
	t.Helper()

	env := &testEnv{
		clock:    newFakeClock(),
		key:      newSigningKey(t),
		store:    memory.NewStore(),
		pwHasher: auth.NewArgon2idHasherWithParams(cheapArgon2),
	}

	var err error
	env.issuer, err = auth.NewJWTIssuer(env.key, testJWTConfig(), env.clock.Now)
	require.NoError(t, err)

	generator, err := auth.NewOpaqueTokenGenerator(24 * time.Hour)
	require.NoError(t, err)

	env.hasher, err = auth.NewHMACTokenHasher(testSecret)
	require.NoError(t, err)

	env.tokens, err = auth.NewTokenService(env.issuer, generator, env.hasher, env.store, env.store,
		auth.WithClock(env.clock.Now))
	require.NoError(t, err)

	env.resets, err = auth.NewResetTokenService(env.store, env.hasher, time.Hour, auth.WithClock(env.clock.Now))
	require.NoError(t, err)

	notifier := auth.ResetNotifierFunc(func(_ context.Context, _ *auth.User, token *auth.IssuedResetToken) error {
		env.mu.Lock()
		defer env.mu.Unlock()
		env.notified = append(env.notified, token)
		return nil
	})

	env.svc, err = auth.NewAuthService(env.store, env.pwHasher, env.tokens, env.resets, notifier, cfg,
		auth.WithClock(env.clock.Now))
	require.NoError(t, err)

	return env
}

func (e *testEnv) register(t *testing.T, username, password string) *auth.User {
	t.Helper()
	user, err := e.svc.Register(context.Background(), username, username+"@example.com", password)
	require.NoError(t, err)
	return user
}

func (e *testEnv) lastNotified(t *testing.T) *auth.IssuedResetToken {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	require.NotEmpty(t, e.notified, "no reset token was delivered")
	return e.notified[len(e.notified)-1]
}

const base64URLAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

// flipSignatureChar changes one data bit of the signature segment at pos.
// Negative positions count from the end.
func flipSignatureChar(t *testing.T, token string, pos int) string {
	t.Helper()
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	sig := []byte(parts[2])
	if pos < 0 {
		pos = len(sig) + pos
	}
	idx := strings.IndexByte(base64URLAlphabet, sig[pos])
	require.GreaterOrEqual(t, idx, 0)
	sig[pos] = base64URLAlphabet[idx^32]

	parts[2] = string(sig)
	return strings.Join(parts, ".")
}
