// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 tokenward Contributors

//go:build integration

package postgres_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/tokenward/tokenward/internal/auth"
	"github.com/tokenward/tokenward/internal/auth/postgres"
)

func createUser(ctx context.Context, users *postgres.UserRepository, username string) *auth.User {
	GinkgoHelper()
	user, err := auth.NewUser(username, username+"@example.com", "$argon2id$hash", time.Now().UTC().Truncate(time.Microsecond))
	Expect(err).NotTo(HaveOccurred())
	Expect(users.Create(ctx, user)).To(Succeed())
	return user
}

var _ = Describe("UserRepository", func() {
	var (
		ctx   context.Context
		users *postgres.UserRepository
	)

	BeforeEach(func() {
		ctx = context.Background()
		cleanupTables(ctx)
		users = postgres.NewUserRepository(testPool)
	})

	It("round-trips a user", func() {
		alice := createUser(ctx, users, "alice")

		got, err := users.GetByUsername(ctx, "ALICE")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(alice.ID))
		Expect(got.CreatedAt).To(BeTemporally("==", alice.CreatedAt))

		got, err = users.GetByEmail(ctx, "Alice@Example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(alice.ID))
	})

	It("maps unique violations to conflicts", func() {
		createUser(ctx, users, "alice")
		dup, err := auth.NewUser("Alice", "other@example.com", "hash", time.Now())
		Expect(err).NotTo(HaveOccurred())

		err = users.Create(ctx, dup)
		Expect(err).To(MatchError(auth.ErrConflict))
		Expect(auth.KindOf(err)).To(Equal(auth.KindConflict))
	})

	It("persists lockout state", func() {
		alice := createUser(ctx, users, "alice")
		now := time.Now().UTC().Truncate(time.Microsecond)
		alice.RecordFailure(auth.LockoutPolicy{Threshold: 1, Duration: time.Minute}, now)
		Expect(users.RecordLoginResult(ctx, alice.ID, alice.FailedAttempts, alice.LockedUntil, now)).To(Succeed())

		got, err := users.GetByID(ctx, alice.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.FailedAttempts).To(Equal(1))
		Expect(got.IsLockedAt(now)).To(BeTrue())
	})

	It("keeps a password changed after the login lookup", func() {
		alice := createUser(ctx, users, "alice")
		stale, err := users.GetByID(ctx, alice.ID)
		Expect(err).NotTo(HaveOccurred())

		Expect(users.UpdatePassword(ctx, alice.ID, "reset-hash")).To(Succeed())

		stale.RecordFailure(auth.DefaultLockoutPolicy(), time.Now())
		Expect(users.RecordLoginResult(ctx, stale.ID, stale.FailedAttempts, stale.LockedUntil, stale.UpdatedAt)).To(Succeed())
		replaced, err := users.UpgradePasswordHash(ctx, stale.ID, stale.PasswordHash, "upgraded-hash")
		Expect(err).NotTo(HaveOccurred())
		Expect(replaced).To(BeFalse())

		got, err := users.GetByID(ctx, alice.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.PasswordHash).To(Equal("reset-hash"))
		Expect(got.FailedAttempts).To(Equal(1))
	})

	It("cascades deletes to tokens", func() {
		alice := createUser(ctx, users, "alice")
		tokens := postgres.NewTokenRepository(testPool)
		now := time.Now().UTC()
		Expect(tokens.SaveRefreshToken(ctx, &auth.StoredRefreshToken{
			TokenHash: "cascade", UserID: alice.ID, IssuedAt: now, ExpiresAt: now.Add(time.Hour),
		})).To(Succeed())

		Expect(users.Delete(ctx, alice.ID)).To(Succeed())

		_, err := tokens.FindRefreshToken(ctx, "cascade")
		Expect(err).To(MatchError(auth.ErrNotFound))
		Expect(users.Delete(ctx, alice.ID)).To(MatchError(auth.ErrNotFound))
	})
})

var _ = Describe("TokenRepository", func() {
	var (
		ctx    context.Context
		tokens *postgres.TokenRepository
		user   *auth.User
		now    time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		cleanupTables(ctx)
		tokens = postgres.NewTokenRepository(testPool)
		user = createUser(ctx, postgres.NewUserRepository(testPool), "alice")
		now = time.Now().UTC().Truncate(time.Microsecond)
	})

	It("deletes a refresh token exactly once under contention", func() {
		Expect(tokens.SaveRefreshToken(ctx, &auth.StoredRefreshToken{
			TokenHash: "contended", UserID: user.ID, IssuedAt: now, ExpiresAt: now.Add(time.Hour),
		})).To(Succeed())

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners int
		)
		for range 16 {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				removed, err := tokens.RevokeRefreshToken(ctx, "contended")
				Expect(err).NotTo(HaveOccurred())
				if removed {
					mu.Lock()
					winners++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		Expect(winners).To(Equal(1))
	})

	It("purges expired refresh tokens", func() {
		Expect(tokens.SaveRefreshToken(ctx, &auth.StoredRefreshToken{
			TokenHash: "old", UserID: user.ID, IssuedAt: now.Add(-2 * time.Hour), ExpiresAt: now,
		})).To(Succeed())
		Expect(tokens.SaveRefreshToken(ctx, &auth.StoredRefreshToken{
			TokenHash: "fresh", UserID: user.ID, IssuedAt: now, ExpiresAt: now.Add(time.Hour),
		})).To(Succeed())

		n, err := tokens.DeleteExpiredRefreshTokens(ctx, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(1)))

		got, err := tokens.FindRefreshToken(ctx, "fresh")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ExpiresAt).To(BeTemporally("==", now.Add(time.Hour)))
	})

	It("marks a reset token used only once", func() {
		id, err := tokens.SavePasswordResetToken(ctx, user.ID, "reset", now.Add(time.Hour))
		Expect(err).NotTo(HaveOccurred())

		found, err := tokens.FindPasswordResetToken(ctx, "reset", now)
		Expect(err).NotTo(HaveOccurred())
		Expect(found.ID).To(Equal(id))

		Expect(tokens.MarkPasswordResetTokenAsUsed(ctx, id, now)).To(Succeed())
		Expect(tokens.MarkPasswordResetTokenAsUsed(ctx, id, now)).To(MatchError(auth.ErrNotFound))

		_, err = tokens.FindPasswordResetToken(ctx, "reset", now)
		Expect(err).To(MatchError(auth.ErrNotFound))

		n, err := tokens.DeleteExpiredPasswordResetTokens(ctx, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(1)))
	})
})

var _ = Describe("TokenService over PostgreSQL", func() {
	var (
		ctx context.Context
		svc *auth.TokenService
		uid ulid.ULID
	)

	BeforeEach(func() {
		ctx = context.Background()
		cleanupTables(ctx)

		users := postgres.NewUserRepository(testPool)
		uid = createUser(ctx, users, "alice").ID

		_, priv, err := ed25519.GenerateKey(rand.Reader)
		Expect(err).NotTo(HaveOccurred())
		issuer, err := auth.NewJWTIssuer(priv, auth.JWTConfig{Issuer: "https://auth.test", Audience: "api"}, nil)
		Expect(err).NotTo(HaveOccurred())
		generator, err := auth.NewOpaqueTokenGenerator(time.Hour)
		Expect(err).NotTo(HaveOccurred())
		hasher, err := auth.NewHMACTokenHasher([]byte("0123456789abcdef0123456789abcdef"))
		Expect(err).NotTo(HaveOccurred())

		svc, err = auth.NewTokenService(issuer, generator, hasher, postgres.NewTokenRepository(testPool), users)
		Expect(err).NotTo(HaveOccurred())
	})

	It("lets exactly one concurrent rotation win", func() {
		pair, err := svc.GenerateTokens(ctx, uid, "alice@example.com")
		Expect(err).NotTo(HaveOccurred())

		const callers = 12
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			winners  []*auth.TokenPair
			rejected int
		)
		for range callers {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				next, err := svc.ValidateAndRefresh(ctx, pair.RefreshToken)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					Expect(auth.KindOf(err)).To(Equal(auth.KindInvalidToken))
					rejected++
					return
				}
				winners = append(winners, next)
			}()
		}
		wg.Wait()

		Expect(winners).To(HaveLen(1))
		Expect(rejected).To(Equal(callers - 1))

		_, err = svc.ValidateAndRefresh(ctx, winners[0].RefreshToken)
		Expect(err).NotTo(HaveOccurred())
	})
})
