// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 tokenward Contributors

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenward/tokenward/internal/auth"
	"github.com/tokenward/tokenward/internal/auth/postgres"
	"github.com/tokenward/tokenward/pkg/errutil"
)

var (
	ts          = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	userCols    = []string{"id", "username", "email", "password_hash", "failed_attempts", "locked_until", "created_at", "updated_at"}
	refreshCols = []string{"token_hash", "user_id", "issued_at", "expires_at", "last_used_at"}
	resetCols   = []string{"id", "user_id", "token_hash", "expires_at", "used_at", "created_at"}
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

func uniqueViolation() error {
	return &pgconn.PgError{Code: pgerrcode.UniqueViolation, Message: "duplicate key value"}
}

func TestUserRepository_Create(t *testing.T) {
	ctx := context.Background()
	user := &auth.User{
		ID: ulid.Make(), Username: "alice", Email: "alice@example.com",
		PasswordHash: "hash", CreatedAt: ts, UpdatedAt: ts,
	}

	tests := []struct {
		name     string
		err      error
		wantKind auth.Kind
		wantCode string
	}{
		{"inserted", nil, auth.KindInternal, ""},
		{"unique violation", uniqueViolation(), auth.KindConflict, "USER_CONFLICT"},
		{"database error", errors.New("connection refused"), auth.KindInternal, "USER_CREATE_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			exp := mock.ExpectExec(`INSERT INTO users`).
				WithArgs(user.ID.String(), "alice", "alice@example.com", "hash", 0, pgxmock.AnyArg(), ts, ts)
			if tt.err != nil {
				exp.WillReturnError(tt.err)
			} else {
				exp.WillReturnResult(pgxmock.NewResult("INSERT", 1))
			}

			err := postgres.NewUserRepository(mock).Create(ctx, user)
			if tt.wantCode == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.wantCode)
			assert.Equal(t, tt.wantKind, auth.KindOf(err))
		})
	}
}

func TestUserRepository_Get(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()
	locked := ts.Add(time.Minute)

	t.Run("by username", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`SELECT (.+) FROM users WHERE LOWER\(username\) = LOWER\(\$1\)`).
			WithArgs("ALICE").
			WillReturnRows(pgxmock.NewRows(userCols).
				AddRow(id.String(), "alice", "alice@example.com", "hash", 3, &locked, ts, ts))

		user, err := postgres.NewUserRepository(mock).GetByUsername(ctx, "ALICE")
		require.NoError(t, err)
		assert.Equal(t, id, user.ID)
		assert.Equal(t, 3, user.FailedAttempts)
		require.NotNil(t, user.LockedUntil)
		assert.Equal(t, locked, *user.LockedUntil)
	})

	t.Run("by email without lock", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`SELECT (.+) FROM users WHERE LOWER\(email\)`).
			WithArgs("alice@example.com").
			WillReturnRows(pgxmock.NewRows(userCols).
				AddRow(id.String(), "alice", "alice@example.com", "hash", 0, nil, ts, ts))

		user, err := postgres.NewUserRepository(mock).GetByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Nil(t, user.LockedUntil)
	})

	t.Run("not found", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`SELECT (.+) FROM users WHERE id = \$1`).
			WithArgs(id.String()).
			WillReturnRows(pgxmock.NewRows(userCols))

		_, err := postgres.NewUserRepository(mock).GetByID(ctx, id)
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "USER_NOT_FOUND")
	})

	t.Run("database error", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`SELECT (.+) FROM users WHERE id = \$1`).
			WithArgs(id.String()).
			WillReturnError(errors.New("connection refused"))

		_, err := postgres.NewUserRepository(mock).GetByID(ctx, id)
		require.Error(t, err)
		errutil.AssertErrorContext(t, err, "operation", "get user by id")
		assert.NotErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("corrupt id", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`SELECT (.+) FROM users WHERE id = \$1`).
			WithArgs(id.String()).
			WillReturnRows(pgxmock.NewRows(userCols).
				AddRow("not-a-ulid", "alice", "alice@example.com", "hash", 0, nil, ts, ts))

		_, err := postgres.NewUserRepository(mock).GetByID(ctx, id)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "USER_INVALID_ID")
	})
}

func TestUserRepository_Mutations(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()

	t.Run("record login result writes only lockout columns", func(t *testing.T) {
		mock := newMock(t)
		until := ts.Add(time.Minute)
		mock.ExpectExec(`UPDATE users\s+SET failed_attempts = \$2, locked_until = \$3, updated_at = \$4\s+WHERE id = \$1`).
			WithArgs(id.String(), 3, &until, ts).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, postgres.NewUserRepository(mock).RecordLoginResult(ctx, id, 3, &until, ts))
	})

	t.Run("record login result for missing user", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE users`).
			WithArgs(id.String(), 1, pgxmock.AnyArg(), ts).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := postgres.NewUserRepository(mock).RecordLoginResult(ctx, id, 1, nil, ts)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("upgrade hash is conditional on the old hash", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE users SET password_hash = \$3, updated_at = now\(\)\s+WHERE id = \$1 AND password_hash = \$2`).
			WithArgs(id.String(), "old-hash", "new-hash").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(`UPDATE users SET password_hash = \$3`).
			WithArgs(id.String(), "old-hash", "new-hash").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		repo := postgres.NewUserRepository(mock)
		replaced, err := repo.UpgradePasswordHash(ctx, id, "old-hash", "new-hash")
		require.NoError(t, err)
		assert.True(t, replaced)

		replaced, err = repo.UpgradePasswordHash(ctx, id, "old-hash", "new-hash")
		require.NoError(t, err)
		assert.False(t, replaced, "hash changed since it was read")
	})

	t.Run("update password", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE users SET password_hash = \$2`).
			WithArgs(id.String(), "new-hash").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, postgres.NewUserRepository(mock).UpdatePassword(ctx, id, "new-hash"))
	})

	t.Run("delete", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`DELETE FROM users WHERE id = \$1`).
			WithArgs(id.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectExec(`DELETE FROM users WHERE id = \$1`).
			WithArgs(id.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		repo := postgres.NewUserRepository(mock)
		require.NoError(t, repo.Delete(ctx, id))
		assert.ErrorIs(t, repo.Delete(ctx, id), auth.ErrNotFound)
	})
}

func TestTokenRepository_RefreshTokens(t *testing.T) {
	ctx := context.Background()
	userID := ulid.Make()

	t.Run("save", func(t *testing.T) {
		mock := newMock(t)
		token := &auth.StoredRefreshToken{TokenHash: "h", UserID: userID, IssuedAt: ts, ExpiresAt: ts.Add(time.Hour)}
		mock.ExpectExec(`INSERT INTO refresh_tokens`).
			WithArgs("h", userID.String(), ts, ts.Add(time.Hour), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec(`INSERT INTO refresh_tokens`).
			WithArgs("h", userID.String(), ts, ts.Add(time.Hour), pgxmock.AnyArg()).
			WillReturnError(uniqueViolation())

		repo := postgres.NewTokenRepository(mock)
		require.NoError(t, repo.SaveRefreshToken(ctx, token))
		assert.ErrorIs(t, repo.SaveRefreshToken(ctx, token), auth.ErrConflict)
	})

	t.Run("find", func(t *testing.T) {
		mock := newMock(t)
		used := ts.Add(time.Minute)
		mock.ExpectQuery(`SELECT (.+) FROM refresh_tokens WHERE token_hash = \$1`).
			WithArgs("h").
			WillReturnRows(pgxmock.NewRows(refreshCols).
				AddRow("h", userID.String(), ts, ts.Add(time.Hour), &used))
		mock.ExpectQuery(`SELECT (.+) FROM refresh_tokens`).
			WithArgs("missing").
			WillReturnRows(pgxmock.NewRows(refreshCols))

		repo := postgres.NewTokenRepository(mock)
		got, err := repo.FindRefreshToken(ctx, "h")
		require.NoError(t, err)
		assert.Equal(t, userID, got.UserID)
		require.NotNil(t, got.LastUsedAt)
		assert.Equal(t, used, *got.LastUsedAt)

		_, err = repo.FindRefreshToken(ctx, "missing")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("revoke reports the winner", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`DELETE FROM refresh_tokens WHERE token_hash = \$1`).
			WithArgs("h").
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectExec(`DELETE FROM refresh_tokens WHERE token_hash = \$1`).
			WithArgs("h").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		repo := postgres.NewTokenRepository(mock)
		removed, err := repo.RevokeRefreshToken(ctx, "h")
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = repo.RevokeRefreshToken(ctx, "h")
		require.NoError(t, err)
		assert.False(t, removed)
	})

	t.Run("revoke failure", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`DELETE FROM refresh_tokens`).
			WithArgs("h").
			WillReturnError(errors.New("connection reset"))

		_, err := postgres.NewTokenRepository(mock).RevokeRefreshToken(ctx, "h")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "REFRESH_TOKEN_REVOKE_FAILED")
	})

	t.Run("touch, revoke all and purge", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE refresh_tokens SET last_used_at = \$2`).
			WithArgs("h", ts).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectExec(`DELETE FROM refresh_tokens WHERE user_id = \$1`).
			WithArgs(userID.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 3))
		mock.ExpectExec(`DELETE FROM refresh_tokens WHERE expires_at <= \$1`).
			WithArgs(ts).
			WillReturnResult(pgxmock.NewResult("DELETE", 2))

		repo := postgres.NewTokenRepository(mock)
		assert.ErrorIs(t, repo.UpdateLastUsed(ctx, "h", ts), auth.ErrNotFound)

		n, err := repo.RevokeAllUserTokens(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		n, err = repo.DeleteExpiredRefreshTokens(ctx, ts)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})
}

func TestTokenRepository_ResetTokens(t *testing.T) {
	ctx := context.Background()
	userID := ulid.Make()
	id := ulid.Make()

	t.Run("save returns a new id", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`INSERT INTO password_reset_tokens`).
			WithArgs(pgxmock.AnyArg(), userID.String(), "r", ts).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		got, err := postgres.NewTokenRepository(mock).SavePasswordResetToken(ctx, userID, "r", ts)
		require.NoError(t, err)
		assert.NotEqual(t, ulid.ULID{}, got)
	})

	t.Run("find filters used and expired", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`FROM password_reset_tokens WHERE token_hash = \$1 AND used_at IS NULL AND expires_at > \$2`).
			WithArgs("r", ts).
			WillReturnRows(pgxmock.NewRows(resetCols).
				AddRow(id.String(), userID.String(), "r", ts.Add(time.Hour), nil, ts))
		mock.ExpectQuery(`FROM password_reset_tokens`).
			WithArgs("r", ts.Add(2*time.Hour)).
			WillReturnRows(pgxmock.NewRows(resetCols))

		repo := postgres.NewTokenRepository(mock)
		got, err := repo.FindPasswordResetToken(ctx, "r", ts)
		require.NoError(t, err)
		assert.Equal(t, id, got.ID)
		assert.Equal(t, userID, got.UserID)
		assert.Nil(t, got.UsedAt)

		_, err = repo.FindPasswordResetToken(ctx, "r", ts.Add(2*time.Hour))
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("mark used is conditional", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE password_reset_tokens SET used_at = \$2 WHERE id = \$1 AND used_at IS NULL`).
			WithArgs(id.String(), ts).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(`UPDATE password_reset_tokens`).
			WithArgs(id.String(), ts).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		repo := postgres.NewTokenRepository(mock)
		require.NoError(t, repo.MarkPasswordResetTokenAsUsed(ctx, id, ts))
		err := repo.MarkPasswordResetTokenAsUsed(ctx, id, ts)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("deletes", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`DELETE FROM password_reset_tokens WHERE user_id = \$1`).
			WithArgs(userID.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 2))
		mock.ExpectExec(`DELETE FROM password_reset_tokens WHERE expires_at <= \$1 OR used_at <= \$1`).
			WithArgs(ts).
			WillReturnResult(pgxmock.NewResult("DELETE", 4))

		repo := postgres.NewTokenRepository(mock)
		require.NoError(t, repo.DeletePasswordResetTokensOfUser(ctx, userID))
		n, err := repo.DeleteExpiredPasswordResetTokens(ctx, ts)
		require.NoError(t, err)
		assert.Equal(t, int64(4), n)
	})

	t.Run("purge failure", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`DELETE FROM password_reset_tokens`).
			WithArgs(ts).
			WillReturnError(errors.New("timeout"))

		_, err := postgres.NewTokenRepository(mock).DeleteExpiredPasswordResetTokens(ctx, ts)
		errutil.AssertErrorCode(t, err, "RESET_TOKEN_PURGE_FAILED")
	})
}
