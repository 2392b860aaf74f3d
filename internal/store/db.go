// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 tokenward Contributors

// Package store connects to PostgreSQL and manages the schema of the auth
// tables.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// DB is the query surface shared by *pgxpool.Pool and pgxmock pools.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Connect defaults.
const (
	DefaultConnectAttempts = 5
	DefaultConnectTimeout  = 5 * time.Second
	connectBackoffBase     = 250 * time.Millisecond
	connectBackoffCap      = 5 * time.Second
)

// ConnectConfig controls how Connect reaches the database.
type ConnectConfig struct {
	URL      string
	Attempts uint64
	Timeout  time.Duration
}

// Connect opens a pool and pings it, retrying with exponential backoff until
// the database answers or the attempts run out.
func Connect(ctx context.Context, cfg ConnectConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	if cfg.URL == "" {
		return nil, oops.Code("DB_CONFIG_INVALID").Errorf("database url is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}

	return connectWithRetry(ctx, cfg, logger, func(ctx context.Context) (*pgxpool.Pool, error) {
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return pool, nil
	})
}

func connectWithRetry[T any](ctx context.Context, cfg ConnectConfig, logger *slog.Logger, open func(context.Context) (T, error)) (T, error) {
	if logger == nil {
		logger = slog.Default()
	}
	attempts := cfg.Attempts
	if attempts == 0 {
		attempts = DefaultConnectAttempts
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	backoff := retry.WithMaxRetries(attempts-1,
		retry.WithCappedDuration(connectBackoffCap, retry.NewExponential(connectBackoffBase)))

	var attempt uint64
	v, err := retry.DoValue(ctx, backoff, func(ctx context.Context) (T, error) {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		v, err := open(attemptCtx)
		if err != nil {
			logger.WarnContext(ctx, "database not reachable",
				"attempt", attempt, "max_attempts", attempts, "error", err)
			return v, retry.RetryableError(err)
		}
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, oops.Code("DB_CONNECT_FAILED").
			With("operation", "connect").
			With("attempts", attempt).
			Wrap(err)
	}
	return v, nil
}

var _ DB = (*pgxpool.Pool)(nil)
