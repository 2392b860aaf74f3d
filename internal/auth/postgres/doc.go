// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 tokenward Contributors

// Package postgres provides PostgreSQL implementations of the auth
// repositories. All repositories accept a store.DB so they run against a
// pgxpool.Pool in production and a pgxmock pool in tests.
package postgres

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
