// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 tokenward Contributors

// Package memory provides in-memory implementations of the auth repositories.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/tokenward/tokenward/internal/auth"
)

// Store holds users, refresh tokens and reset tokens behind a single mutex.
// All reads return copies, so callers never share state with the store.
type Store struct {
	mu      sync.Mutex
	users   map[ulid.ULID]*auth.User
	refresh map[string]*auth.StoredRefreshToken
	resets  map[ulid.ULID]*auth.PasswordResetToken
	now     func() time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		users:   make(map[ulid.ULID]*auth.User),
		refresh: make(map[string]*auth.StoredRefreshToken),
		resets:  make(map[ulid.ULID]*auth.PasswordResetToken),
		now:     time.Now,
	}
}

// Create implements auth.UserRepository.
func (s *Store) Create(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Username, user.Username) || strings.EqualFold(u.Email, user.Email) {
			return oops.Code("USER_CONFLICT").
				With("username", user.Username).
				Wrap(auth.ErrConflict)
		}
	}
	if _, ok := s.users[user.ID]; ok {
		return oops.Code("USER_CONFLICT").With("user_id", user.ID.String()).Wrap(auth.ErrConflict)
	}
	s.users[user.ID] = copyUser(user)
	return nil
}

// GetByID implements auth.UserRepository and auth.UserLookup.
func (s *Store) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, userNotFound("user_id", id.String())
	}
	return copyUser(u), nil
}

// GetByUsername implements auth.UserRepository.
func (s *Store) GetByUsername(_ context.Context, username string) (*auth.User, error) {
	return s.findUser(func(u *auth.User) bool { return strings.EqualFold(u.Username, username) }, "username", username)
}

// GetByEmail implements auth.UserRepository.
func (s *Store) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	return s.findUser(func(u *auth.User) bool { return strings.EqualFold(u.Email, email) }, "email", email)
}

func (s *Store) findUser(match func(*auth.User) bool, key, value string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if match(u) {
			return copyUser(u), nil
		}
	}
	return nil, userNotFound(key, value)
}

// RecordLoginResult implements auth.UserRepository.
func (s *Store) RecordLoginResult(_ context.Context, id ulid.ULID, failedAttempts int, lockedUntil *time.Time, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return userNotFound("user_id", id.String())
	}
	u.FailedAttempts = failedAttempts
	u.LockedUntil = nil
	if lockedUntil != nil {
		until := *lockedUntil
		u.LockedUntil = &until
	}
	u.UpdatedAt = at
	return nil
}

// UpgradePasswordHash implements auth.UserRepository.
func (s *Store) UpgradePasswordHash(_ context.Context, id ulid.ULID, oldHash, newHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok || u.PasswordHash != oldHash {
		return false, nil
	}
	u.PasswordHash = newHash
	u.UpdatedAt = s.now()
	return true, nil
}

// UpdatePassword implements auth.UserRepository.
func (s *Store) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return userNotFound("user_id", id.String())
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = s.now()
	return nil
}

// Delete implements auth.UserRepository. Tokens of the user go with it.
func (s *Store) Delete(_ context.Context, id ulid.ULID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return userNotFound("user_id", id.String())
	}
	delete(s.users, id)
	for hash, t := range s.refresh {
		if t.UserID == id {
			delete(s.refresh, hash)
		}
	}
	for rid, r := range s.resets {
		if r.UserID == id {
			delete(s.resets, rid)
		}
	}
	return nil
}

func userNotFound(key, value string) error {
	return oops.Code("USER_NOT_FOUND").With(key, value).Wrap(auth.ErrNotFound)
}

func copyUser(u *auth.User) *auth.User {
	c := *u
	if u.LockedUntil != nil {
		t := *u.LockedUntil
		c.LockedUntil = &t
	}
	return &c
}

var _ auth.UserRepository = (*Store)(nil)
