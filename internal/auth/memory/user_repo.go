// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memory provides an in-process implementation of auth.UserRepository
// for tests and single-node development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/latchkey/latchkey/internal/auth"
)

// UserRepository implements auth.UserRepository in memory.
// All methods are safe for concurrent use; CompleteReset is atomic with
// respect to every other method.
type UserRepository struct {
	mu      sync.RWMutex
	byID    map[ulid.ULID]*auth.User
	byEmail map[string]ulid.ULID
	byReset map[string]ulid.ULID
	clock   auth.Clock
}

// Option configures a UserRepository.
type Option func(*UserRepository)

// WithClock sets the time source stamped into UpdatedAt.
func WithClock(clock auth.Clock) Option {
	return func(r *UserRepository) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// NewUserRepository creates an empty UserRepository.
func NewUserRepository(opts ...Option) *UserRepository {
	r := &UserRepository{
		byID:    make(map[ulid.ULID]*auth.User),
		byEmail: make(map[string]ulid.ULID),
		byReset: make(map[string]ulid.ULID),
		clock:   auth.SystemClock{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create stores a new user.
func (r *UserRepository) Create(_ context.Context, user *auth.User) error {
	if err := user.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	email := auth.NormalizeEmail(user.Email)
	if _, exists := r.byEmail[email]; exists {
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			Wrap(auth.ErrDuplicateEmail)
	}

	stored := cloneUser(user)
	stored.Email = email
	r.byID[user.ID] = stored
	r.byEmail[email] = user.ID
	if stored.ResetTokenHash != nil {
		r.byReset[*stored.ResetTokenHash] = user.ID
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return cloneUser(user), nil
}

// GetByEmail retrieves a user by email.
func (r *UserRepository) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[auth.NormalizeEmail(email)]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return cloneUser(r.byID[id]), nil
}

// GetByResetTokenHash retrieves a user by outstanding reset token hash.
func (r *UserRepository) GetByResetTokenHash(_ context.Context, tokenHash string) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byReset[tokenHash]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return cloneUser(r.byID[id]), nil
}

// SetResetToken stores a reset pair, replacing any previous one.
func (r *UserRepository) SetResetToken(_ context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}

	r.clearReset(user)
	hash := tokenHash
	expiry := expiresAt
	user.ResetTokenHash = &hash
	user.ResetTokenExpiresAt = &expiry
	user.UpdatedAt = r.clock.Now()
	r.byReset[hash] = id
	return nil
}

// CompleteReset writes the password and clears the reset pair if the stored
// hash still matches and has not expired.
func (r *UserRepository) CompleteReset(_ context.Context, id ulid.ULID, expectedHash, passwordHash string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok ||
		user.ResetTokenHash == nil ||
		*user.ResetTokenHash != expectedHash ||
		now.After(*user.ResetTokenExpiresAt) {
		return oops.Code("USER_COMPLETE_RESET_FAILED").
			With("id", id.String()).
			Wrap(auth.ErrResetConflict)
	}

	r.clearReset(user)
	user.PasswordHash = passwordHash
	user.UpdatedAt = now
	return nil
}

// UpdatePassword replaces the password hash and clears any reset pair.
func (r *UserRepository) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}

	r.clearReset(user)
	user.PasswordHash = passwordHash
	user.UpdatedAt = r.clock.Now()
	return nil
}

// UpgradePasswordHash swaps the password hash only while it still equals oldHash.
func (r *UserRepository) UpgradePasswordHash(_ context.Context, id ulid.ULID, oldHash, newHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok || user.PasswordHash != oldHash {
		return false, nil
	}
	user.PasswordHash = newHash
	user.UpdatedAt = r.clock.Now()
	return true, nil
}

// PurgeExpiredResetTokens clears reset pairs that expired before now.
func (r *UserRepository) PurgeExpiredResetTokens(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var purged int64
	for _, user := range r.byID {
		if user.ResetTokenExpiresAt != nil && user.ResetTokenExpiresAt.Before(now) {
			r.clearReset(user)
			purged++
		}
	}
	return purged, nil
}

// clearReset removes the user's reset pair. Caller must hold the write lock.
func (r *UserRepository) clearReset(user *auth.User) {
	if user.ResetTokenHash != nil {
		delete(r.byReset, *user.ResetTokenHash)
	}
	user.ResetTokenHash = nil
	user.ResetTokenExpiresAt = nil
}

func cloneUser(u *auth.User) *auth.User {
	c := *u
	if u.ResetTokenHash != nil {
		h := *u.ResetTokenHash
		c.ResetTokenHash = &h
	}
	if u.ResetTokenExpiresAt != nil {
		t := *u.ResetTokenExpiresAt
		c.ResetTokenExpiresAt = &t
	}
	return &c
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
