// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Password policy constraints.
const (
	MinPasswordLength = 6
	MaxPasswordLength = 128
)

// MaxEmailLength is the longest address accepted (RFC 5321 path limit).
const MaxEmailLength = 254

// User represents a registered account.
type User struct {
	ID                  ulid.ULID
	Email               string
	PasswordHash        string `json:"-"`
	ResetTokenHash      *string
	ResetTokenExpiresAt *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NewUser creates a validated User with a fresh ID.
// The email is normalized; passwordHash must already be produced by a PasswordHasher.
func NewUser(email, passwordHash string, now time.Time) (*User, error) {
	normalized, err := ValidateEmail(email)
	if err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("USER_INVALID_HASH").Errorf("password hash cannot be empty")
	}

	return &User{
		ID:           ulid.Make(),
		Email:        normalized,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// ResetState is the state of a user's reset-token pair.
type ResetState int

// Reset token states.
const (
	ResetNone ResetState = iota
	ResetPending
	ResetExpired
)

func (s ResetState) String() string {
	switch s {
	case ResetPending:
		return "pending"
	case ResetExpired:
		return "expired"
	default:
		return "none"
	}
}

// ResetStateAt reports the reset-token state as of now.
func (u *User) ResetStateAt(now time.Time) ResetState {
	if u.ResetTokenHash == nil || u.ResetTokenExpiresAt == nil {
		return ResetNone
	}
	if now.After(*u.ResetTokenExpiresAt) {
		return ResetExpired
	}
	return ResetPending
}

// Validate checks the structural invariants of a stored user.
func (u *User) Validate() error {
	if u.ID.Compare(ulid.ULID{}) == 0 {
		return oops.Code("USER_INVALID_ID").Errorf("user ID cannot be zero")
	}
	if u.Email == "" {
		return oops.Code("USER_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if (u.ResetTokenHash == nil) != (u.ResetTokenExpiresAt == nil) {
		return oops.Code("USER_INVALID_RESET_STATE").
			With("user_id", u.ID.String()).
			Errorf("reset token hash and expiry must be set together")
	}
	return nil
}

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail normalizes email and checks that it is a bare address.
// Returns the normalized form.
func ValidateEmail(email string) (string, error) {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return "", oops.Code(CodeInvalidEmail).Errorf("email is required")
	}
	if len(normalized) > MaxEmailLength {
		return "", oops.Code(CodeInvalidEmail).
			With("max", MaxEmailLength).
			Errorf("email must be at most %d characters", MaxEmailLength)
	}
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized || addr.Name != "" {
		return "", oops.Code(CodeInvalidEmail).Errorf("email address is not valid")
	}
	return normalized, nil
}

// ValidatePassword checks a plaintext password against the password policy.
func ValidatePassword(password string) error {
	if password == "" {
		return oops.Code(CodeWeakPassword).Errorf("password is required")
	}
	if len(password) < MinPasswordLength {
		return oops.Code(CodeWeakPassword).
			With("min", MinPasswordLength).
			Errorf("password must be at least %d characters long", MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return oops.Code(CodeWeakPassword).
			With("max", MaxPasswordLength).
			Errorf("password must be at most %d characters long", MaxPasswordLength)
	}
	return nil
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user.
	// Returns ErrDuplicateEmail if the email is already registered.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by normalized email.
	// Returns ErrNotFound if no user has the given email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByResetTokenHash retrieves the user whose outstanding reset token
	// hashes to tokenHash. Expiry is not filtered here.
	GetByResetTokenHash(ctx context.Context, tokenHash string) (*User, error)

	// SetResetToken stores a reset token hash and expiry, replacing any
	// previously outstanding token.
	SetResetToken(ctx context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error

	// CompleteReset sets the password hash and clears the reset pair in one
	// write, but only while the stored hash equals expectedHash and has not
	// expired as of now. Returns ErrResetConflict otherwise.
	CompleteReset(ctx context.Context, id ulid.ULID, expectedHash, passwordHash string, now time.Time) error

	// UpdatePassword replaces the password hash and clears any outstanding reset token.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error

	// UpgradePasswordHash swaps oldHash for newHash, leaving any reset pair
	// untouched. It reports false without error when the stored hash is no
	// longer oldHash or the user is gone.
	UpgradePasswordHash(ctx context.Context, id ulid.ULID, oldHash, newHash string) (bool, error)

	// PurgeExpiredResetTokens clears reset pairs that expired before now and
	// returns the number of users affected.
	PurgeExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}
