// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Service provides registration, login and authenticated account operations.
type Service struct {
	users    UserRepository
	hasher   PasswordHasher
	sessions *SessionIssuer
	clock    Clock
	logger   *slog.Logger

	// dummyHash is verified against when the email is unknown so that the
	// miss costs the same as a real verification.
	dummyHash string
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Token     string
	UserID    ulid.ULID
	ExpiresAt time.Time
}

// NewAuthService creates a new Service.
func NewAuthService(users UserRepository, hasher PasswordHasher, sessions *SessionIssuer, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("password hasher is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("session issuer is required")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	dummyHash, err := newDummyHash(hasher)
	if err != nil {
		return nil, err
	}

	return &Service{
		users:     users,
		hasher:    hasher,
		sessions:  sessions,
		clock:     o.clock,
		logger:    o.logger,
		dummyHash: dummyHash,
	}, nil
}

// newDummyHash hashes a random throwaway secret with the configured hasher,
// so the dummy carries the same cost parameters as real account hashes.
func newDummyHash(hasher PasswordHasher) (string, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return "", oops.Code("AUTH_SERVICE_INVALID").
			With("operation", "generate dummy secret").
			Wrap(err)
	}
	hash, err := hasher.Hash(hex.EncodeToString(secret))
	if err != nil {
		return "", oops.Code("AUTH_SERVICE_INVALID").
			With("operation", "hash dummy secret").
			Errorf("password hasher failed: %v", err)
	}
	return hash, nil
}

// Register creates a new account.
func (s *Service) Register(ctx context.Context, email, password string) (*User, error) {
	normalized, err := ValidateEmail(email)
	if err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(normalized, hash, s.clock.Now())
	if err != nil {
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, oops.Code(CodeDuplicateEmail).Errorf("an account with this email already exists")
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String())
	return user, nil
}

// Login authenticates a user and issues a session token.
// An unknown email and a wrong password produce the same error, and both run
// a full password verification.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, lookupErr := s.users.GetByEmail(ctx, NormalizeEmail(email))

	var targetHash string
	var userExists bool

	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return nil, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "get user by email").
				Wrap(lookupErr)
		}
		targetHash = s.dummyHash
	} else {
		targetHash = user.PasswordHash
		userExists = true
	}

	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if !userExists {
			return nil, invalidCredentials()
		}
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID.String()).
			Wrap(verifyErr)
	}

	if !userExists || !valid {
		return nil, invalidCredentials()
	}

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgradeHash(ctx, user, password)
	}

	token, expiresAt, err := s.sessions.Issue(user.ID)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "issue session").
			Wrap(err)
	}

	return &LoginResult{Token: token, UserID: user.ID, ExpiresAt: expiresAt}, nil
}

// upgradeHash rehashes a verified password with current parameters.
// The write only lands if the stored hash is still the one that was verified,
// so a reset or password change that commits first is never overwritten.
// Login succeeds regardless of the outcome.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.WarnContext(ctx, "best-effort password hash upgrade failed",
			"user_id", user.ID.String(),
			"operation", "hash",
			"error", err.Error())
		return
	}
	upgraded, err := s.users.UpgradePasswordHash(ctx, user.ID, user.PasswordHash, newHash)
	if err != nil {
		s.logger.WarnContext(ctx, "best-effort password hash upgrade failed",
			"user_id", user.ID.String(),
			"operation", "upgrade_password_hash",
			"error", err.Error())
		return
	}
	if !upgraded {
		s.logger.DebugContext(ctx, "password hash upgrade skipped, stored hash changed",
			"user_id", user.ID.String())
	}
}

// Authenticate verifies a session token and loads its user.
func (s *Service) Authenticate(ctx context.Context, token string) (*User, error) {
	userID, err := s.sessions.Verify(token)
	if err != nil {
		return nil, err
	}
	return s.CurrentUser(ctx, userID)
}

// CurrentUser loads the user behind a verified session.
func (s *Service) CurrentUser(ctx context.Context, userID ulid.ULID) (*User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// The token was validly signed but the account is gone.
			return nil, oops.Code(CodeSessionInvalidSignature).
				With("user_id", userID.String()).
				Errorf("session subject no longer exists")
		}
		return nil, oops.Code("AUTH_CURRENT_USER_FAILED").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return user, nil
}

// ChangePassword replaces the password of an authenticated user after
// re-verifying the current one. Any outstanding reset token is invalidated.
func (s *Service) ChangePassword(ctx context.Context, userID ulid.ULID, currentPassword, newPassword string) error {
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	user, err := s.CurrentUser(ctx, userID)
	if err != nil {
		return err
	}

	valid, err := s.hasher.Verify(currentPassword, user.PasswordHash)
	if err != nil {
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "verify password").
			With("user_id", userID.String()).
			Wrap(err)
	}
	if !valid {
		return invalidCredentials()
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	if err := s.users.UpdatePassword(ctx, userID, newHash); err != nil {
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "update password").
			With("user_id", userID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "password changed", "user_id", userID.String())
	return nil
}

func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Errorf("invalid email or password")
}
