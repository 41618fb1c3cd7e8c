// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// PasswordResetService handles password reset operations.
//
// Each user's {ResetTokenHash, ResetTokenExpiresAt} pair moves between
// ResetNone and ResetPending. RequestReset enters (or re-enters) ResetPending;
// CompleteReset is the only transition back to ResetNone. Expired pairs are
// left in place and rejected at validation time.
type PasswordResetService struct {
	users    UserRepository
	hasher   PasswordHasher
	notifier Notifier
	clock    Clock
	ttl      time.Duration
	logger   *slog.Logger
}

// NewPasswordResetService creates a new PasswordResetService.
func NewPasswordResetService(
	users UserRepository,
	hasher PasswordHasher,
	notifier Notifier,
	opts ...Option,
) (*PasswordResetService, error) {
	if users == nil {
		return nil, oops.Code("RESET_SERVICE_INVALID").Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("RESET_SERVICE_INVALID").Errorf("password hasher is required")
	}
	if notifier == nil {
		return nil, oops.Code("RESET_SERVICE_INVALID").Errorf("notifier is required")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &PasswordResetService{
		users:    users,
		hasher:   hasher,
		notifier: notifier,
		clock:    o.clock,
		ttl:      o.resetTTL,
		logger:   o.logger,
	}, nil
}

// TTL returns how long issued reset tokens remain valid.
func (s *PasswordResetService) TTL() time.Duration {
	return s.ttl
}

// RequestReset requests a password reset for a user by email.
// If the user exists, generates a reset token, stores its hash (replacing any
// outstanding token) and hands the plaintext to the notifier.
// If the user doesn't exist, returns success with an empty token to prevent
// email enumeration. Delivery failures are logged, never returned.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) (string, error) {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return "", nil
	}

	user, err := s.users.GetByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "GetByEmail").
			Wrap(err)
	}

	token, hash, err := GenerateResetToken()
	if err != nil {
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "GenerateResetToken").
			Wrap(err)
	}

	expiresAt := s.clock.Now().Add(s.ttl)
	if err := s.users.SetResetToken(ctx, user.ID, hash, expiresAt); err != nil {
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "SetResetToken").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	if err := s.notifier.SendPasswordReset(ctx, user.Email, token); err != nil {
		s.logger.WarnContext(ctx, "password reset delivery failed",
			"code", CodeResetDeliveryFailed,
			"user_id", user.ID.String(),
			"error", err.Error(),
		)
	}

	return token, nil
}

// ValidateToken validates a reset token and returns the associated user ID.
// It has no side effects, so a client can check a token before showing a
// reset form without consuming it.
func (s *PasswordResetService) ValidateToken(ctx context.Context, token string) (ulid.ULID, error) {
	user, _, err := s.lookup(ctx, token)
	if err != nil {
		return ulid.ULID{}, err
	}
	return user.ID, nil
}

// CompleteReset resets a user's password using a valid reset token.
// The password write and the token clear happen in one conditional update, so
// of two concurrent calls with the same token at most one succeeds; the other
// observes RESET_TOKEN_INVALID.
func (s *PasswordResetService) CompleteReset(ctx context.Context, token, newPassword string) error {
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	user, tokenHash, err := s.lookup(ctx, token)
	if err != nil {
		return err
	}

	hashedPassword, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "Hash").
			Wrap(err)
	}

	err = s.users.CompleteReset(ctx, user.ID, tokenHash, hashedPassword, s.clock.Now())
	if err != nil {
		if errors.Is(err, ErrResetConflict) || errors.Is(err, ErrNotFound) {
			return oops.Code(CodeResetTokenInvalid).
				With("user_id", user.ID.String()).
				Errorf("reset token already used")
		}
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "CompleteReset").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "password reset completed", "user_id", user.ID.String())
	return nil
}

// lookup resolves a plaintext token to its user and stored hash, enforcing expiry.
func (s *PasswordResetService) lookup(ctx context.Context, token string) (*User, string, error) {
	if !IsWellFormedResetToken(token) {
		return nil, "", oops.Code(CodeResetTokenInvalid).Errorf("reset token is malformed")
	}

	hash := HashResetToken(token)

	user, err := s.users.GetByResetTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, "", oops.Code(CodeResetTokenInvalid).Errorf("reset token not found")
		}
		return nil, "", oops.Code("RESET_VALIDATE_FAILED").
			With("operation", "GetByResetTokenHash").
			Wrap(err)
	}

	if user.ResetTokenHash == nil || !VerifyResetToken(token, *user.ResetTokenHash) {
		return nil, "", oops.Code(CodeResetTokenInvalid).
			With("user_id", user.ID.String()).
			Errorf("reset token does not match")
	}

	if user.ResetStateAt(s.clock.Now()) == ResetExpired {
		return nil, "", oops.Code(CodeResetTokenExpired).
			With("user_id", user.ID.String()).
			With("expired_at", *user.ResetTokenExpiresAt).
			Errorf("reset token has expired")
	}

	return user, hash, nil
}
