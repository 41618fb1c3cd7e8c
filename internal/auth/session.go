// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	SessionTokenExpiry   = time.Hour // 1 hour expiry
	SessionIssuerName    = "latchkey"
	MinSessionSecretSize = 32
)

// SessionIssuer signs and verifies stateless HS256 bearer tokens.
// There is no revocation: expiry is the only lifetime bound.
type SessionIssuer struct {
	secret []byte
	ttl    time.Duration
	clock  Clock
}

// NewSessionIssuer creates a SessionIssuer.
// The secret must be at least MinSessionSecretSize bytes.
func NewSessionIssuer(secret []byte, ttl time.Duration, clock Clock) (*SessionIssuer, error) {
	if len(secret) < MinSessionSecretSize {
		return nil, oops.Code("SESSION_INVALID_SECRET").
			With("min", MinSessionSecretSize).
			Errorf("session secret must be at least %d bytes", MinSessionSecretSize)
	}
	if ttl <= 0 {
		ttl = SessionTokenExpiry
	}
	if clock == nil {
		clock = SystemClock{}
	}

	key := make([]byte, len(secret))
	copy(key, secret)

	return &SessionIssuer{secret: key, ttl: ttl, clock: clock}, nil
}

// Issue creates a signed token for userID.
func (s *SessionIssuer) Issue(userID ulid.ULID) (string, time.Time, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return "", time.Time{}, oops.Code("SESSION_INVALID_SUBJECT").Errorf("user ID cannot be zero")
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.ttl)

	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		Issuer:    SessionIssuerName,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, oops.Code("SESSION_SIGN_FAILED").
			With("user_id", userID.String()).
			Wrap(err)
	}

	return token, expiresAt, nil
}

// Verify checks the token signature and expiry and returns its subject.
func (s *SessionIssuer) Verify(token string) (ulid.ULID, error) {
	if token == "" {
		return ulid.ULID{}, oops.Code(CodeSessionInvalidSignature).Errorf("session token cannot be empty")
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(SessionIssuerName),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ulid.ULID{}, oops.Code(CodeSessionExpired).Errorf("session has expired")
		}
		return ulid.ULID{}, oops.Code(CodeSessionInvalidSignature).Wrap(err)
	}

	userID, err := ulid.Parse(claims.Subject)
	if err != nil {
		return ulid.ULID{}, oops.Code(CodeSessionInvalidSignature).
			With("operation", "parse subject").
			Wrap(err)
	}

	return userID, nil
}
