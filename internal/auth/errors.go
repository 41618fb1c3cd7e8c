// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned by repositories when the email is already registered.
var ErrDuplicateEmail = errors.New("email already registered")

// ErrResetConflict is returned by UserRepository.CompleteReset when the stored
// reset token no longer matches the expected hash or has expired.
var ErrResetConflict = errors.New("reset token no longer outstanding")

// Error codes carried by oops errors returned from this package.
// The HTTP layer maps them to status codes; anything else is an internal error.
const (
	CodeInvalidEmail       = "AUTH_INVALID_EMAIL"
	CodeWeakPassword       = "AUTH_WEAK_PASSWORD"
	CodeEmptyPassword      = "AUTH_EMPTY_PASSWORD"
	CodeDuplicateEmail     = "AUTH_DUPLICATE_EMAIL"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"

	CodeResetTokenInvalid   = "RESET_TOKEN_INVALID"
	CodeResetTokenExpired   = "RESET_TOKEN_EXPIRED"
	CodeResetDeliveryFailed = "RESET_DELIVERY_FAILED"

	CodeSessionInvalidSignature = "SESSION_INVALID_SIGNATURE"
	CodeSessionExpired          = "SESSION_EXPIRED"
)
