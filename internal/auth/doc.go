// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth provides the credential store contract, password hashing,
// reset-token lifecycle and session tokens for latchkey.
//
// # Domain Types
//
// Users should be created with NewUser, which normalizes and validates the
// email. Direct struct initialization bypasses validation and may create
// invalid state. Repository implementations receive pre-validated users.
//
// # Services
//
// Service types coordinate domain operations:
//   - Service - registration, login, current user, change password
//   - PasswordResetService - forgot/verify/reset password flow
//   - SessionIssuer - signed bearer tokens
//
// Services are created with New* constructors that validate dependencies and
// accept Options for the clock, logger and reset TTL.
package auth
