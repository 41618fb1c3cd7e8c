// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "context"

// Notifier delivers a password reset token to its owner out-of-band.
// Implementations build the user-facing link; this package never does.
type Notifier interface {
	SendPasswordReset(ctx context.Context, recipientEmail, token string) error
}
