// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"log/slog"
	"time"
)

// Option configures optional collaborators of the services in this package.
type Option func(*options)

type options struct {
	clock    Clock
	logger   *slog.Logger
	resetTTL time.Duration
}

func defaultOptions() options {
	return options{
		clock:    SystemClock{},
		logger:   slog.Default(),
		resetTTL: ResetTokenExpiry,
	}
}

// WithClock sets the time source used for expiry decisions.
func WithClock(clock Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the logger for best-effort failures.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithResetTTL overrides how long a reset token stays valid.
func WithResetTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.resetTTL = ttl
		}
	}
}
