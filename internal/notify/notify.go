// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package notify delivers password reset emails.
//
// A Dispatcher renders the reset message, then hands it to a Transport on a
// background goroutine with bounded retries. Transports exist for SMTP, the
// Brevo HTTP API, and a writer used in development.
package notify

import (
	"context"
	"errors"
	"fmt"
)

// ErrRejected marks a delivery the provider refused outright. Rejected
// deliveries are not retried.
var ErrRejected = errors.New("delivery rejected")

// Message is a rendered email ready for a Transport.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Transport sends a single rendered message.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// Sender identifies the From address of outgoing mail.
type Sender struct {
	Email string
	Name  string
}

func errRejected(err error) error {
	return fmt.Errorf("%w: %w", ErrRejected, err)
}
