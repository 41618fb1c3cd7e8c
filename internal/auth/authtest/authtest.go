// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package authtest provides test helpers for the auth package.
package authtest

import (
	"context"
	"sync"
	"time"

	"github.com/latchkey/latchkey/internal/auth"
)

// FakeClock is an auth.Clock whose time only moves when told to.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a FakeClock set to now.
func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now}
}

// Now returns the fake current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Delivery is one recorded SendPasswordReset call.
type Delivery struct {
	Email string
	Token string
}

// RecordingNotifier captures reset deliveries instead of sending them.
// Set Err to make every delivery fail after being recorded.
type RecordingNotifier struct {
	mu         sync.Mutex
	deliveries []Delivery
	Err        error
}

// SendPasswordReset records the delivery.
func (n *RecordingNotifier) SendPasswordReset(_ context.Context, recipientEmail, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deliveries = append(n.deliveries, Delivery{Email: recipientEmail, Token: token})
	return n.Err
}

// Deliveries returns a copy of the recorded deliveries.
func (n *RecordingNotifier) Deliveries() []Delivery {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Delivery, len(n.deliveries))
	copy(out, n.deliveries)
	return out
}

// LastToken returns the most recently delivered token, or "" if none.
func (n *RecordingNotifier) LastToken() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.deliveries) == 0 {
		return ""
	}
	return n.deliveries[len(n.deliveries)-1].Token
}

// FastHasher returns an argon2id hasher with the cheapest accepted
// parameters, for tests that exercise real hashing.
func FastHasher() *auth.Argon2idHasher {
	h, err := auth.NewArgon2idHasherWithParams(auth.Argon2Params{Time: 1, MemoryKiB: 8 * 1024, Threads: 1})
	if err != nil {
		panic(err)
	}
	return h
}

// TestSessionSecret is a fixed 32-byte signing secret for tests.
var TestSessionSecret = []byte("0123456789abcdef0123456789abcdef")

// Compile-time interface checks.
var (
	_ auth.Clock    = (*FakeClock)(nil)
	_ auth.Notifier = (*RecordingNotifier)(nil)
)
