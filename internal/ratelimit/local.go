// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LocalLimiter keeps one token bucket per key in memory. Buckets idle for
// longer than two windows are evicted during Allow.
type LocalLimiter struct {
	rule  Rule
	limit rate.Limit
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalLimiter creates a LocalLimiter for rule. The bucket refills at
// Limit per Window and holds at most Limit tokens.
func NewLocalLimiter(rule Rule) (*LocalLimiter, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	return &LocalLimiter{
		rule:    rule,
		limit:   rate.Every(rule.Window / time.Duration(rule.Limit)),
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}, nil
}

// Allow takes one token from key's bucket.
func (l *LocalLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.rule.Limit)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	r := b.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Decision{Allowed: false, RetryAfter: delay}, nil
	}
	return Decision{Allowed: true, Remaining: int(b.limiter.TokensAt(now))}, nil
}

func (l *LocalLimiter) sweep(now time.Time) {
	idle := 2 * l.rule.Window
	if now.Sub(l.lastSweep) < idle {
		return
	}
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > idle {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}

// Compile-time interface checks.
var (
	_ Limiter = (*LocalLimiter)(nil)
	_ Limiter = (*RedisLimiter)(nil)
)
