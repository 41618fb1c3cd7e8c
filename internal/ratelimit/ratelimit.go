// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package ratelimit throttles abuse-prone endpoints such as login and
// forgot-password. Counters live in Redis when configured so that limits hold
// across replicas; otherwise an in-process token bucket is used.
package ratelimit

import (
	"context"
	"time"

	"github.com/samber/oops"
)

// Rule is a named limit of Limit events per Window.
type Rule struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Validate checks that the rule can be enforced.
func (r Rule) Validate() error {
	if r.Name == "" {
		return oops.Code("RATELIMIT_RULE_INVALID").Errorf("rule name is required")
	}
	if r.Limit <= 0 {
		return oops.Code("RATELIMIT_RULE_INVALID").With("rule", r.Name).Errorf("limit must be positive")
	}
	if r.Window <= 0 {
		return oops.Code("RATELIMIT_RULE_INVALID").With("rule", r.Name).Errorf("window must be positive")
	}
	return nil
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether the subject identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}
