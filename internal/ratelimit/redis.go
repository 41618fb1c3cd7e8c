// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

const keyPrefix = "latchkey:ratelimit:"

// NewRedisClient parses redisURL and verifies the server answers.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, oops.Code("RATELIMIT_REDIS_CONFIG_INVALID").Wrap(err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, oops.Code("RATELIMIT_REDIS_UNAVAILABLE").With("addr", opt.Addr).Wrap(err)
	}
	return client, nil
}

// RedisLimiter is a fixed-window counter stored in Redis. Each window gets its
// own key so counters never need resetting; keys expire with their window.
type RedisLimiter struct {
	client redis.Cmdable
	rule   Rule
	now    func() time.Time
}

// NewRedisLimiter creates a RedisLimiter for rule.
func NewRedisLimiter(client redis.Cmdable, rule Rule) (*RedisLimiter, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	return &RedisLimiter{client: client, rule: rule, now: time.Now}, nil
}

// Allow counts one event for key.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.now()
	window := now.UnixNano() / int64(l.rule.Window)
	windowEnd := time.Unix(0, (window+1)*int64(l.rule.Window))
	redisKey := keyPrefix + l.rule.Name + ":" + key + ":" + strconv.FormatInt(window, 10)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, l.rule.Window)
		return nil
	})
	if err != nil {
		return Decision{}, oops.Code("RATELIMIT_REDIS_FAILED").
			With("rule", l.rule.Name).
			Wrap(err)
	}

	count := int(incr.Val())
	if count > l.rule.Limit {
		return Decision{Allowed: false, RetryAfter: windowEnd.Sub(now)}, nil
	}
	return Decision{Allowed: true, Remaining: l.rule.Limit - count}, nil
}
