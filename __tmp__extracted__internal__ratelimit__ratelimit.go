// Package ratelimit implements the Rate Limiter (spec §4.9): a
// sliding-window counter backed by Redis, where the check-and-insert
// is a single atomic Lua script to close the classical
// read-then-write bypass race. The limiter fails closed: if Redis is
// unreachable, Check denies the request rather than allowing
// unlimited throughput during an outage.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis"
	"github.com/rs/zerolog"
)

// Result is the outcome of a Check call.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter checks per-bucket request quotas.
type Limiter struct {
	client *redis.Client
	window time.Duration
	limit  int
	log    zerolog.Logger
}

// Config configures window and limit defaults (spec §4.9: 60s / 10).
type Config struct {
	Window time.Duration
	Limit  int
}

// New constructs a Limiter over an existing Redis client.
func New(client *redis.Client, cfg Config, log zerolog.Logger) *Limiter {
	window := cfg.Window
	if window <= 0 {
		window = 60 * time.Second
	}

	limit := cfg.Limit
	if limit <= 0 {
		limit = 10
	}

	return &Limiter{client: client, window: window, limit: limit, log: log.With().Str("component", "ratelimit").Logger()}
}

// checkScript atomically increments the bucket counter, sets its
// expiry on first increment only, and returns the new count. Doing
// this as one EVAL closes the check-then-increment race a naive
// GET-then-SET (or even INCR-then-EXPIRE as two round trips) would
// leave open under concurrent callers.
const checkScript = `
local current = redis.call("INCR", KEYS[1])
if tonumber(current) == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`

// Check evaluates whether user may perform one more action against
// bucket. On any Redis error it fails closed: allowed is false.
func (l *Limiter) Check(ctx context.Context, user, bucket string) (Result, error) {
	key := fmt.Sprintf("ratelimit:%s:%s", bucket, user)

	res, err := l.client.Eval(checkScript, []string{key}, l.window.Milliseconds()).Result()
	if err != nil {
		l.log.Error().Err(err).Msg("rate limiter backend unreachable, failing closed")

		return Result{Allowed: false, Remaining: 0, ResetAt: time.Now().Add(l.window)}, nil
	}

	values, ok := res.([]interface{})
	if !ok || len(values) != 2 {
		return Result{Allowed: false}, fmt.Errorf("ratelimit: unexpected script result shape")
	}

	count, ok1 := values[0].(int64)
	ttlMS, ok2 := values[1].(int64)

	if !ok1 || !ok2 {
		return Result{Allowed: false}, fmt.Errorf("ratelimit: unexpected script result types")
	}

	remaining := l.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	resetAt := time.Now().Add(time.Duration(ttlMS) * time.Millisecond)

	return Result{
		Allowed:   int(count) <= l.limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}


