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
	"github.com/google/uuid"
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

// Window reports the configured sliding-window duration, used by
// callers that need a retry-after fallback when Check itself errors
// (so no per-request ResetAt is available).
func (l *Limiter) Window() time.Duration {
	return l.window
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

// checkScript implements a sliding-window log: each bucket is a sorted
// set keyed by request timestamp. Expiring entries older than the
// window, counting what's left, and (if under the limit) adding the
// new entry all happen inside one EVAL, so a request arriving right at
// a window boundary is counted against the true trailing window rather
// than being able to reset a fixed-window counter to zero (the classic
// 2x-burst-at-the-boundary bypass a fixed window allows).
const checkScript = `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
local count = redis.call("ZCARD", KEYS[1])

local allowed = 0
if count < limit then
	redis.call("ZADD", KEYS[1], now, member)
	redis.call("PEXPIRE", KEYS[1], window)
	count = count + 1
	allowed = 1
end

local reset = now + window
local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
if oldest[2] then
	reset = tonumber(oldest[2]) + window
end

return {allowed, count, reset}
`

// Check evaluates whether user may perform one more action against
// bucket. On any Redis error it fails closed: allowed is false.
func (l *Limiter) Check(ctx context.Context, user, bucket string) (Result, error) {
	key := fmt.Sprintf("ratelimit:%s:%s", bucket, user)
	now := time.Now().UnixMilli()

	res, err := l.client.Eval(checkScript, []string{key}, now, l.window.Milliseconds(), l.limit, uuid.New().String()).Result()
	if err != nil {
		l.log.Error().Err(err).Msg("rate limiter backend unreachable, failing closed")

		return Result{Allowed: false, Remaining: 0, ResetAt: time.Now().Add(l.window)}, nil
	}

	values, ok := res.([]interface{})
	if !ok || len(values) != 3 {
		return Result{Allowed: false}, fmt.Errorf("ratelimit: unexpected script result shape")
	}

	allowed, ok1 := values[0].(int64)
	count, ok2 := values[1].(int64)
	resetMS, ok3 := values[2].(int64)

	if !ok1 || !ok2 || !ok3 {
		return Result{Allowed: false}, fmt.Errorf("ratelimit: unexpected script result types")
	}

	remaining := l.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   allowed == 1,
		Remaining: remaining,
		ResetAt:   time.UnixMilli(resetMS),
	}, nil
}
