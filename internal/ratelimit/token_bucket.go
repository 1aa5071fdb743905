package ratelimit

import (
	"context"
	"errors"
	"math"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// takeScript refills the bucket from redis server time and takes one token.
// Tokens are stored in thousandths so the reply stays integral. ARGV is
// {tokens per second, burst, ttl ms}; the reply is {granted, millitokens}.
const takeScript = `
local per_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2]) * 1000
local clock = redis.call("TIME")
local now = clock[1] * 1000 + math.floor(clock[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "milli", "at")
local milli = tonumber(state[1]) or capacity
local at = tonumber(state[2]) or now
milli = math.floor(math.min(capacity, milli + math.max(0, now - at) * per_ms))

local granted = 0
if milli >= 1000 then
  granted = 1
  milli = milli - 1000
end

redis.call("HSET", KEYS[1], "milli", milli, "at", now)
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return {granted, milli}
`

var (
	ErrNotConfigured = errors.New("rate limiter not configured")
	ErrInvalidLimit  = errors.New("rate limiter rate and burst must be positive")
)

// TokenBucket is a redis-backed bucket shared by every replica.
type TokenBucket struct {
	client *redis.Client
	take   *redis.Script
}

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client, take: redis.NewScript(takeScript)}
}

// Allow takes one token from the bucket at key. The bucket holds at most
// burst tokens and refills at rate tokens per second.
func (t *TokenBucket) Allow(ctx context.Context, key string, rate float64, burst int) (Result, error) {
	if t == nil {
		return Result{}, ErrNotConfigured
	}
	if rate <= 0 || burst <= 0 {
		return Result{}, ErrInvalidLimit
	}
	if key == "" {
		return Result{}, errors.New("rate limiter key is empty")
	}

	// A millitoken per millisecond equals a token per second.
	reply, err := t.take.Run(ctx, t.client, []string{key}, rate, burst, idleTTL(rate, burst).Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, err
	}
	if len(reply) != 2 {
		return Result{}, errors.New("unexpected rate limit script reply")
	}

	res := Result{Allowed: reply[0] == 1, Limit: burst, Remaining: int(reply[1] / 1000)}
	if !res.Allowed {
		missing := float64(1000 - reply[1])
		res.RetryAfter = time.Duration(missing / rate * float64(time.Millisecond))
	}
	return res, nil
}

// idleTTL expires a bucket once it has been full for as long as a complete
// refill takes.
func idleTTL(rate float64, burst int) time.Duration {
	return time.Duration(math.Max(1, math.Ceil(2*float64(burst)/rate))) * time.Second
}
