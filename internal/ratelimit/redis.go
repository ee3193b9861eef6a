package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript refills and consumes a bucket atomically.
// KEYS[1] = bucket key
// ARGV[1] = refill rate (tokens per second)
// ARGV[2] = capacity
// ARGV[3] = now (unix seconds, microsecond precision)
// ARGV[4] = key ttl (seconds)
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])
if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    tokens = math.min(capacity, tokens + elapsed * rate)
    last_refill = now
end

local allowed = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
end

redis.call("HSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, ttl)
return allowed
`)

// RedisLimiter implements Limiter with a token bucket per key stored in
// Redis, so that every instance shares the same budget.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	rate   float64
	burst  int
	ttl    int
	owned  bool
}

// NewRedisLimiter creates a limiter from a redis:// URL. The client is
// closed by Close.
func NewRedisLimiter(url string, rps float64, burst int) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse redis url: %w", err)
	}
	l := NewRedisLimiterWithClient(redis.NewClient(opts), rps, burst)
	l.owned = true
	return l, nil
}

// NewRedisLimiterWithClient wraps an existing client. Close does not close it.
func NewRedisLimiterWithClient(client *redis.Client, rps float64, burst int) *RedisLimiter {
	if rps <= 0 {
		rps = 1
	}
	// A bucket idle long enough to refill completely is equivalent to a missing one.
	ttl := int(float64(burst)/rps) + 1
	return &RedisLimiter{
		client: client,
		prefix: "menusync:ratelimit:",
		rate:   rps,
		burst:  burst,
		ttl:    ttl,
	}
}

// Ping checks the Redis connection.
func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Allow consumes one token from the shared bucket for key.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := float64(time.Now().UnixMicro()) / 1e6
	res, err := tokenBucketScript.Run(ctx, l.client, []string{l.prefix + key}, l.rate, l.burst, now, l.ttl).Int64()
	if err != nil {
		return false, fmt.Errorf("ratelimit: redis: %w", err)
	}
	return res == 1, nil
}

// Close closes the client if the limiter created it.
func (l *RedisLimiter) Close() error {
	if !l.owned {
		return nil
	}
	return l.client.Close()
}
