// Package ratelimit provides the token-bucket limiter the WebSocket handler
// consults before upgrading a new connection; a caller over its allotment
// is rejected with HTTP 429 before any socket exists, so no RateLimited
// (4004) close frame is sent.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether a caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// memoryBucket is one key's local token bucket state.
type memoryBucket struct {
	tokens     float64
	lastRefill time.Time
}

// InMemoryLimiter is a process-local token bucket, used when no Redis
// address is configured. Not suitable across multiple server instances
// sharing one rate-limit budget; RedisLimiter covers that case.
type InMemoryLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*memoryBucket
	rate     float64 // tokens per second
	burst    float64
}

// NewInMemoryLimiter builds a limiter allowing burst immediate requests and
// refilling at rate tokens/second thereafter.
func NewInMemoryLimiter(rate, burst float64) *InMemoryLimiter {
	return &InMemoryLimiter{buckets: make(map[string]*memoryBucket), rate: rate, burst: burst}
}

func (l *InMemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[key]
	if !ok {
		b = &memoryBucket{tokens: l.burst, lastRefill: now}
		l.buckets[key] = b
	}
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * l.rate
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	b.lastRefill = now

	if b.tokens < 1 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

// RedisLimiter implements the same token-bucket policy against a shared
// Redis instance so a fleet of server processes enforces one combined
// budget per key, using a small Lua script for atomicity.
type RedisLimiter struct {
	client *redis.Client
	rate   float64
	burst  float64
}

// NewRedisLimiter builds a limiter backed by client.
func NewRedisLimiter(client *redis.Client, rate, burst float64) *RedisLimiter {
	return &RedisLimiter{client: client, rate: rate, burst: burst}
}

var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local state = redis.call("HMGET", key, "tokens", "ts")
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil then
  tokens = burst
  ts = now
end

local elapsed = math.max(0, now - ts)
tokens = math.min(burst, tokens + elapsed * rate)

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "ts", now)
redis.call("EXPIRE", key, 3600)
return allowed
`)

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := float64(time.Now().UnixNano()) / 1e9
	res, err := tokenBucketScript.Run(ctx, l.client, []string{"ratelimit:" + key}, l.rate, l.burst, now).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}
