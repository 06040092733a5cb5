// Redis integration for distributed rate limiting (token bucket and sliding window)
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient wraps go-redis for dependency injection and testability
type RedisClient struct {
	Client redis.UniversalClient
}

// --- Distributed Token Bucket ---
// Uses a Lua script for atomicity. The bucket state lives long enough for a
// full refill; an idle key that expires restarts at capacity, which is the
// same state a full refill would reach. Remaining tokens are returned scaled
// by 1000 because Lua numbers come back as truncated integers.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])
local bucket = redis.call('HMGET', key, 'tokens', 'last')
local tokens = tonumber(bucket[1]) or capacity
local last = tonumber(bucket[2]) or now
local delta = math.max(0, now - last)
local refill = delta * refill_rate
local new_tokens = math.min(capacity, tokens + refill)
local allowed = 0
if new_tokens >= requested then
  allowed = 1
  new_tokens = new_tokens - requested
end
redis.call('HMSET', key, 'tokens', new_tokens, 'last', now)
redis.call('EXPIRE', key, ttl)
return {allowed, math.floor(new_tokens * 1000)}
`)

// TakeTokenBucket attempts to take n tokens from the distributed bucket.
// refillRate is tokens per second.
func (rc *RedisClient) TakeTokenBucket(ctx context.Context, key string, capacity int, refillRate float64, n int) (allowed bool, tokensLeft float64, err error) {
	now := time.Now().Unix()
	ttl := int(math.Ceil(float64(capacity)/refillRate)) + 1
	res, err := tokenBucketScript.Run(ctx, rc.Client, []string{key}, capacity, refillRate, now, n, ttl).Result()
	if err != nil {
		return false, 0, err
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) < 2 {
		return false, 0, fmt.Errorf("unexpected redis script result: %v", res)
	}
	allowedInt, _ := vals[0].(int64)
	leftMillis, _ := vals[1].(int64)
	return allowedInt == 1, float64(leftMillis) / 1000, nil
}

// --- Distributed Sliding Window ---
// Uses Redis sorted set for window, with Lua for atomicity
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local n = tonumber(ARGV[4])
redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)
if count + n > limit then
  return {0, count}
else
  for i=1,n do
    redis.call('ZADD', key, now, now + i)
  end
  redis.call('EXPIRE', key, math.ceil(window/1000000000))
  return {1, count + n}
end
`)

// TakeSlidingWindow attempts to record n requests in the distributed window
func (rc *RedisClient) TakeSlidingWindow(ctx context.Context, key string, window time.Duration, limit, n int) (allowed bool, count int64, err error) {
	now := time.Now().UnixNano()
	res, err := slidingWindowScript.Run(ctx, rc.Client, []string{key}, now, window.Nanoseconds(), limit, n).Result()
	if err != nil {
		return false, 0, err
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) < 2 {
		return false, 0, fmt.Errorf("unexpected redis script result: %v", res)
	}
	allowedInt, _ := vals[0].(int64)
	countInt, _ := vals[1].(int64)
	return allowedInt == 1, countInt, nil
}
