package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript increments the window counter and returns it with the
// remaining window in milliseconds.
var fixedWindowScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {n, ttl}
`)

// RedisLookupRateLimiter throttles portal lookups across instances with a
// fixed window counter per client.
type RedisLookupRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisLookupRateLimiter(client redis.UniversalClient, prefix string) *RedisLookupRateLimiter {
	return &RedisLookupRateLimiter{client: client, prefix: limiterPrefix(prefix)}
}

func (r *RedisLookupRateLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	if r == nil || r.client == nil || limit <= 0 || window <= 0 {
		return 0, 0, nil
	}
	key, ok := limiterKey(r.prefix, scope, subject)
	if !ok {
		return 0, 0, nil
	}

	windowMs := window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	reply, err := fixedWindowScript.Run(ctx, r.client, []string{key}, windowMs).Result()
	if err != nil {
		return 0, 0, err
	}
	return parseLimiterReply(reply, windowMs)
}

func limiterPrefix(prefix string) string {
	p := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if p == "" {
		return "schoolfees:rate_limit"
	}
	return p
}

func limiterKey(prefix, scope, subject string) (string, bool) {
	scope = strings.TrimSpace(scope)
	subject = strings.TrimSpace(subject)
	if scope == "" || subject == "" {
		return "", false
	}
	return prefix + ":" + scope + ":" + subject, true
}

// parseLimiterReply converts the script reply into a count and a retry-after
// value rounded up to whole seconds.
func parseLimiterReply(reply interface{}, windowMs int64) (int, int, error) {
	values, ok := reply.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected rate limiter reply: %T", reply)
	}
	count, ok := values[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected rate limiter count: %T", values[0])
	}
	ttlMs, ok := values[1].(int64)
	if !ok {
		return int(count), 0, fmt.Errorf("unexpected rate limiter ttl: %T", values[1])
	}
	if ttlMs < 0 {
		ttlMs = windowMs
	}

	retryAfter := int((ttlMs + 999) / 1000)
	if retryAfter < 1 {
		retryAfter = 1
	}
	return int(count), retryAfter, nil
}
