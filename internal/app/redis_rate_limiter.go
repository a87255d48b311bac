package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRateLimitPrefix namespaces rate limit keys in Redis.
const DefaultRateLimitPrefix = "bonds:rate_limit"

// minRateLimitWindow is the shortest window Redis is asked to track.
const minRateLimitWindow = time.Second

// windowCounterScript increments the counter of the current window, starts the
// window on the first hit and returns {count, remaining window in ms}.
var windowCounterScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RateLimitDecision is the outcome of one rate limited request.
type RateLimitDecision struct {
	Allowed bool
	// Count is the number of requests seen in the current window, this one included.
	Count int
	// RetryAfter is the time left in the current window.
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, at least one.
func (d RateLimitDecision) RetryAfterSeconds() int {
	seconds := int((d.RetryAfter + time.Second - 1) / time.Second)
	if seconds < 1 {
		return 1
	}
	return seconds
}

// RedisRateLimiter admits at most limit requests per subject in a fixed
// window shared by every replica of the service.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRateLimiter(client redis.UniversalClient, prefix string) *RedisRateLimiter {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = DefaultRateLimitPrefix
	}
	return &RedisRateLimiter{client: client, prefix: prefix}
}

// Allow counts the request and reports whether it stays within limit. A nil
// limiter, a non-positive limit or a blank subject always allows.
func (r *RedisRateLimiter) Allow(ctx context.Context, scope, subject string, limit int, window time.Duration) (RateLimitDecision, error) {
	allowAll := RateLimitDecision{Allowed: true}
	if r == nil || r.client == nil || limit <= 0 {
		return allowAll, nil
	}
	scope = strings.TrimSpace(scope)
	subject = strings.TrimSpace(subject)
	if scope == "" || subject == "" {
		return allowAll, nil
	}
	if window < minRateLimitWindow {
		window = minRateLimitWindow
	}

	count, remaining, err := r.hit(ctx, r.key(scope, subject), window)
	if err != nil {
		return RateLimitDecision{}, err
	}
	return RateLimitDecision{
		Allowed:    count <= limit,
		Count:      count,
		RetryAfter: remaining,
	}, nil
}

func (r *RedisRateLimiter) hit(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	raw, err := windowCounterScript.Run(ctx, r.client, []string{key}, window.Milliseconds()).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("rate limit script: %w", err)
	}
	return parseWindowCounter(raw, window)
}

// parseWindowCounter decodes the {count, ttl_ms} reply of windowCounterScript.
func parseWindowCounter(raw interface{}, window time.Duration) (int, time.Duration, error) {
	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected rate limit reply %T", raw)
	}
	count, ok := values[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected rate limit count %T", values[0])
	}
	ttlMs, ok := values[1].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected rate limit ttl %T", values[1])
	}

	remaining := time.Duration(ttlMs) * time.Millisecond
	if remaining <= 0 || remaining > window {
		remaining = window
	}
	return int(count), remaining, nil
}

func (r *RedisRateLimiter) key(scope, subject string) string {
	return r.prefix + ":" + scope + ":" + subject
}
