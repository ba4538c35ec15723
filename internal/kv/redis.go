// Package kv wraps the Redis client used for sign-in throttling.
package kv

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter counts attempts per key in a fixed window and locks the key out
// once the limit is exceeded. A nil *Limiter allows everything.
type Limiter struct {
	client  *redis.Client
	limit   int64
	window  time.Duration
	lockout time.Duration
	prefix  string
}

// NewLimiter connects to redisURL. An empty URL returns (nil, nil) so callers
// can run without Redis.
func NewLimiter(redisURL string, limit int64, window, lockout time.Duration) (*Limiter, error) {
	if redisURL == "" {
		return nil, nil
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return &Limiter{
		client:  redis.NewClient(opt),
		limit:   limit,
		window:  window,
		lockout: lockout,
		prefix:  "pcl:login",
	}, nil
}

// Available reports whether a Redis client is configured
func (l *Limiter) Available() bool { return l != nil && l.client != nil }

// Allow records an attempt for key and reports whether it may proceed.
// Errors reading or counting fail open. An attempt over the limit is denied
// even when the lockout cannot be written; the error is still returned.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if !l.Available() {
		return true, nil
	}

	locked, err := l.isLocked(ctx, key)
	if err != nil {
		return true, err
	}
	if locked {
		return false, nil
	}

	pipe := l.client.Pipeline()
	incr := pipe.Incr(ctx, l.rateKey(key))
	pipe.Expire(ctx, l.rateKey(key), l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, err
	}
	if incr.Val() <= l.limit {
		return true, nil
	}

	if l.lockout > 0 {
		if err := l.client.Set(ctx, l.lockKey(key), "1", l.lockout).Err(); err != nil {
			return false, err
		}
	}
	return false, nil
}

// Reset clears the counters for key after a successful sign-in
func (l *Limiter) Reset(ctx context.Context, key string) {
	if !l.Available() {
		return
	}
	_ = l.client.Del(ctx, l.rateKey(key), l.lockKey(key)).Err()
}

// Close releases the Redis connection pool
func (l *Limiter) Close() error {
	if !l.Available() {
		return nil
	}
	return l.client.Close()
}

func (l *Limiter) isLocked(ctx context.Context, key string) (bool, error) {
	_, err := l.client.Get(ctx, l.lockKey(key)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (l *Limiter) rateKey(key string) string {
	return l.prefix + ":rate:" + normalizeKey(key)
}

func (l *Limiter) lockKey(key string) string {
	return l.prefix + ":lock:" + normalizeKey(key)
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
