package redis

import (
	"context"
	"fmt"
	"time"

	"invoice-financing/internal/core/ports"

	goredis "github.com/redis/go-redis/v9"
)

const rateLimitPrefix = "ratelimit:"

var _ ports.RateLimiter = (*RateLimitStore)(nil)

// RateLimitStore implements a fixed-window rate limiter on Redis.
type RateLimitStore struct {
	client goredis.UniversalClient
}

// NewRateLimitStore creates a Redis-backed rate limiter.
func NewRateLimitStore(client goredis.UniversalClient) *RateLimitStore {
	return &RateLimitStore{client: client}
}

// Allow counts one request against key. The window starts with the first hit.
func (s *RateLimitStore) Allow(ctx context.Context, key string, limit int64, window time.Duration) (*ports.RateLimitResult, error) {
	fullKey := rateLimitPrefix + key

	var incr *goredis.IntCmd
	var ttl *goredis.DurationCmd
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		incr = pipe.Incr(ctx, fullKey)
		ttl = pipe.TTL(ctx, fullKey)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rate limit incr: %w", err)
	}

	count := incr.Val()
	remaining := ttl.Val()
	if remaining < 0 {
		// New window, or a key that lost its expiry.
		if err := s.client.Expire(ctx, fullKey, window).Err(); err != nil {
			return nil, fmt.Errorf("rate limit expire: %w", err)
		}
		remaining = window
	}

	left := limit - count
	if left < 0 {
		left = 0
	}

	return &ports.RateLimitResult{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: left,
		ResetAt:   time.Now().Add(remaining).Unix(),
	}, nil
}
