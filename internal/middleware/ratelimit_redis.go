package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimitStore implements RateLimitStore using Redis, so rate limit
// state is shared across API instances. It uses a fixed window counter:
// INCR on a per-key counter whose TTL is set to the window duration on the
// first hit.
type RedisRateLimitStore struct {
	client  *redis.Client
	metrics *Metrics
}

// NewRedisRateLimitStore creates a new Redis-backed rate limit store.
func NewRedisRateLimitStore(client *redis.Client) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client}
}

// WithMetrics attaches middleware metrics so Redis failures (fail-open
// events) are observable.
func (s *RedisRateLimitStore) WithMetrics(metrics *Metrics) *RedisRateLimitStore {
	s.metrics = metrics
	return s
}

// Allow checks if a request from the given key should be allowed.
// On Redis errors the store fails open: availability of the API is worth
// more than strict enforcement of the limit.
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, int) {
	redisKey := "ratelimit:" + key

	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		s.failOpen(ctx, err)
		return true, 0
	}

	if count == 1 {
		// First hit in this window: start the clock.
		if err := s.client.Expire(ctx, redisKey, config.WindowDuration).Err(); err != nil {
			s.failOpen(ctx, err)
			return true, 0
		}
	}

	if count <= int64(config.RequestsPerWindow) {
		return true, 0
	}

	ttl, err := s.client.TTL(ctx, redisKey).Result()
	if err != nil || ttl <= 0 {
		return false, 1
	}
	retryAfter := int(ttl / time.Second)
	if retryAfter <= 0 {
		retryAfter = 1
	}
	return false, retryAfter
}

func (s *RedisRateLimitStore) failOpen(ctx context.Context, err error) {
	slog.WarnContext(ctx, "rate limit store unavailable, failing open", "error", err)
	if s.metrics != nil {
		s.metrics.IncRateLimitRedisError()
	}
}
