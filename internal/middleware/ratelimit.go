package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/spanquery/spanquery/internal/pkg/errors"
)

// RateCounter counts hits inside a sliding window
type RateCounter interface {
	// Hit records one hit for key and returns the number of hits in the
	// window before it
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisRateCounter is a sliding window counter on a Redis sorted set
type RedisRateCounter struct {
	redis *redis.Client
	now   func() time.Time
}

// NewRedisRateCounter creates a new Redis rate counter
func NewRedisRateCounter(client *redis.Client) *RedisRateCounter {
	return &RedisRateCounter{redis: client, now: time.Now}
}

// Hit implements RateCounter
func (r *RedisRateCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	now := r.now()
	windowStart := now.Add(-window).UnixNano()

	pipe := r.redis.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(windowStart, 10))
	count := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	})
	pipe.Expire(ctx, key, window*2)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to count rate: %w", err)
	}

	return count.Val(), nil
}

// WorkspaceRateLimit limits requests per workspace and minute. Requests
// outside workspace routes pass through, and a counter failure lets the
// request through.
func WorkspaceRateLimit(counter RateCounter, maxPerMinute int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ws := c.Params("workspaceId")
		if ws == "" || maxPerMinute <= 0 {
			return c.Next()
		}

		count, err := counter.Hit(c.UserContext(), "ratelimit:workspace:"+ws, time.Minute)
		if err != nil {
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(maxPerMinute))

		if count >= int64(maxPerMinute) {
			c.Set("X-RateLimit-Remaining", "0")
			c.Set("Retry-After", "60")

			return apperrors.RateLimited().WithDetail("workspace_id", ws)
		}

		c.Set("X-RateLimit-Remaining", strconv.FormatInt(int64(maxPerMinute)-count-1, 10))

		return c.Next()
	}
}
