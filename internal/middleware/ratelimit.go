package middleware

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mixsmvrt/api/pkg/response"
)

const (
	scopeCreateJob = "create_job"
	scopeUpload    = "upload"
)

// RateLimiter is a per-user fixed-window counter in Redis
type RateLimiter struct {
	redis *redis.Client
}

// NewRateLimiter returns a limiter; a nil client disables limiting.
func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{redis: redisClient}
}

// Limit allows maxRequests per user per window. It runs after user auth and
// fails open when Redis errors.
func (rl *RateLimiter) Limit(scope string, maxRequests int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rl.redis == nil || maxRequests <= 0 {
			return c.Next()
		}

		userID := GetUserID(c)
		if userID == "" {
			return c.Next()
		}

		key := "ratelimit:" + scope + ":" + userID
		ctx := c.UserContext()

		n, err := rl.redis.Incr(ctx, key).Result()
		if err != nil {
			slog.Warn("rate limiter unavailable", "key", key, "error", err)
			return c.Next()
		}
		// The window starts with the first hit and is never extended
		if n == 1 {
			if err := rl.redis.Expire(ctx, key, window).Err(); err != nil {
				slog.Warn("rate limiter window not set", "key", key, "error", err)
			}
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(max(int64(maxRequests)-n, 0), 10))

		if n > int64(maxRequests) {
			retry := 1
			if ttl, err := rl.redis.TTL(ctx, key).Result(); err == nil && ttl > time.Second {
				retry = int(ttl.Seconds())
			}
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retry))
			return response.RateLimited(c)
		}

		return c.Next()
	}
}

// CreateJobLimit limits job submissions per hour
func (rl *RateLimiter) CreateJobLimit(maxPerHour int) fiber.Handler {
	return rl.Limit(scopeCreateJob, maxPerHour, time.Hour)
}

// UploadLimit limits upload URL issuance per hour
func (rl *RateLimiter) UploadLimit(maxPerHour int) fiber.Handler {
	return rl.Limit(scopeUpload, maxPerHour, time.Hour)
}
