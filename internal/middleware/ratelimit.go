package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// PushRateLimit caps pushed transactions per remote IP per minute. Signature
// actors are not verified at this point, so they never pick the bucket.
// Without Redis, or when Redis fails, requests are let through.
func PushRateLimit(cache *redis.Client, maxPerMin int, logger *slog.Logger) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 120
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		client := c.IP()
		key := "cronos:rl:push:" + client

		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err != nil {
			logger.Warn("rate limit unavailable", slog.String("client", client), slog.Any("error", err))
			return c.Next()
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		c.Set("X-RateLimit-Limit", fmt.Sprint(maxPerMin))
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many transactions, try again later")
		}
		return c.Next()
	}
}
