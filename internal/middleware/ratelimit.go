package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	rateLimitPrefix  = "rl:wallet:"
	rateLimitWindow  = time.Minute
	defaultRateLimit = 30
)

// PhoneRateLimit caps mutations per route and phone number to maxPerMin
// within a fixed one-minute window. Requests without a phone in the body are
// counted against the client IP. Each route keeps its own bucket.
func PhoneRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = defaultRateLimit
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		ctx := c.UserContext()
		key := rateLimitKey(c)
		cnt, err := cache.Incr(ctx, key).Result()
		if err != nil {
			return c.Next() // fail open
		}
		if cnt == 1 {
			cache.Expire(ctx, key, rateLimitWindow)
		}
		if cnt <= int64(maxPerMin) {
			return c.Next()
		}
		if ttl, err := cache.TTL(ctx, key).Result(); err == nil && ttl > 0 {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int((ttl+time.Second-1)/time.Second)))
		}
		return fiber.NewError(http.StatusTooManyRequests, "too many wallet requests, try again later")
	}
}

func rateLimitKey(c *fiber.Ctx) string {
	var req struct {
		Phone string `json:"phone"`
	}
	_ = c.BodyParser(&req)
	subject := strings.TrimSpace(req.Phone)
	if subject == "" {
		subject = c.IP()
	}
	return rateLimitPrefix + c.Route().Path + ":" + subject
}
