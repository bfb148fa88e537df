package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/rollcall/rollcall/internal/admission"
	"github.com/rollcall/rollcall/internal/member"
)

const rateLimitPrefix = "rollcall:rl:"

// KeyFunc picks the subject a rate limit is counted against.
type KeyFunc func(c *fiber.Ctx) string

// PhoneOrIP counts against the normalised "phone" field of a JSON body, so
// formatting variants of one number share a budget. Requests without a phone
// fall back to the client IP.
func PhoneOrIP(trustProxy bool) KeyFunc {
	byIP := ByIP(trustProxy)
	return func(c *fiber.Ctx) string {
		var req struct {
			Phone string `json:"phone"`
		}
		_ = c.BodyParser(&req)
		phone := strings.TrimSpace(req.Phone)
		if phone == "" {
			return byIP(c)
		}
		if normalized, err := member.NormalizePhone(phone); err == nil {
			phone = normalized
		}
		return "phone:" + phone
	}
}

// ByIP counts against the caller's IP address, resolved the same way the
// admission gate resolves it.
func ByIP(trustProxy bool) KeyFunc {
	return func(c *fiber.Ctx) string {
		return "ip:" + admission.ClientIP(c, trustProxy)
	}
}

// RateLimit allows maxPerMin requests per subject in a fixed one-minute
// window. It fails open when the cache is nil or unreachable.
func RateLimit(cache *redis.Client, name string, maxPerMin int, keyFn KeyFunc, logger *slog.Logger) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	if keyFn == nil {
		keyFn = ByIP(false)
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		key := rateLimitPrefix + name + ":" + keyFn(c)

		ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
		defer cancel()

		count, err := cache.Incr(ctx, key).Result()
		if err != nil {
			logger.Warn("rate limit check failed", slog.String("limit", name), slog.Any("error", err))
			return c.Next()
		}
		if count == 1 {
			cache.Expire(ctx, key, time.Minute)
		}

		remaining := int64(maxPerMin) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Set("X-RateLimit-Limit", strconv.Itoa(maxPerMin))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		if count > int64(maxPerMin) {
			if ttl, err := cache.TTL(ctx, key).Result(); err == nil && ttl > 0 {
				c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(ttl.Round(time.Second)/time.Second)))
			}
			return fiber.NewError(http.StatusTooManyRequests, "Too many attempts, try again later")
		}
		return c.Next()
	}
}
