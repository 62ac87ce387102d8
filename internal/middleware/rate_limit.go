package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/coa_auth/internal/coa"
	"github.com/congo-pay/coa_auth/internal/ratelimit"
	"github.com/congo-pay/coa_auth/internal/wallet"
)

// KeyFunc extracts the rate limit key from a request.
type KeyFunc func(c *fiber.Ctx) string

// RateLimit caps requests per key per minute. With Redis the count is shared
// across instances; otherwise the in-process limiter applies.
func RateLimit(cache *redis.Client, local *ratelimit.Limiter, maxPerMin int, prefix string, key KeyFunc) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if maxPerMin <= 0 {
			return c.Next()
		}
		k := key(c)
		if cache == nil {
			if !local.Allow(prefix+k, time.Now()) {
				return fiber.NewError(http.StatusTooManyRequests, "too many requests, try again later")
			}
			return c.Next()
		}

		cacheKey := "rl:" + prefix + k
		cnt, err := cache.Incr(c.UserContext(), cacheKey).Result()
		if err == nil && cnt == 1 {
			cache.Expire(c.UserContext(), cacheKey, time.Minute)
		}
		if err != nil {
			return c.Next() // fail-open on cache errors
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many requests, try again later")
		}
		return c.Next()
	}
}

// LoginKey keys login attempts by the wallet in the body, or the client IP.
func LoginKey(c *fiber.Ctx) string {
	var req struct {
		Wallet string `json:"wallet"`
	}
	_ = c.BodyParser(&req)
	if w := strings.TrimSpace(req.Wallet); w != "" {
		return w
	}
	return c.IP()
}

// CallerKey keys requests by the authenticated wallet, or the client IP.
func CallerKey(c *fiber.Ctx) string {
	if caller, ok := c.Locals(coa.CallerLocal).(wallet.Address); ok {
		return caller.String()
	}
	return c.IP()
}
