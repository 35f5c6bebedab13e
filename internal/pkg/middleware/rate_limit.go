package middleware

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/nusapay/qrisgate/internal/pkg/cache"
	"github.com/nusapay/qrisgate/internal/pkg/env"
	"github.com/nusapay/qrisgate/internal/pkg/httpx"
	"github.com/nusapay/qrisgate/internal/pkg/merchantcontext"
)

// RateLimitMiddleware throttles authenticated gateway calls per merchant.
// Runs after GatewayAuthMiddleware so 429s never shadow auth errors. State is
// process-local unless RATE_LIMIT_SHARED is true, in which case it lives in
// Redis and replicas share it.
func RateLimitMiddleware() fiber.Handler {
	max := env.GetEnvInt("RATE_LIMIT_MAX", 120)
	window := env.GetEnvDuration("RATE_LIMIT_WINDOW", 60*time.Second)

	cfg := limiter.Config{
		Max:               max,
		Expiration:        window,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator: func(c *fiber.Ctx) string {
			if id := merchantcontext.MerchantID(c); id != "" {
				return "ratelimit:" + id
			}
			return "ratelimit:anon:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(window.Seconds())))
			return httpx.Fail(c, fiber.StatusTooManyRequests, httpx.CodeRateLimit, "rate limit exceeded")
		},
	}

	if env.GetEnvBool("RATE_LIMIT_SHARED", false) {
		cfg.Storage = newRateLimitStorage()
	}

	return limiter.New(cfg)
}

// newRateLimitStorage reuses the cache connection settings for the limiter's
// Redis backend, on its own database.
func newRateLimitStorage() *redis.Storage {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if client := cache.GetClient(); client != nil {
		if h, p, err := net.SplitHostPort(client.Options().Addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := client.Options().Password; p != "" {
			password = p
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 2,
		Reset:    false,
	})
}
