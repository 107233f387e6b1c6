package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisRateLimiter is a fixed-window limiter shared by every replica that
// talks to the same Redis.
type RedisRateLimiter struct {
	limit  int
	window time.Duration
	prefix string
	incr   func(ctx context.Context, key string) (int64, error)
}

var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

func NewRedisRateLimiter(rdb *redis.Client, limit int, window time.Duration, prefix string) *RedisRateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "telecare:rl"
	}
	rl := &RedisRateLimiter{limit: limit, window: window, prefix: prefix}
	rl.incr = func(ctx context.Context, key string) (int64, error) {
		res, err := fixedWindowScript.Run(ctx, rdb, []string{key}, rl.window.Milliseconds()).Result()
		if err != nil {
			return 0, err
		}
		return scriptCount(res)
	}
	return rl
}

func scriptCount(res any) (int64, error) {
	switch v := res.(type) {
	case int64:
		return v, nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected redis script result type %T", res)
	}
}

// Middleware limits by client IP. With failOpen, Redis errors let the request
// through instead of answering 503.
func (rl *RedisRateLimiter) Middleware(logger zerolog.Logger, failOpen bool) echo.MiddlewareFunc {
	limit := strconv.Itoa(rl.limit)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := rl.prefix + ":" + c.RealIP()
			count, err := rl.incr(c.Request().Context(), key)
			if err != nil {
				logger.Warn().Err(err).Msg("redis rate limiter error")
				if failOpen {
					return next(c)
				}
				return echo.NewHTTPError(http.StatusServiceUnavailable, "rate limiter unavailable")
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			if count > int64(rl.limit) {
				h.Set("X-RateLimit-Remaining", "0")
				h.Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())+1))
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(int64(rl.limit)-count, 10))
			return next(c)
		}
	}
}
