package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	"github.com/piresc/schoolbus/internal/pkg/logger"
	"github.com/piresc/schoolbus/internal/utils"
)

// RateLimiterConfig contains configuration for the rate limiter
type RateLimiterConfig struct {
	RedisClient *redis.Client
	Key         string        // Key prefix for Redis
	Limit       int           // Maximum number of requests
	Period      time.Duration // Time period for the limit
}

// RateLimiterMiddleware is a fixed window limiter shared by every instance
// through Redis. The caller is the authenticated user when there is one,
// otherwise the client IP. Redis failures let the request through.
func RateLimiterMiddleware(config RateLimiterConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if config.Limit <= 0 {
				return next(c)
			}

			identifier := c.RealIP()
			if userID, ok := c.Get("user_id").(string); ok && userID != "" {
				identifier = userID
			}
			key := fmt.Sprintf("%s:%s:%s", config.Key, c.Path(), identifier)
			ctx := c.Request().Context()

			var incr *redis.IntCmd
			var ttl *redis.DurationCmd
			_, err := config.RedisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				incr = pipe.Incr(ctx, key)
				ttl = pipe.TTL(ctx, key)
				return nil
			})
			if err != nil {
				logger.Warn("Rate limiter unavailable", logger.ErrorField(err))
				return next(c)
			}
			// first hit of the window, or a key that lost its expiry
			if ttl.Val() < 0 {
				if err := config.RedisClient.Expire(ctx, key, config.Period).Err(); err != nil {
					logger.Warn("Failed to set rate limit window", logger.ErrorField(err))
				}
			}

			count := int(incr.Val())
			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(config.Limit))

			if count > config.Limit {
				reset := ttl.Val()
				if reset < 0 {
					reset = config.Period
				}
				c.Response().Header().Set("X-RateLimit-Remaining", "0")
				c.Response().Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(reset).Unix(), 10))
				c.Response().Header().Set("Retry-After", strconv.FormatInt(int64(reset.Seconds()), 10))
				return utils.ErrorResponseHandler(c, http.StatusTooManyRequests, "rate_limited", "Rate limit exceeded")
			}

			c.Response().Header().Set("X-RateLimit-Remaining", strconv.Itoa(config.Limit-count))
			return next(c)
		}
	}
}

// UserRateLimiter creates a per-minute limiter keyed by user, falling back to IP
func UserRateLimiter(limitPerMinute int, redisClient *redis.Client) echo.MiddlewareFunc {
	return RateLimiterMiddleware(RateLimiterConfig{
		RedisClient: redisClient,
		Key:         "rate:user",
		Limit:       limitPerMinute,
		Period:      time.Minute,
	})
}
