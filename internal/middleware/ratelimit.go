// Package middleware provides rate limiting functionality.
package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/notehub/collab/internal/config"
	"github.com/notehub/collab/internal/dto"
)

// RateLimiter holds rate limiting configuration and state.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	config   config.RateLimitConfig
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		config:   cfg,
	}
}

// getLimiter gets or creates a rate limiter for a client.
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	if limiter, exists := rl.limiters[key]; exists {
		return limiter
	}

	limiter := rate.NewLimiter(
		rate.Limit(rl.config.RequestsPerMinute)/60,
		rl.config.Burst,
	)
	rl.limiters[key] = limiter

	go func() {
		time.Sleep(10 * time.Minute)
		delete(rl.limiters, key)
	}()

	return limiter
}

// RateLimit middleware applies rate limiting per IP address.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	rl := NewRateLimiter(cfg)

	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		limiter := rl.getLimiter(clientIP)

		if !limiter.Allow() {
			retryAfter := time.Second

			c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			c.Header("X-Rate-Limit-Limit", strconv.Itoa(cfg.RequestsPerMinute))
			c.Header("X-Rate-Limit-Remaining", "0")
			c.Header("X-Rate-Limit-Reset", strconv.FormatInt(time.Now().Add(retryAfter).Unix(), 10))

			rateLimitResponse(c, fmt.Sprintf("limit: %d requests per minute", cfg.RequestsPerMinute))
			return
		}

		c.Header("X-Rate-Limit-Limit", strconv.Itoa(cfg.RequestsPerMinute))
		c.Header("X-Rate-Limit-Remaining", strconv.Itoa(cfg.Burst-1))
		c.Header("X-Rate-Limit-Reset", strconv.FormatInt(time.Now().Add(time.Minute).Unix(), 10))

		c.Next()
	}
}

// UserBasedRateLimit applies rate limiting per authenticated user,
// falling back to IP for unauthenticated requests.
func UserBasedRateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	rl := NewRateLimiter(cfg)

	return func(c *gin.Context) {
		var key string
		if user, ok := CurrentUser(c); ok {
			key = fmt.Sprintf("user:%s", user.ID)
		} else {
			key = fmt.Sprintf("ip:%s", c.ClientIP())
		}

		limiter := rl.getLimiter(key)
		if !limiter.Allow() {
			c.Header("Retry-After", "1")
			rateLimitResponse(c, "per-user rate limit exceeded")
			return
		}

		c.Next()
	}
}

// EndpointRateLimit applies rate limiting per endpoint, independent of
// caller identity.
func EndpointRateLimit(requestsPerMinute, burst int) gin.HandlerFunc {
	rl := NewRateLimiter(config.RateLimitConfig{RequestsPerMinute: requestsPerMinute, Burst: burst})

	return func(c *gin.Context) {
		key := fmt.Sprintf("endpoint:%s:%s", c.Request.Method, c.FullPath())
		limiter := rl.getLimiter(key)

		if !limiter.Allow() {
			rateLimitResponse(c, "endpoint rate limit exceeded")
			return
		}

		c.Next()
	}
}

func rateLimitResponse(c *gin.Context, details string) {
	c.JSON(http.StatusTooManyRequests, dto.ErrorResponse{
		BaseResponse: dto.BaseResponse{
			Success:   false,
			Timestamp: time.Now(),
		},
		Error: &dto.ErrorDetail{
			Code:    "RATE_LIMIT_EXCEEDED",
			Message: "rate limit exceeded, try again later",
			Details: details,
		},
	})
	c.Abort()
}
