package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chorus-platform/process-monitor/pkg/cache"
)

// Rate limit: 1000 requests per one-minute window per client.
const rateLimitMaxRequests = int64(1000)

// RateLimiter implements per-client rate limiting backed by the cache.
// Counters live in fixed one-minute windows keyed by client IP, so limits
// hold across replicas sharing the same cache.
func RateLimiter(valkeyCache cache.ValkeyCluster) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if clientIP == "" {
			clientIP = "unknown"
		}

		window := time.Now().Unix() / 60
		key := fmt.Sprintf("rate_limit:%s:%d", clientIP, window)

		// Get current request count
		countBytes, err := valkeyCache.Get(c.Request.Context(), key)
		var currentCount int64 = 0

		if err == nil {
			if count, err := strconv.ParseInt(string(countBytes), 10, 64); err == nil {
				currentCount = count
			}
		}

		if currentCount >= rateLimitMaxRequests {
			c.Header("X-Rate-Limit-Limit", strconv.FormatInt(rateLimitMaxRequests, 10))
			c.Header("X-Rate-Limit-Remaining", "0")
			c.Header("X-Rate-Limit-Reset", strconv.FormatInt((window+1)*60, 10))

			c.JSON(http.StatusTooManyRequests, gin.H{
				"status":      "error",
				"error":       "Rate limit exceeded",
				"retry_after": 60,
			})
			c.Abort()
			return
		}

		// Increment counter
		newCount := currentCount + 1
		valkeyCache.Set(c.Request.Context(), key, newCount, 2*time.Minute)

		// Set rate limit headers
		c.Header("X-Rate-Limit-Limit", strconv.FormatInt(rateLimitMaxRequests, 10))
		c.Header("X-Rate-Limit-Remaining", strconv.FormatInt(rateLimitMaxRequests-newCount, 10))
		c.Header("X-Rate-Limit-Reset", strconv.FormatInt((window+1)*60, 10))

		c.Next()
	}
}
