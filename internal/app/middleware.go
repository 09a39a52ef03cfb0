package app

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/atom-api/atom/internal/ctxutil"
	"github.com/atom-api/atom/internal/logger"
	"github.com/atom-api/atom/internal/ratelimit"
	"github.com/atom-api/atom/internal/sentry"
)

// requestIDHeaders are checked in order for an ID set by a proxy.
var requestIDHeaders = []string{"X-Request-Id", "X-Correlation-Id"}

// requestIDMiddleware stores a request ID in the request context and echoes
// it back. An ID supplied by the caller is kept; otherwise a UUID is made.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var requestID string
		for _, header := range requestIDHeaders {
			if requestID = c.GetHeader(header); requestID != "" {
				break
			}
		}
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}

		c.Request = c.Request.WithContext(ctxutil.WithRequestID(c.Request.Context(), requestID))
		c.Header("X-Request-Id", requestID)
		sentry.SetTag(c.Request.Context(), "request_id", requestID)
		c.Next()
	}
}

// securityHeadersMiddleware adds security headers to responses.
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy", "default-src 'none'")
		c.Header("X-Permitted-Cross-Domain-Policies", "none")
		c.Next()
	}
}

// rateLimitMiddleware rejects clients that exceed their token bucket with
// 429 and a Retry-After header in whole seconds.
func rateLimitMiddleware(limiter *ratelimit.Keyed) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if limiter.Allow(key) {
			c.Next()
			return
		}
		retry := int(math.Ceil(limiter.RetryAfter(key).Seconds()))
		c.Header("Retry-After", strconv.Itoa(max(retry, 1)))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"detail": "too many requests",
		})
	}
}

// loggingMiddleware logs HTTP requests with status-based log levels:
// 5xx=Error, 4xx=Warn, 404=Debug, 3xx/2xx=Debug.
func loggingMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		status := c.Writer.Status()
		entry := log.WithFields(map[string]any{
			"http_method": method,
			"http_path":   path,
			"http_query":  c.Request.URL.RawQuery,
			"http_status": status,
			"duration_ms": time.Since(start).Milliseconds(),
			"client_ip":   c.ClientIP(),
		})

		ctx := c.Request.Context()
		switch {
		case status >= 500:
			entry.ErrorContext(ctx, "HTTP request failed")
		case status == 404:
			entry.DebugContext(ctx, "HTTP request not found")
		case status >= 400:
			entry.WarnContext(ctx, "HTTP request rejected")
		default:
			entry.DebugContext(ctx, "HTTP request completed")
		}
	}
}
