package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"ticket-engine/internal/logger"
	"ticket-engine/internal/ratelimit"
	"ticket-engine/internal/utils"
)

// EnhancedLogger logs every request with latency and status.
func EnhancedLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.LogAPI(
			c.Request.Method,
			c.Request.URL.Path,
			fmt.Sprintf("%d", c.Writer.Status()),
			time.Since(start).String(),
		)
	}
}

// Recovery converts panics into 500 responses instead of dropped connections.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error("API", fmt.Sprintf("Panic in %s %s: %v", c.Request.Method, c.Request.URL.Path, err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, utils.ErrorResponse("internal server error", ""))
			}
		}()
		c.Next()
	}
}

func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("X-Content-Type-Options", "nosniff")
		c.Writer.Header().Set("X-Frame-Options", "DENY")
		c.Writer.Header().Set("X-XSS-Protection", "1; mode=block")
		c.Next()
	}
}

// RateLimit throttles per client IP through Redis, with an in-process
// limiter as a global backstop. A Redis failure fails open: throttling is
// abuse mitigation, not an availability dependency.
func RateLimit(limiter *ratelimit.Limiter, globalRPS rate.Limit, log *logger.Logger) gin.HandlerFunc {
	backstop := rate.NewLimiter(globalRPS, int(globalRPS)*2)

	return func(c *gin.Context) {
		if !backstop.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, utils.ErrorResponse("too many requests", "server is over capacity"))
			return
		}

		result, err := limiter.Limit(c.Request.Context(), c.ClientIP())
		if err != nil {
			log.Warn("API", fmt.Sprintf("Rate limiter unavailable, allowing %s: %v", c.ClientIP(), err))
			c.Next()
			return
		}

		c.Writer.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", result.Remaining))
		c.Writer.Header().Set("X-RateLimit-Reset", result.Reset.Format(time.RFC3339))

		if !result.Allowed {
			log.LogSecurity("RATE_LIMITED", fmt.Sprintf("Client %s over limit on %s", c.ClientIP(), c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, utils.ErrorResponse("too many requests", "retry after the reset time"))
			return
		}
		c.Next()
	}
}
