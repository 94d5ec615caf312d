package ratelimit

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// GinMiddleware 按请求键限流，超限返回 429。
// keyFunc 为 nil 时使用客户端 IP；limit 无效时不限流；限流器出错时放行。
func GinMiddleware(limiter Limiter, keyFunc func(*gin.Context) string, limit Limit) gin.HandlerFunc {
	if keyFunc == nil {
		keyFunc = func(c *gin.Context) string { return c.ClientIP() }
	}
	if !limit.Valid() {
		return func(c *gin.Context) { c.Next() }
	}
	header := fmt.Sprintf("rate=%g, burst=%d", limit.Rate, limit.Burst)

	return func(c *gin.Context) {
		key := keyFunc(c)
		if key == "" {
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", header)

		allowed, err := limiter.Allow(c.Request.Context(), key, limit)
		if err != nil {
			c.Next()
			return
		}
		if !allowed {
			c.Header("X-RateLimit-Remaining", "0")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
