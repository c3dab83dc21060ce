package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimit answers 429 once keyFn's key exhausts its quota. A nil limiter
// disables the check. Limiter errors also answer 429.
func RateLimit(l Limiter, keyFn func(*gin.Context) string, logger *zap.Logger) gin.HandlerFunc {
	if l == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		ok, err := l.Allow(c.Request.Context(), keyFn(c))
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.Error(err))
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many attempts, try again later"})
			return
		}
		c.Next()
	}
}

// ClientParamKey keys on client IP plus the named path parameter.
func ClientParamKey(param string) func(*gin.Context) string {
	return func(c *gin.Context) string {
		return c.ClientIP() + ":" + c.Param(param)
	}
}
