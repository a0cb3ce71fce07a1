package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"docqa/internal/cache"
	"docqa/internal/transport/http/response"
)

// Limiter decides whether a tenant may perform action again.
type Limiter interface {
	Allow(ctx context.Context, tenantID, action string, limit int, window time.Duration) (cache.Decision, error)
}

// RateLimit enforces limit calls of action per window and tenant. It must run
// after AuthJWT. Limiter errors let the request through.
func RateLimit(l Limiter, action string, limit int, window time.Duration, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit <= 0 {
			c.Next()
			return
		}
		tenantID := TenantID(c)
		decision, err := l.Allow(c.Request.Context(), tenantID, action, limit, window)
		if err != nil {
			log.Warn("rate limiter unavailable, allowing request",
				zap.String("tenant_id", tenantID), zap.String("op", action), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if !decision.Allowed {
			retry := int(math.Ceil(decision.RetryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(retry))
			response.Error(c, http.StatusTooManyRequests, response.CodeRateLimited,
				fmt.Sprintf("rate limit exceeded: %d %s per %s", limit, action, window))
			c.Abort()
			return
		}
		c.Next()
	}
}
