package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"contest-review/pkg/response"
)

// RateLimiter 滑动窗口限流器；*redis.Client 实现该接口
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RateLimit 按路由限流：已认证请求按用户计数，否则按来源 IP
// limiter 为 nil 或 Redis 出错时降级放行，限流不应阻断评审提交
func RateLimit(limiter RateLimiter, limit int, window time.Duration) gin.HandlerFunc {
	retryAfter := strconv.Itoa(int(window.Seconds()))

	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		allowed, err := limiter.CheckRateLimit(c.Request.Context(), rateLimitKey(c), limit, window)
		if err != nil {
			_ = c.Error(err)
			c.Next()
			return
		}

		if !allowed {
			c.Header("Retry-After", retryAfter)
			response.Error(c, http.StatusTooManyRequests, 10004, "请求过于频繁，请稍后再试")
			c.Abort()
			return
		}

		c.Next()
	}
}

func rateLimitKey(c *gin.Context) string {
	subject := "ip:" + c.ClientIP()
	if uid := c.GetString("user_id"); uid != "" {
		subject = "user:" + uid
	}
	return "rate_limit:" + c.FullPath() + ":" + subject
}
