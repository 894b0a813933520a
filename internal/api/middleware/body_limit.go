package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"contest-review/pkg/response"
)

// BodyLimit 请求体大小限制，只作用于带请求体的方法
// 评审意见与回调负载都很小，超限直接 413
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		if c.Request.ContentLength > maxBytes {
			response.Error(c, http.StatusRequestEntityTooLarge, 10005, "请求体过大")
			c.Abort()
			return
		}
		// Content-Length 缺失或伪造时由 MaxBytesReader 在读取阶段截断
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}

		c.Next()
	}
}
