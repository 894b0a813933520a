package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"contest-review/pkg/response"
)

// WebhookSecretHeader 支付服务回调携带的共享密钥请求头
const WebhookSecretHeader = "X-Webhook-Secret"

// WebhookAuth 校验回调共享密钥
// secret 为空时拒绝所有回调，避免未配置时对外开放
func WebhookAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(WebhookSecretHeader)
		if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			response.Unauthorized(c, 10006, "回调签名无效")
			c.Abort()
			return
		}
		c.Next()
	}
}
