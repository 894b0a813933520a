package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"contest-review/pkg/jwt"
	"contest-review/pkg/response"
)

// calendarTokenParam 日历订阅地址携带 token 的查询参数
// 日历客户端无法设置 Authorization 头，只对 GET *.ics 生效
const calendarTokenParam = "token"

// JWTAuth JWT 认证中间件
// Token 由外部认证服务签发，这里只校验签名、签发方与类型
func JWTAuth(jwtMgr *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, msg := bearerToken(c)
		if raw == "" {
			response.Unauthorized(c, 10002, msg)
			c.Abort()
			return
		}

		claims, err := jwtMgr.ParseToken(raw)
		if err != nil {
			response.Unauthorized(c, 10002, "Token 无效或已过期")
			c.Abort()
			return
		}
		if claims.TokenType != "access" || claims.UserID == "" {
			response.Unauthorized(c, 10002, "Token 类型无效")
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("role", claims.Role)

		c.Next()
	}
}

// bearerToken 取出请求携带的 token；为空时第二个返回值是错误提示
func bearerToken(c *gin.Context) (string, string) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if c.Request.Method == http.MethodGet && strings.HasSuffix(c.Request.URL.Path, ".ics") {
			if t := c.Query(calendarTokenParam); t != "" {
				return t, ""
			}
		}
		return "", "缺少认证头"
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || scheme != "Bearer" || token == "" {
		return "", "认证头格式无效"
	}
	return token, ""
}

// RoleAuth 角色权限中间件，须挂在 JWTAuth 之后
func RoleAuth(allowedRoles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedRoles))
	for _, r := range allowedRoles {
		allowed[r] = true
	}

	return func(c *gin.Context) {
		role := c.GetString("role")
		if role == "" {
			response.Unauthorized(c, 10002, "未认证")
			c.Abort()
			return
		}
		if !allowed[role] {
			response.Forbidden(c, 10003, "无权限访问")
			c.Abort()
			return
		}
		c.Next()
	}
}
