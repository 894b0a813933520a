package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"contest-review/pkg/response"
)

// MustGetUserID 读取 JWT 中间件注入的 user_id，缺失时写入 401
// 调用方应在 ok=false 时直接 return
func MustGetUserID(c *gin.Context) (string, bool) {
	if id := c.GetString("user_id"); id != "" {
		return id, true
	}
	response.Unauthorized(c, 10002, "未认证")
	return "", false
}

// MustGetPathID 读取路径参数 :id 并校验为 UUID，非法时写入 400
// 主键列均为 uuid 类型，提前拦截避免数据库报类型错误
func MustGetPathID(c *gin.Context, code int, what string) (string, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, code, what+"格式无效")
		return "", false
	}
	return id.String(), true
}
