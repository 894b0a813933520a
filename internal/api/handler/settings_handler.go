package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"contest-review/internal/dto"
	"contest-review/internal/service"
	"contest-review/pkg/response"
)

// SettingsHandler 评审参数 HTTP 处理器
type SettingsHandler struct {
	settingsSvc service.ReviewSettingsService
}

// NewSettingsHandler 创建 SettingsHandler
func NewSettingsHandler(settingsSvc service.ReviewSettingsService) *SettingsHandler {
	return &SettingsHandler{settingsSvc: settingsSvc}
}

// GetSettings 获取评审参数
// GET /api/v1/review-settings
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	result, err := h.settingsSvc.Get(c.Request.Context())
	if err != nil {
		h.handleSettingsError(c, err)
		return
	}

	response.OK(c, result)
}

// UpdateSettings 更新评审参数（仅更新请求中出现的字段）
// PUT /api/v1/review-settings
func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.UpdateReviewSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 25001, "参数校验失败")
		return
	}

	result, err := h.settingsSvc.Update(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleSettingsError(c, err)
		return
	}

	response.OK(c, result)
}

func (h *SettingsHandler) handleSettingsError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrSettingsNotFound):
		response.NotFound(c, 25002, "评审参数未初始化")
	case errors.Is(err, service.ErrSettingsWarningWindow):
		response.BadRequest(c, 25003, "提醒窗口起点必须早于终点")
	default:
		response.InternalError(c)
	}
}
