package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"contest-review/internal/dto"
	"contest-review/internal/service"
	"contest-review/pkg/response"
)

// WebhookHandler 外部系统回调处理器
type WebhookHandler struct {
	assignmentSvc service.AssignmentService
}

// NewWebhookHandler 创建 WebhookHandler
func NewWebhookHandler(assignmentSvc service.AssignmentService) *WebhookHandler {
	return &WebhookHandler{assignmentSvc: assignmentSvc}
}

// PaymentConfirmed 支付确认回调
// POST /api/v1/webhooks/payment-confirmed
// 重复投递返回 200 + action=duplicate，支付服务据此停止重试
func (h *WebhookHandler) PaymentConfirmed(c *gin.Context) {
	var req dto.PaymentConfirmedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 20001, "参数校验失败")
		return
	}

	result, err := h.assignmentSvc.HandlePaymentConfirmed(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSubmissionNotFound):
			response.NotFound(c, 20002, "作品不存在")
		case errors.Is(err, service.ErrSubmissionNotEliminated):
			response.Conflict(c, 20003, "作品不处于可申请复核的淘汰状态")
		default:
			// 5xx 让支付服务重试
			response.InternalError(c)
		}
		return
	}

	response.OK(c, result)
}
