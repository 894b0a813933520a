package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"contest-review/internal/dto"
	"contest-review/internal/service"
	"contest-review/pkg/response"
)

// AssignmentHandler 评审人视角的 HTTP 处理器
type AssignmentHandler struct {
	assignmentSvc service.AssignmentService
}

// NewAssignmentHandler 创建 AssignmentHandler
func NewAssignmentHandler(assignmentSvc service.AssignmentService) *AssignmentHandler {
	return &AssignmentHandler{assignmentSvc: assignmentSvc}
}

// ListMine 我的评审待办
// GET /api/v1/assignments/me
func (h *AssignmentHandler) ListMine(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	items, err := h.assignmentSvc.ListMyAssignments(c.Request.Context(), userID)
	if err != nil {
		response.InternalError(c)
		return
	}

	response.List(c, items, len(items))
}

// Calendar 我的评审截止时间（iCalendar）
// GET /api/v1/assignments/me/calendar.ics
func (h *AssignmentHandler) Calendar(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	body, err := h.assignmentSvc.MyDeadlineCalendar(c.Request.Context(), userID)
	if err != nil {
		response.InternalError(c)
		return
	}

	response.File(c, "text/calendar; charset=utf-8", "review-deadlines.ics", true, []byte(body))
}

// SubmitReview 提交评审
// POST /api/v1/assignments/:id/review
func (h *AssignmentHandler) SubmitReview(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}
	id, ok := MustGetPathID(c, 21001, "分配ID")
	if !ok {
		return
	}

	var req dto.SubmitReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 21001, "参数校验失败")
		return
	}

	result, err := h.assignmentSvc.SubmitReview(c.Request.Context(), id, userID, &req)
	if err != nil {
		h.handleAssignmentError(c, err)
		return
	}

	response.OK(c, result)
}

func (h *AssignmentHandler) handleAssignmentError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAssignmentNotFound):
		response.NotFound(c, 21002, "评审分配不存在")
	case errors.Is(err, service.ErrAssignmentNotOwned):
		response.Forbidden(c, 21003, "无权提交该评审分配")
	case errors.Is(err, service.ErrAssignmentNotPending):
		response.Conflict(c, 21004, "评审分配已完成或已过期")
	case errors.Is(err, service.ErrAssignmentPastDeadline):
		response.Conflict(c, 21005, "评审分配已超过截止时间")
	case errors.Is(err, service.ErrInvalidReviewShape):
		response.BadRequest(c, 21006, "评审内容与评审模式不匹配")
	default:
		response.InternalError(c)
	}
}
