package handler

import (
	"github.com/gin-gonic/gin"

	"contest-review/internal/dto"
	"contest-review/internal/service"
	"contest-review/pkg/response"
)

// SweepHandler 截止清扫手动触发与运行记录
type SweepHandler struct {
	sweepSvc service.SweepService
}

// NewSweepHandler 创建 SweepHandler
func NewSweepHandler(sweepSvc service.SweepService) *SweepHandler {
	return &SweepHandler{sweepSvc: sweepSvc}
}

// RunSweep 立即执行一次清扫；已有清扫在运行时返回 skipped=true
// POST /api/v1/sweeps
func (h *SweepHandler) RunSweep(c *gin.Context) {
	result, err := h.sweepSvc.RunSweep(c.Request.Context())
	if err != nil {
		response.InternalError(c)
		return
	}

	response.OK(c, result)
}

// ListRuns 最近的清扫记录
// GET /api/v1/sweeps?limit=20
func (h *SweepHandler) ListRuns(c *gin.Context) {
	var q dto.RunListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, 24001, "limit 必须在 1-200 之间")
		return
	}

	runs, err := h.sweepSvc.ListRuns(c.Request.Context(), q.GetLimit())
	if err != nil {
		response.InternalError(c)
		return
	}

	response.List(c, runs, len(runs))
}
