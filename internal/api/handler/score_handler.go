package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"contest-review/internal/service"
	"contest-review/pkg/response"
)

// ScoreHandler 评分与排名 HTTP 处理器
type ScoreHandler struct {
	scoreSvc service.ScoreService
}

// NewScoreHandler 创建 ScoreHandler
func NewScoreHandler(scoreSvc service.ScoreService) *ScoreHandler {
	return &ScoreHandler{scoreSvc: scoreSvc}
}

// ListScores 比赛排名
// GET /api/v1/contests/:id/scores
func (h *ScoreHandler) ListScores(c *gin.Context) {
	id, ok := MustGetPathID(c, 23002, "比赛ID")
	if !ok {
		return
	}

	scores, err := h.scoreSvc.ListScores(c.Request.Context(), id)
	if err != nil {
		h.handleScoreError(c, err)
		return
	}

	response.List(c, scores, len(scores))
}

// ExportScores 导出排名
// GET /api/v1/contests/:id/scores/export
func (h *ScoreHandler) ExportScores(c *gin.Context) {
	id, ok := MustGetPathID(c, 23002, "比赛ID")
	if !ok {
		return
	}

	buf, filename, err := h.scoreSvc.ExportScores(c.Request.Context(), id)
	if err != nil {
		h.handleScoreError(c, err)
		return
	}

	response.File(c, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", filename, false, buf.Bytes())
}

func (h *ScoreHandler) handleScoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrContestNotFound):
		response.NotFound(c, 23001, "比赛不存在")
	default:
		response.InternalError(c)
	}
}
