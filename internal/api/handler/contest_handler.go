package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"contest-review/internal/service"
	"contest-review/pkg/response"
)

// ContestHandler 比赛阶段控制（管理端）
type ContestHandler struct {
	assignmentSvc service.AssignmentService
	phaseSvc      service.PhaseService
}

// NewContestHandler 创建 ContestHandler
func NewContestHandler(assignmentSvc service.AssignmentService, phaseSvc service.PhaseService) *ContestHandler {
	return &ContestHandler{assignmentSvc: assignmentSvc, phaseSvc: phaseSvc}
}

// StartPeerReview 开启同行评审并分配评审人；重复调用只补足评审团
// POST /api/v1/contests/:id/peer-review/start
func (h *ContestHandler) StartPeerReview(c *gin.Context) {
	id, ok := MustGetPathID(c, 22001, "比赛ID")
	if !ok {
		return
	}

	result, err := h.assignmentSvc.StartPeerReview(c.Request.Context(), id)
	if err != nil {
		h.handleContestError(c, err)
		return
	}

	response.OK(c, result)
}

// EndPeerReview 结束同行评审
// POST /api/v1/contests/:id/peer-review/end
func (h *ContestHandler) EndPeerReview(c *gin.Context) {
	id, ok := MustGetPathID(c, 22001, "比赛ID")
	if !ok {
		return
	}

	result, err := h.phaseSvc.EndPeerReview(c.Request.Context(), id)
	if err != nil {
		h.handleContestError(c, err)
		return
	}

	response.OK(c, result)
}

func (h *ContestHandler) handleContestError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrContestNotFound):
		response.NotFound(c, 22002, "比赛不存在")
	case errors.Is(err, service.ErrPhaseTransitionInvalid):
		response.Conflict(c, 22003, "比赛当前阶段不允许开启同行评审")
	case errors.Is(err, service.ErrPhaseNotPeerReview):
		response.Conflict(c, 22004, "比赛不处于同行评审阶段")
	case errors.Is(err, service.ErrNoAssignments):
		response.Conflict(c, 22005, "比赛尚未产生任何评审分配")
	case errors.Is(err, service.ErrPhaseConflict):
		response.Conflict(c, 22006, "比赛阶段已被其他操作变更，请刷新后重试")
	default:
		response.InternalError(c)
	}
}
