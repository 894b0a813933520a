package dto

import "time"

// ── 支付回调 ──

// 支付用途
const PurposePeerVerification = "peer_verification"

// 回调处理结果
const (
	PaymentActionAssigned  = "assigned"
	PaymentActionDuplicate = "duplicate"
	PaymentActionIgnored   = "ignored"
)

// PaymentConfirmedRequest 支付确认回调（至少一次投递）
type PaymentConfirmedRequest struct {
	SubmissionID string `json:"submission_id" binding:"required,uuid"`
	Purpose      string `json:"purpose"       binding:"required,max=50"`
	EventID      string `json:"event_id"      binding:"omitempty,max=100"`
}

// PaymentConfirmedResponse 支付确认回调处理结果
type PaymentConfirmedResponse struct {
	SubmissionID string           `json:"submission_id"`
	Action       string           `json:"action"`
	Panel        *PanelAssignment `json:"panel,omitempty"`
}

// PanelAssignment 为单篇作品组建评审团的结果
type PanelAssignment struct {
	SubmissionID string          `json:"submission_id"`
	Mode         string          `json:"mode"`
	Requested    int             `json:"requested"`
	Assigned     int             `json:"assigned"`
	Assignments  int             `json:"assignments"`
	Report       OperationReport `json:"report"`
}

// ── 评审阶段 ──

// StartPeerReviewResponse 开启比赛评审阶段结果
type StartPeerReviewResponse struct {
	ContestID   string          `json:"contest_id"`
	Phase       string          `json:"phase"`
	Submissions int             `json:"submissions"`
	Assignments int             `json:"assignments"`
	Report      OperationReport `json:"report"`
}

// EndPeerReviewResponse 结束评审阶段结果
type EndPeerReviewResponse struct {
	ContestID    string          `json:"contest_id"`
	Phase        string          `json:"phase"`
	Scored       int             `json:"scored"`
	Finalists    []string        `json:"finalists"`
	Penalized    int             `json:"penalized"`
	Disqualified int             `json:"disqualified"`
	Expired      int64           `json:"expired"`
	Report       OperationReport `json:"report"`
}

// ── 评审人视角 ──

// MyAssignmentResponse 评审人待办（盲审视图，不暴露对照标记）
type MyAssignmentResponse struct {
	AssignmentID   string    `json:"assignment_id"`
	PanelID        string    `json:"panel_id"`
	Mode           string    `json:"mode"`
	SubmissionCode string    `json:"submission_code"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	AssignedAt     time.Time `json:"assigned_at"`
	Deadline       time.Time `json:"deadline"`
}

// SubmitReviewRequest 提交评审
// review 模式填写四项 1-5 评分；verification 模式填写 decision
type SubmitReviewRequest struct {
	Clarity    *int    `json:"clarity"     binding:"omitempty,min=1,max=5"`
	Argument   *int    `json:"argument"    binding:"omitempty,min=1,max=5"`
	Style      *int    `json:"style"       binding:"omitempty,min=1,max=5"`
	MoralDepth *int    `json:"moral_depth" binding:"omitempty,min=1,max=5"`
	Decision   *string `json:"decision"    binding:"omitempty,oneof=eliminate reinstate"`
	Comment    string  `json:"comment"     binding:"max=1000"`
}

// SubmitReviewResponse 提交评审结果
type SubmitReviewResponse struct {
	AssignmentID string    `json:"assignment_id"`
	ReviewID     string    `json:"review_id"`
	Status       string    `json:"status"`
	CompletedAt  time.Time `json:"completed_at"`
}

// ── 清扫 ──

// SweepResponse 一次清扫的结果
type SweepResponse struct {
	RunID      string          `json:"run_id,omitempty"`
	Skipped    bool            `json:"skipped"`
	Expired    int             `json:"expired"`
	Reassigned int             `json:"reassigned"`
	Restaffed  int             `json:"restaffed"`
	Reminded   int             `json:"reminded"`
	Report     OperationReport `json:"report"`
}

// DispatchResponse 一次通知派发的结果
type DispatchResponse struct {
	Claimed int `json:"claimed"`
	Sent    int `json:"sent"`
	Retried int `json:"retried"`
	Failed  int `json:"failed"`
}
