package model

import "gorm.io/datatypes"

// 比赛阶段，只允许向前迁移
const (
	PhaseSubmissionsOpen   = "submissions_open"
	PhaseSubmissionsClosed = "submissions_closed"
	PhaseAIFiltering       = "ai_filtering"
	PhasePeerReview        = "peer_review"
	PhasePublicVoting      = "public_voting"
	PhaseFinalized         = "finalized"
)

// phaseOrder 阶段在状态机中的序号
var phaseOrder = map[string]int{
	PhaseSubmissionsOpen:   0,
	PhaseSubmissionsClosed: 1,
	PhaseAIFiltering:       2,
	PhasePeerReview:        3,
	PhasePublicVoting:      4,
	PhaseFinalized:         5,
}

// validPhaseTransitions 合法的阶段迁移
// AI 筛选可跳过：submissions_closed 可直接进入 peer_review
var validPhaseTransitions = map[string][]string{
	PhaseSubmissionsOpen:   {PhaseSubmissionsClosed},
	PhaseSubmissionsClosed: {PhaseAIFiltering, PhasePeerReview},
	PhaseAIFiltering:       {PhasePeerReview},
	PhasePeerReview:        {PhasePublicVoting},
	PhasePublicVoting:      {PhaseFinalized},
}

// CanTransitionPhase 判断阶段迁移是否合法
func CanTransitionPhase(from, to string) bool {
	for _, p := range validPhaseTransitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// IsValidPhase 是否为已知阶段
func IsValidPhase(phase string) bool {
	_, ok := phaseOrder[phase]
	return ok
}

// VotingRules 比赛级评审规则（JSONB），零值字段回退到全局 review_settings
type VotingRules struct {
	DeadlineDays          int  `json:"deadline_days,omitempty"`
	FinalistCount         int  `json:"finalist_count,omitempty"`
	ResultsVisible        bool `json:"results_visible"`
	PanelSize             int  `json:"panel_size,omitempty"`
	VerificationPanelSize int  `json:"verification_panel_size,omitempty"`
}

// Contest 比赛 — 对应 contests
type Contest struct {
	ContestID   string                          `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"contest_id"`
	Title       string                          `gorm:"type:varchar(200);not null"                     json:"title"`
	Phase       string                          `gorm:"type:varchar(30);not null"                      json:"phase"`
	VotingRules datatypes.JSONType[VotingRules] `gorm:"type:jsonb;not null"                            json:"voting_rules"`
	VersionedModel
}

// TableName 指定表名
func (Contest) TableName() string { return "contests" }
