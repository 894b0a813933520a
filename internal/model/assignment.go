package model

import "time"

// 评审模式
const (
	ModeVerification = "verification" // 付费申诉后的同行复核，二元裁决
	ModeReview       = "review"       // 比赛 peer_review 阶段的四维评分
)

// 分配状态：pending → done | expired，done 与 expired 为终态
const (
	AssignmentPending = "pending"
	AssignmentDone    = "done"
	AssignmentExpired = "expired"
)

// 复核裁决
const (
	DecisionEliminate = "eliminate"
	DecisionReinstate = "reinstate"
)

// EligibleAuthorStatuses 各模式下评审人自身作品须处于的状态
func EligibleAuthorStatuses(mode string) []string {
	if mode == ModeVerification {
		return []string{SubmissionSubmitted, SubmissionEliminated}
	}
	return []string{SubmissionSubmitted, SubmissionReinstated}
}

// Assignment 评审分配 — 对应 assignments
// 过期记录不删除、不再修改，重新分配时新建一行并以 ReplacesID 关联
type Assignment struct {
	AssignmentID     string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"assignment_id"`
	ContestID        string     `gorm:"type:uuid;not null"                             json:"contest_id"`
	SubmissionID     string     `gorm:"type:uuid;not null"                             json:"submission_id"`
	ReviewerID       string     `gorm:"type:uuid;not null"                             json:"reviewer_id"`
	Mode             string     `gorm:"type:varchar(20);not null"                      json:"mode"`
	PanelID          string     `gorm:"type:uuid;not null"                             json:"panel_id"`
	IsControl        bool       `gorm:"not null;default:false"                         json:"-"`
	ExpectedDecision *string    `gorm:"type:varchar(20)"                               json:"-"`
	Status           string     `gorm:"type:varchar(20);not null;default:'pending'"    json:"status"`
	AssignedAt       time.Time  `gorm:"not null"                                       json:"assigned_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	Deadline         time.Time  `gorm:"not null"                                       json:"deadline"`
	ReplacesID       *string    `gorm:"type:uuid"                                      json:"replaces_id,omitempty"`
	RemindedAt       *time.Time `json:"reminded_at,omitempty"`
	// ControlsSettledAt 只在盲审包的目标行上写入，标记对照题已结算
	ControlsSettledAt *time.Time `json:"-"`
	BaseModel

	// 关联
	Submission *Submission `gorm:"foreignKey:SubmissionID;references:SubmissionID" json:"submission,omitempty"`
}

// TableName 指定表名
func (Assignment) TableName() string { return "assignments" }
