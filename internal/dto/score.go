package dto

import "time"

// ScoreResponse 作品得分
type ScoreResponse struct {
	SubmissionID string    `json:"submission_id"`
	Rank         *int      `json:"rank"`
	Overall      float64   `json:"overall"`
	Clarity      float64   `json:"clarity"`
	Argument     float64   `json:"argument"`
	Style        float64   `json:"style"`
	MoralDepth   float64   `json:"moral_depth"`
	ReviewCount  int       `json:"review_count"`
	Trimmed      bool      `json:"trimmed"`
	ComputedAt   time.Time `json:"computed_at"`
}

// ── 评审参数 ──

// ReviewSettingsResponse 评审参数
type ReviewSettingsResponse struct {
	DeadlineDays            int       `json:"deadline_days"`
	PanelSize               int       `json:"panel_size"`
	VerificationPanelSize   int       `json:"verification_panel_size"`
	MinReviewsForScore      int       `json:"min_reviews_for_score"`
	TrimThreshold           int       `json:"trim_threshold"`
	FinalistCount           int       `json:"finalist_count"`
	MissedReviewPenalty     int       `json:"missed_review_penalty"`
	ControlFailurePenalty   int       `json:"control_failure_penalty"`
	DisqualifyOnMiss        bool      `json:"disqualify_on_miss"`
	WarningWindowStartHours int       `json:"warning_window_start_hours"`
	WarningWindowEndHours   int       `json:"warning_window_end_hours"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// UpdateReviewSettingsRequest 更新评审参数（仅更新非空字段）
type UpdateReviewSettingsRequest struct {
	DeadlineDays            *int  `json:"deadline_days"              binding:"omitempty,min=1,max=60"`
	PanelSize               *int  `json:"panel_size"                 binding:"omitempty,min=1,max=100"`
	VerificationPanelSize   *int  `json:"verification_panel_size"    binding:"omitempty,min=1,max=100"`
	MinReviewsForScore      *int  `json:"min_reviews_for_score"      binding:"omitempty,min=1,max=100"`
	TrimThreshold           *int  `json:"trim_threshold"             binding:"omitempty,min=3,max=100"`
	FinalistCount           *int  `json:"finalist_count"             binding:"omitempty,min=1,max=1000"`
	MissedReviewPenalty     *int  `json:"missed_review_penalty"      binding:"omitempty,min=0,max=100"`
	ControlFailurePenalty   *int  `json:"control_failure_penalty"    binding:"omitempty,min=0,max=100"`
	DisqualifyOnMiss        *bool `json:"disqualify_on_miss"`
	WarningWindowStartHours *int  `json:"warning_window_start_hours" binding:"omitempty,min=1,max=168"`
	WarningWindowEndHours   *int  `json:"warning_window_end_hours"   binding:"omitempty,min=1,max=168"`
}
