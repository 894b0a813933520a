package model

// ReviewSetting 评审运行期参数 — 对应 review_settings（单行强类型）
type ReviewSetting struct {
	Singleton               bool    `gorm:"primaryKey;default:true" json:"-"`
	DeadlineDays            int     `gorm:"not null;default:7"      json:"deadline_days"`
	PanelSize               int     `gorm:"not null;default:10"     json:"panel_size"`
	VerificationPanelSize   int     `gorm:"not null;default:5"      json:"verification_panel_size"`
	MinReviewsForScore      int     `gorm:"not null;default:3"      json:"min_reviews_for_score"`
	TrimThreshold           int     `gorm:"not null;default:5"      json:"trim_threshold"`
	FinalistCount           int     `gorm:"not null;default:10"     json:"finalist_count"`
	MissedReviewPenalty     int     `gorm:"not null;default:1"      json:"missed_review_penalty"`
	ControlFailurePenalty   int     `gorm:"not null;default:1"      json:"control_failure_penalty"`
	DisqualifyOnMiss        bool    `gorm:"not null;default:true"   json:"disqualify_on_miss"`
	WarningWindowStartHours int     `gorm:"not null;default:23"     json:"warning_window_start_hours"`
	WarningWindowEndHours   int     `gorm:"not null;default:24"     json:"warning_window_end_hours"`
	UpdatedBy               *string `gorm:"type:uuid"               json:"updated_by,omitempty"`
	BaseModel
}

// TableName 指定表名
func (ReviewSetting) TableName() string { return "review_settings" }

// DefaultReviewSetting 数据库不可用且无缓存时的兜底参数
func DefaultReviewSetting() ReviewSetting {
	return ReviewSetting{
		Singleton:               true,
		DeadlineDays:            7,
		PanelSize:               10,
		VerificationPanelSize:   5,
		MinReviewsForScore:      3,
		TrimThreshold:           5,
		FinalistCount:           10,
		MissedReviewPenalty:     1,
		ControlFailurePenalty:   1,
		DisqualifyOnMiss:        true,
		WarningWindowStartHours: 23,
		WarningWindowEndHours:   24,
	}
}

// Effective 合并比赛级规则：比赛配置了非零值时覆盖全局值
func (s ReviewSetting) Effective(rules VotingRules) ReviewSetting {
	if rules.DeadlineDays > 0 {
		s.DeadlineDays = rules.DeadlineDays
	}
	if rules.FinalistCount > 0 {
		s.FinalistCount = rules.FinalistCount
	}
	if rules.PanelSize > 0 {
		s.PanelSize = rules.PanelSize
	}
	if rules.VerificationPanelSize > 0 {
		s.VerificationPanelSize = rules.VerificationPanelSize
	}
	return s
}
