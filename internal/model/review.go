package model

import "time"

// Review 评审结果 — 对应 reviews，创建后不可修改
// mode=review 时四项评分非空、Decision 为空；mode=verification 时相反
type Review struct {
	ReviewID     string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"review_id"`
	AssignmentID string    `gorm:"type:uuid;not null"                             json:"assignment_id"`
	SubmissionID string    `gorm:"type:uuid;not null"                             json:"submission_id"`
	ReviewerID   string    `gorm:"type:uuid;not null"                             json:"reviewer_id"`
	Mode         string    `gorm:"type:varchar(20);not null"                      json:"mode"`
	Clarity      *int      `gorm:"type:smallint"                                  json:"clarity,omitempty"`
	Argument     *int      `gorm:"type:smallint"                                  json:"argument,omitempty"`
	Style        *int      `gorm:"type:smallint"                                  json:"style,omitempty"`
	MoralDepth   *int      `gorm:"type:smallint"                                  json:"moral_depth,omitempty"`
	Decision     *string   `gorm:"type:varchar(20)"                               json:"decision,omitempty"`
	Comment      string    `gorm:"type:varchar(1000);not null"                    json:"comment"`
	CreatedAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"created_at"`
}

// TableName 指定表名
func (Review) TableName() string { return "reviews" }

// ScoreSnapshot 作品得分快照 — 对应 score_snapshots，由聚合器重算
type ScoreSnapshot struct {
	SubmissionID string    `gorm:"type:uuid;primaryKey"               json:"submission_id"`
	ContestID    string    `gorm:"type:uuid;not null"                 json:"contest_id"`
	Overall      float64   `gorm:"not null"                           json:"overall"`
	Clarity      float64   `gorm:"not null"                           json:"clarity"`
	Argument     float64   `gorm:"not null"                           json:"argument"`
	Style        float64   `gorm:"not null"                           json:"style"`
	MoralDepth   float64   `gorm:"not null"                           json:"moral_depth"`
	ReviewCount  int       `gorm:"not null"                           json:"review_count"`
	Trimmed      bool      `gorm:"not null;default:false"             json:"trimmed"`
	Rank         *int      `json:"rank,omitempty"`
	ComputedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"computed_at"`
}

// TableName 指定表名
func (ScoreSnapshot) TableName() string { return "score_snapshots" }
