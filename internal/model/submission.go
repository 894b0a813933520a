package model

// 作品状态
// submitted / eliminated / eliminated_accepted 由上游 AI 筛选产生
const (
	SubmissionSubmitted               = "submitted"
	SubmissionPeerVerificationPending = "peer_verification_pending"
	SubmissionEliminated              = "eliminated"
	SubmissionEliminatedAccepted      = "eliminated_accepted"
	SubmissionReinstated              = "reinstated"
	SubmissionDisqualified            = "disqualified"
)

// Submission 参赛作品 — 对应 submissions
type Submission struct {
	SubmissionID        string  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"submission_id"`
	ContestID           string  `gorm:"type:uuid;not null"                             json:"contest_id"`
	AuthorID            string  `gorm:"type:uuid;not null"                             json:"author_id"`
	Status              string  `gorm:"type:varchar(40);not null"                      json:"status"`
	Title               string  `gorm:"type:varchar(300);not null"                     json:"title"`
	Body                string  `gorm:"type:text;not null"                             json:"body"`
	Code                string  `gorm:"type:varchar(32);not null"                      json:"code"`
	IsFinalist          bool    `gorm:"not null;default:false"                         json:"is_finalist"`
	VerificationOutcome *string `gorm:"type:varchar(20)"                               json:"verification_outcome,omitempty"` // reinstated | eliminated
	DisqualifyReason    *string `gorm:"type:varchar(500)"                              json:"disqualify_reason,omitempty"`
	VersionedModel
}

// TableName 指定表名
func (Submission) TableName() string { return "submissions" }
