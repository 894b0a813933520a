package model

// User 参与者 — 对应 users
// 只保存评审引擎自有字段；integrity_score 与 qualified_evaluator 仅由引擎修改
type User struct {
	UserID             string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"user_id"`
	DisplayID          string `gorm:"type:varchar(64);not null"                      json:"display_id"`
	IsBanned           bool   `gorm:"not null;default:false"                         json:"is_banned"`
	IntegrityScore     int    `gorm:"not null;default:0"                             json:"integrity_score"`
	QualifiedEvaluator bool   `gorm:"not null;default:false"                         json:"qualified_evaluator"`
	VersionedModel
}

// TableName 指定表名
func (User) TableName() string { return "users" }
