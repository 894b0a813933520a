package model

import (
	"time"

	"gorm.io/datatypes"
)

// 通知类型
const (
	NotifyAssignment      = "assignment"
	NotifyDeadlineWarning = "deadline_warning"
	NotifyDisqualified    = "disqualified"
	NotifyResults         = "results_available"
	NotifyVerification    = "verification_outcome"
)

// 发件箱任务状态
const (
	TaskPending = "pending"
	TaskSent    = "sent"
	TaskFailed  = "failed"
)

// NotificationTask 通知发件箱 — 对应 notification_tasks
// 与创建它的业务事务一同提交，由派发任务异步投递
type NotificationTask struct {
	TaskID        string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"task_id"`
	Kind          string         `gorm:"type:varchar(40);not null"                      json:"kind"`
	UserID        string         `gorm:"type:uuid;not null"                             json:"user_id"`
	Payload       datatypes.JSON `gorm:"type:jsonb;not null"                            json:"payload"`
	Status        string         `gorm:"type:varchar(20);not null;default:'pending'"    json:"status"`
	Attempts      int            `gorm:"not null;default:0"                             json:"attempts"`
	LastError     string         `gorm:"type:varchar(1000);not null;default:''"         json:"last_error"`
	NextAttemptAt time.Time      `gorm:"not null"                                       json:"next_attempt_at"`
	SentAt        *time.Time     `json:"sent_at,omitempty"`
	BaseModel
}

// TableName 指定表名
func (NotificationTask) TableName() string { return "notification_tasks" }

// SweepRun 清扫任务运行记录 — 对应 sweep_runs
type SweepRun struct {
	RunID      string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"run_id"`
	StartedAt  time.Time      `gorm:"not null"                                       json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Expired    int            `gorm:"not null;default:0"                             json:"expired"`
	Reassigned int            `gorm:"not null;default:0"                             json:"reassigned"`
	Reminded   int            `gorm:"not null;default:0"                             json:"reminded"`
	Warnings   datatypes.JSON `gorm:"type:jsonb;not null"                            json:"warnings"`
	Errors     datatypes.JSON `gorm:"type:jsonb;not null"                            json:"errors"`
}

// TableName 指定表名
func (SweepRun) TableName() string { return "sweep_runs" }
