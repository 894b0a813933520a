package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"contest-review/internal/model"
	"contest-review/internal/repository"
)

// Notifier 通知接口
// 引擎只决定发什么、何时发；调用方不因通知失败回滚业务
type Notifier interface {
	SendAssignmentNotification(ctx context.Context, reviewerID string, count int, deadline time.Time) error
	SendDeadlineWarning(ctx context.Context, reviewerID string, count int, deadline time.Time) error
	SendDisqualification(ctx context.Context, userID, contestID, reason string) error
	SendResultsAvailable(ctx context.Context, userID, contestID string) error
	SendVerificationOutcome(ctx context.Context, userID, submissionID, outcome string) error
}

// notificationPayload 发件箱任务负载
type notificationPayload struct {
	Count        int        `json:"count,omitempty"`
	Deadline     *time.Time `json:"deadline,omitempty"`
	ContestID    string     `json:"contest_id,omitempty"`
	SubmissionID string     `json:"submission_id,omitempty"`
	Reason       string     `json:"reason,omitempty"`
	Outcome      string     `json:"outcome,omitempty"`
}

// outboxNotifier 写入 notification_tasks，由 NotificationDispatcher 异步投递
type outboxNotifier struct {
	repo   *repository.Repository
	now    func() time.Time
	logger *zap.Logger
}

// NewOutboxNotifier 创建基于发件箱的 Notifier
func NewOutboxNotifier(repo *repository.Repository, logger *zap.Logger) Notifier {
	return &outboxNotifier{repo: repo, now: time.Now, logger: logger}
}

func (n *outboxNotifier) SendAssignmentNotification(ctx context.Context, reviewerID string, count int, deadline time.Time) error {
	return n.enqueue(ctx, model.NotifyAssignment, reviewerID, notificationPayload{Count: count, Deadline: &deadline})
}

func (n *outboxNotifier) SendDeadlineWarning(ctx context.Context, reviewerID string, count int, deadline time.Time) error {
	return n.enqueue(ctx, model.NotifyDeadlineWarning, reviewerID, notificationPayload{Count: count, Deadline: &deadline})
}

func (n *outboxNotifier) SendDisqualification(ctx context.Context, userID, contestID, reason string) error {
	return n.enqueue(ctx, model.NotifyDisqualified, userID, notificationPayload{ContestID: contestID, Reason: reason})
}

func (n *outboxNotifier) SendResultsAvailable(ctx context.Context, userID, contestID string) error {
	return n.enqueue(ctx, model.NotifyResults, userID, notificationPayload{ContestID: contestID})
}

func (n *outboxNotifier) SendVerificationOutcome(ctx context.Context, userID, submissionID, outcome string) error {
	return n.enqueue(ctx, model.NotifyVerification, userID, notificationPayload{SubmissionID: submissionID, Outcome: outcome})
}

func (n *outboxNotifier) enqueue(ctx context.Context, kind, userID string, payload notificationPayload) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	task := model.NotificationTask{
		Kind:          kind,
		UserID:        userID,
		Payload:       datatypes.JSON(b),
		Status:        model.TaskPending,
		NextAttemptAt: n.now(),
	}
	if err := n.repo.Notification.Enqueue(ctx, []model.NotificationTask{task}); err != nil {
		n.logger.Error("写入通知发件箱失败",
			zap.String("kind", kind), zap.String("user_id", userID), zap.Error(err))
		return err
	}
	return nil
}
