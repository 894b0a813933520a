package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"contest-review/internal/model"
)

// NotificationRepository 通知发件箱数据访问接口
type NotificationRepository interface {
	Enqueue(ctx context.Context, tasks []model.NotificationTask) error
	// ClaimDue 取出到期的 pending 任务并顺延租约；并发派发实例间通过 SKIP LOCKED 互不阻塞
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]model.NotificationTask, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkRetry(ctx context.Context, id string, attempts int, lastErr string, next time.Time) error
	MarkFailed(ctx context.Context, id string, attempts int, lastErr string) error
}

type notificationRepo struct {
	db *gorm.DB
}

func NewNotificationRepo(db *gorm.DB) NotificationRepository {
	return &notificationRepo{db: db}
}

func (r *notificationRepo) Enqueue(ctx context.Context, tasks []model.NotificationTask) error {
	if len(tasks) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&tasks).Error
}

func (r *notificationRepo) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]model.NotificationTask, error) {
	var tasks []model.NotificationTask
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND next_attempt_at <= ?", model.TaskPending, now).
			Order("next_attempt_at ASC").
			Limit(limit).
			Find(&tasks).Error; err != nil {
			return err
		}
		if len(tasks) == 0 {
			return nil
		}
		ids := make([]string, len(tasks))
		for i := range tasks {
			ids[i] = tasks[i].TaskID
		}
		// 租约：派发实例崩溃时任务在租约到期后重新可见
		return tx.Model(&model.NotificationTask{}).
			Where("task_id IN ?", ids).
			Update("next_attempt_at", now.Add(lease)).Error
	})
	return tasks, err
}

func (r *notificationRepo) MarkSent(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.NotificationTask{}).
		Where("task_id = ? AND status = ?", id, model.TaskPending).
		Updates(map[string]interface{}{
			"status":     model.TaskSent,
			"sent_at":    at,
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": at,
		}).Error
}

func (r *notificationRepo) MarkRetry(ctx context.Context, id string, attempts int, lastErr string, next time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.NotificationTask{}).
		Where("task_id = ? AND status = ?", id, model.TaskPending).
		Updates(map[string]interface{}{
			"attempts":        attempts,
			"last_error":      truncate(lastErr, 1000),
			"next_attempt_at": next,
		}).Error
}

func (r *notificationRepo) MarkFailed(ctx context.Context, id string, attempts int, lastErr string) error {
	return r.db.WithContext(ctx).
		Model(&model.NotificationTask{}).
		Where("task_id = ? AND status = ?", id, model.TaskPending).
		Updates(map[string]interface{}{
			"status":     model.TaskFailed,
			"attempts":   attempts,
			"last_error": truncate(lastErr, 1000),
		}).Error
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
