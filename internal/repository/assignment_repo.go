package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"contest-review/internal/model"
	pkgerrors "contest-review/pkg/errors"
)

// AssignmentRepository 评审分配数据访问接口（Assignment Store）
// 所有状态迁移都是带前置状态条件的更新，并发写入方无需显式加锁
type AssignmentRepository interface {
	// BulkCreate 批量插入；违反活跃 (submission, reviewer) 唯一约束时返回 ErrDuplicateActive
	BulkCreate(ctx context.Context, items []model.Assignment) error
	GetByID(ctx context.Context, id string) (*model.Assignment, error)
	// Complete pending → done；已非 pending 或已过截止时间返回 ErrStatusGuard
	Complete(ctx context.Context, id string, at time.Time) error
	// ExpireLapsed pending 且 deadline < now 的记录批量置为 expired，返回本次实际迁移的行
	ExpireLapsed(ctx context.Context, now time.Time) ([]model.Assignment, error)
	// ListReviewerIDs 某作品的评审人；activeOnly 时只含 pending/done
	ListReviewerIDs(ctx context.Context, submissionID string, activeOnly bool) ([]string, error)
	ListPendingByReviewer(ctx context.Context, reviewerID string) ([]model.Assignment, error)
	// ListActiveSubmissionIDsByReviewer 评审人持有 pending/done 分配的作品
	ListActiveSubmissionIDsByReviewer(ctx context.Context, reviewerID string) ([]string, error)
	// CountTargets 作品作为真实目标（非对照）在指定模式与状态下的分配数
	CountTargets(ctx context.Context, submissionID, mode, status string) (int64, error)
	// ListDueForWarning 截止时间落在 [from, to) 且尚未提醒的 pending 记录
	ListDueForWarning(ctx context.Context, from, to time.Time) ([]model.Assignment, error)
	MarkReminded(ctx context.Context, ids []string, at time.Time) error
	ListByPanel(ctx context.Context, panelID string) ([]model.Assignment, error)
	// MarkControlsSettled 在盲审包目标行上写入结算时间；已结算或无目标行时返回 ErrStatusGuard
	MarkControlsSettled(ctx context.Context, panelID string, at time.Time) error
	CountByContest(ctx context.Context, contestID, mode string) (int64, error)
	CountByReviewer(ctx context.Context, contestID, mode, reviewerID, status string) (int64, error)
	// ListOutstanding 截止时点仍为 pending 或 expired 的记录
	ListOutstanding(ctx context.Context, contestID, mode string) ([]model.Assignment, error)
	// CloseAtPhaseCutoff 评审阶段截止时关闭该比赛剩余的 pending 记录（置为 expired）
	// 只由阶段控制器在同一事务内、扣分之后调用；按截止时间的过期只走 ExpireLapsed
	CloseAtPhaseCutoff(ctx context.Context, contestID, mode string, now time.Time) (int64, error)
}

type assignmentRepo struct {
	db *gorm.DB
}

func NewAssignmentRepo(db *gorm.DB) AssignmentRepository {
	return &assignmentRepo{db: db}
}

func (r *assignmentRepo) BulkCreate(ctx context.Context, items []model.Assignment) error {
	if len(items) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Create(&items).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return pkgerrors.ErrDuplicateActive
	}
	return err
}

func (r *assignmentRepo) GetByID(ctx context.Context, id string) (*model.Assignment, error) {
	var a model.Assignment
	err := r.db.WithContext(ctx).
		Preload("Submission").
		Where("assignment_id = ?", id).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *assignmentRepo) Complete(ctx context.Context, id string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&model.Assignment{}).
		Where("assignment_id = ? AND status = ? AND deadline >= ?", id, model.AssignmentPending, at).
		Updates(map[string]interface{}{
			"status":       model.AssignmentDone,
			"completed_at": at,
			"updated_at":   at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrStatusGuard
	}
	return nil
}

func (r *assignmentRepo) ExpireLapsed(ctx context.Context, now time.Time) ([]model.Assignment, error) {
	var expired []model.Assignment
	err := r.db.WithContext(ctx).
		Model(&expired).
		Clauses(clause.Returning{}).
		Where("status = ? AND deadline < ?", model.AssignmentPending, now).
		Updates(map[string]interface{}{
			"status":     model.AssignmentExpired,
			"updated_at": now,
		}).Error
	return expired, err
}

func (r *assignmentRepo) ListReviewerIDs(ctx context.Context, submissionID string, activeOnly bool) ([]string, error) {
	var ids []string
	q := r.db.WithContext(ctx).
		Model(&model.Assignment{}).
		Where("submission_id = ?", submissionID)
	if activeOnly {
		q = q.Where("status IN ?", []string{model.AssignmentPending, model.AssignmentDone})
	}
	err := q.Distinct().Pluck("reviewer_id", &ids).Error
	return ids, err
}

func (r *assignmentRepo) ListPendingByReviewer(ctx context.Context, reviewerID string) ([]model.Assignment, error) {
	var items []model.Assignment
	err := r.db.WithContext(ctx).
		Preload("Submission").
		Where("reviewer_id = ? AND status = ?", reviewerID, model.AssignmentPending).
		Order("deadline ASC, panel_id ASC, assignment_id ASC").
		Find(&items).Error
	return items, err
}

func (r *assignmentRepo) ListActiveSubmissionIDsByReviewer(ctx context.Context, reviewerID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.Assignment{}).
		Where("reviewer_id = ? AND status IN ?", reviewerID, []string{model.AssignmentPending, model.AssignmentDone}).
		Pluck("submission_id", &ids).Error
	return ids, err
}

func (r *assignmentRepo) CountTargets(ctx context.Context, submissionID, mode, status string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Assignment{}).
		Where("submission_id = ? AND mode = ? AND status = ? AND is_control = ?", submissionID, mode, status, false).
		Count(&count).Error
	return count, err
}

func (r *assignmentRepo) ListDueForWarning(ctx context.Context, from, to time.Time) ([]model.Assignment, error) {
	var items []model.Assignment
	err := r.db.WithContext(ctx).
		Where("status = ? AND reminded_at IS NULL AND deadline >= ? AND deadline < ?",
			model.AssignmentPending, from, to).
		Order("reviewer_id ASC, deadline ASC").
		Find(&items).Error
	return items, err
}

func (r *assignmentRepo) MarkReminded(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&model.Assignment{}).
		Where("assignment_id IN ? AND reminded_at IS NULL", ids).
		Updates(map[string]interface{}{
			"reminded_at": at,
			"updated_at":  at,
		}).Error
}

func (r *assignmentRepo) ListByPanel(ctx context.Context, panelID string) ([]model.Assignment, error) {
	var items []model.Assignment
	err := r.db.WithContext(ctx).
		Where("panel_id = ?", panelID).
		Order("assignment_id ASC").
		Find(&items).Error
	return items, err
}

func (r *assignmentRepo) MarkControlsSettled(ctx context.Context, panelID string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&model.Assignment{}).
		Where("panel_id = ? AND is_control = ? AND controls_settled_at IS NULL", panelID, false).
		Updates(map[string]interface{}{
			"controls_settled_at": at,
			"updated_at":          at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrStatusGuard
	}
	return nil
}

func (r *assignmentRepo) CountByContest(ctx context.Context, contestID, mode string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Assignment{}).
		Where("contest_id = ? AND mode = ?", contestID, mode).
		Count(&count).Error
	return count, err
}

func (r *assignmentRepo) CountByReviewer(ctx context.Context, contestID, mode, reviewerID, status string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Assignment{}).
		Where("contest_id = ? AND mode = ? AND reviewer_id = ? AND status = ?", contestID, mode, reviewerID, status).
		Count(&count).Error
	return count, err
}

func (r *assignmentRepo) ListOutstanding(ctx context.Context, contestID, mode string) ([]model.Assignment, error) {
	var items []model.Assignment
	err := r.db.WithContext(ctx).
		Where("contest_id = ? AND mode = ? AND status IN ?",
			contestID, mode, []string{model.AssignmentPending, model.AssignmentExpired}).
		Order("reviewer_id ASC, assignment_id ASC").
		Find(&items).Error
	return items, err
}

func (r *assignmentRepo) CloseAtPhaseCutoff(ctx context.Context, contestID, mode string, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Assignment{}).
		Where("contest_id = ? AND mode = ? AND status = ?", contestID, mode, model.AssignmentPending).
		Updates(map[string]interface{}{
			"status":     model.AssignmentExpired,
			"updated_at": now,
		})
	return result.RowsAffected, result.Error
}
