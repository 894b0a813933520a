package repository

import (
	"context"

	"gorm.io/gorm"

	"contest-review/internal/model"
	pkgerrors "contest-review/pkg/errors"
)

// SubmissionRepository 作品数据访问接口
type SubmissionRepository interface {
	GetByID(ctx context.Context, id string) (*model.Submission, error)
	ListByContestStatuses(ctx context.Context, contestID string, statuses []string) ([]model.Submission, error)
	// ListByStatus 跨比赛按状态查询
	ListByStatus(ctx context.Context, status string) ([]model.Submission, error)
	ListByAuthor(ctx context.Context, contestID, authorID string) ([]model.Submission, error)
	// TransitionStatus 条件更新状态：当前状态不等于 from 时返回 ErrStatusGuard
	TransitionStatus(ctx context.Context, id, from, to string) error
	// ResolveVerification 复核完成：写入最终状态与复核结论
	ResolveVerification(ctx context.Context, id, to, outcome string) error
	// Disqualify 取消作者在该比赛中所有未取消作品的资格，返回受影响行数
	Disqualify(ctx context.Context, contestID, authorID, reason string) (int64, error)
	MarkFinalists(ctx context.Context, contestID string, ids []string) error
}

type submissionRepo struct {
	db *gorm.DB
}

func NewSubmissionRepo(db *gorm.DB) SubmissionRepository {
	return &submissionRepo{db: db}
}

func (r *submissionRepo) GetByID(ctx context.Context, id string) (*model.Submission, error) {
	var sub model.Submission
	err := r.db.WithContext(ctx).Where("submission_id = ?", id).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *submissionRepo) ListByContestStatuses(ctx context.Context, contestID string, statuses []string) ([]model.Submission, error) {
	var subs []model.Submission
	err := r.db.WithContext(ctx).
		Where("contest_id = ? AND status IN ?", contestID, statuses).
		Order("submission_id ASC").
		Find(&subs).Error
	return subs, err
}

func (r *submissionRepo) ListByStatus(ctx context.Context, status string) ([]model.Submission, error) {
	var subs []model.Submission
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("submission_id ASC").
		Find(&subs).Error
	return subs, err
}

func (r *submissionRepo) ListByAuthor(ctx context.Context, contestID, authorID string) ([]model.Submission, error) {
	var subs []model.Submission
	err := r.db.WithContext(ctx).
		Where("contest_id = ? AND author_id = ?", contestID, authorID).
		Order("submission_id ASC").
		Find(&subs).Error
	return subs, err
}

func (r *submissionRepo) TransitionStatus(ctx context.Context, id, from, to string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Submission{}).
		Where("submission_id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":  to,
			"version": gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrStatusGuard
	}
	return nil
}

func (r *submissionRepo) ResolveVerification(ctx context.Context, id, to, outcome string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Submission{}).
		Where("submission_id = ? AND status = ?", id, model.SubmissionPeerVerificationPending).
		Updates(map[string]interface{}{
			"status":               to,
			"verification_outcome": outcome,
			"version":              gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrStatusGuard
	}
	return nil
}

func (r *submissionRepo) Disqualify(ctx context.Context, contestID, authorID, reason string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Submission{}).
		Where("contest_id = ? AND author_id = ? AND status <> ?", contestID, authorID, model.SubmissionDisqualified).
		Updates(map[string]interface{}{
			"status":            model.SubmissionDisqualified,
			"disqualify_reason": reason,
			"is_finalist":       false,
			"version":           gorm.Expr("version + 1"),
		})
	return result.RowsAffected, result.Error
}

func (r *submissionRepo) MarkFinalists(ctx context.Context, contestID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&model.Submission{}).
		Where("contest_id = ? AND submission_id IN ? AND status <> ?", contestID, ids, model.SubmissionDisqualified).
		Updates(map[string]interface{}{
			"is_finalist": true,
			"version":     gorm.Expr("version + 1"),
		}).Error
}
