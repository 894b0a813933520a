package repository

import (
	"context"

	"gorm.io/gorm"

	"contest-review/internal/model"
)

// TargetDecision 复核目标作品上的一条非对照裁决
type TargetDecision struct {
	ReviewerID string
	PanelID    string
	Decision   string
}

// ReviewRepository 评审结果数据访问接口
type ReviewRepository interface {
	Create(ctx context.Context, review *model.Review) error
	// ListRatings 某作品全部 review 模式的评分
	ListRatings(ctx context.Context, submissionID string) ([]model.Review, error)
	// ListRatedSubmissionIDs 比赛中至少收到一条评分的作品
	ListRatedSubmissionIDs(ctx context.Context, contestID string) ([]string, error)
	ListByAssignments(ctx context.Context, assignmentIDs []string) ([]model.Review, error)
	// ListTargetDecisions 作为复核目标（非对照）收到的裁决
	ListTargetDecisions(ctx context.Context, submissionID string) ([]TargetDecision, error)
}

type reviewRepo struct {
	db *gorm.DB
}

func NewReviewRepo(db *gorm.DB) ReviewRepository {
	return &reviewRepo{db: db}
}

func (r *reviewRepo) Create(ctx context.Context, review *model.Review) error {
	return r.db.WithContext(ctx).Create(review).Error
}

func (r *reviewRepo) ListRatings(ctx context.Context, submissionID string) ([]model.Review, error) {
	var reviews []model.Review
	err := r.db.WithContext(ctx).
		Where("submission_id = ? AND mode = ?", submissionID, model.ModeReview).
		Order("created_at ASC").
		Find(&reviews).Error
	return reviews, err
}

func (r *reviewRepo) ListRatedSubmissionIDs(ctx context.Context, contestID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.Review{}).
		Joins("JOIN submissions s ON s.submission_id = reviews.submission_id").
		Where("s.contest_id = ? AND reviews.mode = ?", contestID, model.ModeReview).
		Distinct().
		Order("reviews.submission_id ASC").
		Pluck("reviews.submission_id", &ids).Error
	return ids, err
}

func (r *reviewRepo) ListByAssignments(ctx context.Context, assignmentIDs []string) ([]model.Review, error) {
	var reviews []model.Review
	if len(assignmentIDs) == 0 {
		return reviews, nil
	}
	err := r.db.WithContext(ctx).
		Where("assignment_id IN ?", assignmentIDs).
		Find(&reviews).Error
	return reviews, err
}

func (r *reviewRepo) ListTargetDecisions(ctx context.Context, submissionID string) ([]TargetDecision, error) {
	var rows []TargetDecision
	err := r.db.WithContext(ctx).
		Table("reviews").
		Select("reviews.reviewer_id AS reviewer_id, a.panel_id AS panel_id, reviews.decision AS decision").
		Joins("JOIN assignments a ON a.assignment_id = reviews.assignment_id").
		Where("reviews.submission_id = ? AND reviews.mode = ? AND a.is_control = ?",
			submissionID, model.ModeVerification, false).
		Order("reviews.reviewer_id ASC").
		Scan(&rows).Error
	return rows, err
}
