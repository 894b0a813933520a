package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"contest-review/internal/model"
)

// ScoreRepository 得分快照数据访问接口
type ScoreRepository interface {
	Upsert(ctx context.Context, snap *model.ScoreSnapshot) error
	GetBySubmission(ctx context.Context, submissionID string) (*model.ScoreSnapshot, error)
	// ListByContest 按排名升序，未排名的排在最后
	ListByContest(ctx context.Context, contestID string) ([]model.ScoreSnapshot, error)
	UpdateRank(ctx context.Context, submissionID string, rank int) error
}

type scoreRepo struct {
	db *gorm.DB
}

func NewScoreRepo(db *gorm.DB) ScoreRepository {
	return &scoreRepo{db: db}
}

func (r *scoreRepo) Upsert(ctx context.Context, snap *model.ScoreSnapshot) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "submission_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"overall", "clarity", "argument", "style", "moral_depth",
				"review_count", "trimmed", "computed_at",
			}),
		}).
		Create(snap).Error
}

func (r *scoreRepo) GetBySubmission(ctx context.Context, submissionID string) (*model.ScoreSnapshot, error) {
	var snap model.ScoreSnapshot
	err := r.db.WithContext(ctx).Where("submission_id = ?", submissionID).First(&snap).Error
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (r *scoreRepo) ListByContest(ctx context.Context, contestID string) ([]model.ScoreSnapshot, error) {
	var snaps []model.ScoreSnapshot
	err := r.db.WithContext(ctx).
		Where("contest_id = ?", contestID).
		Order("rank ASC NULLS LAST, overall DESC, submission_id ASC").
		Find(&snaps).Error
	return snaps, err
}

func (r *scoreRepo) UpdateRank(ctx context.Context, submissionID string, rank int) error {
	return r.db.WithContext(ctx).
		Model(&model.ScoreSnapshot{}).
		Where("submission_id = ?", submissionID).
		Update("rank", rank).Error
}
