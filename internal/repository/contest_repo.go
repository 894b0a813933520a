package repository

import (
	"context"

	"gorm.io/gorm"

	"contest-review/internal/model"
	pkgerrors "contest-review/pkg/errors"
)

// ContestRepository 比赛数据访问接口
type ContestRepository interface {
	GetByID(ctx context.Context, id string) (*model.Contest, error)
	// TransitionPhase 条件更新阶段：仅当当前阶段等于 from 时生效，否则返回 ErrStatusGuard
	TransitionPhase(ctx context.Context, id, from, to string) error
}

type contestRepo struct {
	db *gorm.DB
}

func NewContestRepo(db *gorm.DB) ContestRepository {
	return &contestRepo{db: db}
}

func (r *contestRepo) GetByID(ctx context.Context, id string) (*model.Contest, error) {
	var contest model.Contest
	err := r.db.WithContext(ctx).Where("contest_id = ?", id).First(&contest).Error
	if err != nil {
		return nil, err
	}
	return &contest, nil
}

func (r *contestRepo) TransitionPhase(ctx context.Context, id, from, to string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Contest{}).
		Where("contest_id = ? AND phase = ?", id, from).
		Updates(map[string]interface{}{
			"phase":   to,
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
