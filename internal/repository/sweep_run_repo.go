package repository

import (
	"context"

	"gorm.io/gorm"

	"contest-review/internal/model"
)

// SweepRunRepository 清扫运行记录数据访问接口
type SweepRunRepository interface {
	Create(ctx context.Context, run *model.SweepRun) error
	Finish(ctx context.Context, run *model.SweepRun) error
	ListRecent(ctx context.Context, limit int) ([]model.SweepRun, error)
}

type sweepRunRepo struct {
	db *gorm.DB
}

func NewSweepRunRepo(db *gorm.DB) SweepRunRepository {
	return &sweepRunRepo{db: db}
}

func (r *sweepRunRepo) Create(ctx context.Context, run *model.SweepRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *sweepRunRepo) Finish(ctx context.Context, run *model.SweepRun) error {
	return r.db.WithContext(ctx).
		Model(&model.SweepRun{}).
		Where("run_id = ?", run.RunID).
		Updates(map[string]interface{}{
			"finished_at": run.FinishedAt,
			"expired":     run.Expired,
			"reassigned":  run.Reassigned,
			"reminded":    run.Reminded,
			"warnings":    run.Warnings,
			"errors":      run.Errors,
		}).Error
}

func (r *sweepRunRepo) ListRecent(ctx context.Context, limit int) ([]model.SweepRun, error) {
	var runs []model.SweepRun
	err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}
