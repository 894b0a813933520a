package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repository 所有 Repository 的聚合入口
type Repository struct {
	db *gorm.DB

	User         UserRepository
	Contest      ContestRepository
	Submission   SubmissionRepository
	Assignment   AssignmentRepository
	Review       ReviewRepository
	Score        ScoreRepository
	Settings     SettingsRepository
	Notification NotificationRepository
	SweepRun     SweepRunRepository
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db:           db,
		User:         NewUserRepo(db),
		Contest:      NewContestRepo(db),
		Submission:   NewSubmissionRepo(db),
		Assignment:   NewAssignmentRepo(db),
		Review:       NewReviewRepo(db),
		Score:        NewScoreRepo(db),
		Settings:     NewSettingsRepo(db),
		Notification: NewNotificationRepo(db),
		SweepRun:     NewSweepRunRepo(db),
	}
}

// BeginTx 开启事务；单元测试中 db 为 nil 时返回 nil 事务
func (r *Repository) BeginTx(ctx context.Context) (*gorm.DB, error) {
	if r.db == nil {
		return nil, nil
	}
	tx := r.db.WithContext(ctx).Begin()
	return tx, tx.Error
}

// WithTx 返回绑定到事务连接的 Repository；tx 为 nil 时返回自身
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return NewRepository(tx)
}

// Transaction 在单个事务中执行 fn，fn 返回错误或 panic 时回滚
func (r *Repository) Transaction(ctx context.Context, fn func(txRepo *Repository) error) (err error) {
	tx, err := r.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			if tx != nil {
				tx.Rollback()
			}
			panic(p)
		}
	}()

	if err := fn(r.WithTx(tx)); err != nil {
		if tx != nil {
			tx.Rollback()
		}
		return err
	}

	if tx != nil {
		return tx.Commit().Error
	}
	return nil
}
