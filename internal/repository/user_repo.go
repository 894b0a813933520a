package repository

import (
	"context"

	"gorm.io/gorm"

	"contest-review/internal/model"
)

// UserRepository 参与者数据访问接口
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	// ListEligibleReviewers 未封禁、在该比赛中至少有一篇作品处于 authorStatuses、且不在 exclude 中的用户
	ListEligibleReviewers(ctx context.Context, contestID string, authorStatuses []string, exclude []string) ([]model.User, error)
	// AdjustIntegrity 原子地对诚信分加减 delta
	AdjustIntegrity(ctx context.Context, userID string, delta int) error
	SetQualified(ctx context.Context, userID string) error
}

type userRepo struct {
	db *gorm.DB
}

func NewUserRepo(db *gorm.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("user_id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) ListEligibleReviewers(ctx context.Context, contestID string, authorStatuses []string, exclude []string) ([]model.User, error) {
	var users []model.User
	q := r.db.WithContext(ctx).
		Where("is_banned = ?", false).
		Where("EXISTS (SELECT 1 FROM submissions s WHERE s.author_id = users.user_id AND s.contest_id = ? AND s.status IN ?)",
			contestID, authorStatuses)
	if len(exclude) > 0 {
		q = q.Where("user_id NOT IN ?", exclude)
	}
	err := q.Order("user_id ASC").Find(&users).Error
	return users, err
}

func (r *userRepo) AdjustIntegrity(ctx context.Context, userID string, delta int) error {
	result := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"integrity_score": gorm.Expr("integrity_score + ?", delta),
			"version":         gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *userRepo) SetQualified(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("user_id = ? AND qualified_evaluator = ?", userID, false).
		Updates(map[string]interface{}{
			"qualified_evaluator": true,
			"version":             gorm.Expr("version + 1"),
		}).Error
}
