package service

import (
	"context"

	"go.uber.org/zap"

	"contest-review/internal/model"
	"contest-review/internal/repository"
)

// EligibilityResolver 计算可担任评审的用户池
type EligibilityResolver interface {
	// ResolveEligibleReviewers 在比赛中拥有符合 mode 状态集的作品、未封禁、
	// 非作者本人且不在 excludeReviewerIDs 中的用户；无人符合时返回空切片而非错误
	ResolveEligibleReviewers(ctx context.Context, contestID, mode, excludeUserID string, excludeReviewerIDs []string) ([]model.User, error)
}

type eligibilityResolver struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewEligibilityResolver 创建 EligibilityResolver
func NewEligibilityResolver(repo *repository.Repository, logger *zap.Logger) EligibilityResolver {
	return &eligibilityResolver{repo: repo, logger: logger}
}

func (r *eligibilityResolver) ResolveEligibleReviewers(ctx context.Context, contestID, mode, excludeUserID string, excludeReviewerIDs []string) ([]model.User, error) {
	exclude := make([]string, 0, len(excludeReviewerIDs)+1)
	if excludeUserID != "" {
		exclude = append(exclude, excludeUserID)
	}
	exclude = append(exclude, excludeReviewerIDs...)

	users, err := r.repo.User.ListEligibleReviewers(ctx, contestID, model.EligibleAuthorStatuses(mode), exclude)
	if err != nil {
		r.logger.Error("查询可评审用户失败",
			zap.String("contest_id", contestID), zap.String("mode", mode), zap.Error(err))
		return nil, err
	}
	if users == nil {
		users = []model.User{}
	}
	return users, nil
}
