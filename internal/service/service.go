package service

import (
	"go.uber.org/zap"

	"contest-review/config"
	"contest-review/internal/repository"
	"contest-review/pkg/identity"
	"contest-review/pkg/mailer"
	"contest-review/pkg/retry"
)

// Infra 服务依赖的外部设施；Cache 与 Locker 可为 nil
type Infra struct {
	Cache    SettingsCache
	Locker   Locker
	Identity identity.Provider
	Mailer   mailer.Sender
}

// Service 所有 Service 的聚合入口
type Service struct {
	Settings       SettingsProvider
	ReviewSettings ReviewSettingsService
	Assignment     AssignmentService
	Sweep          SweepService
	Phase          PhaseService
	Score          ScoreService
	Dispatcher     NotificationDispatcher
}

// NewService 创建 Service 聚合
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	infra Infra,
	logger *zap.Logger,
) *Service {
	policy := retry.NewPolicy(&cfg.Retry)
	settings := NewSettingsProvider(repo, infra.Cache, cfg.Review.SettingsTTL, logger)

	deps := EngineDeps{
		Eligibility:      NewEligibilityResolver(repo, logger),
		Settings:         settings,
		Notifier:         NewOutboxNotifier(repo, logger),
		Retry:            policy,
		Rand:             NewTimeSeededRand(),
		PanelConcurrency: cfg.Review.PanelConcurrency,
	}

	return &Service{
		Settings:       settings,
		ReviewSettings: NewReviewSettingsService(repo, settings, logger),
		Assignment:     NewAssignmentService(repo, deps, logger),
		Sweep:          NewSweepService(repo, deps, infra.Locker, cfg.Review.SweepLockTTL, logger),
		Phase:          NewPhaseService(repo, deps, logger),
		Score:          NewScoreService(repo, settings, logger),
		Dispatcher: NewNotificationDispatcher(repo, infra.Identity, infra.Mailer, policy, DispatcherOptions{
			BatchSize:  cfg.Review.NotificationBatch,
			MaxAttempt: cfg.Review.NotificationMaxTry,
		}, logger),
	}
}
