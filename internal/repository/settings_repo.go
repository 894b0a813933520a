package repository

import (
	"context"

	"gorm.io/gorm"

	"contest-review/internal/model"
)

// SettingsRepository 评审参数数据访问接口（单行配置）
type SettingsRepository interface {
	Get(ctx context.Context) (*model.ReviewSetting, error)
	Update(ctx context.Context, setting *model.ReviewSetting) error
}

type settingsRepo struct {
	db *gorm.DB
}

func NewSettingsRepo(db *gorm.DB) SettingsRepository {
	return &settingsRepo{db: db}
}

func (r *settingsRepo) Get(ctx context.Context) (*model.ReviewSetting, error) {
	var setting model.ReviewSetting
	err := r.db.WithContext(ctx).Where("singleton = ?", true).First(&setting).Error
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

func (r *settingsRepo) Update(ctx context.Context, setting *model.ReviewSetting) error {
	return r.db.WithContext(ctx).
		Model(&model.ReviewSetting{}).
		Where("singleton = ?", true).
		Updates(map[string]interface{}{
			"deadline_days":              setting.DeadlineDays,
			"panel_size":                 setting.PanelSize,
			"verification_panel_size":    setting.VerificationPanelSize,
			"min_reviews_for_score":      setting.MinReviewsForScore,
			"trim_threshold":             setting.TrimThreshold,
			"finalist_count":             setting.FinalistCount,
			"missed_review_penalty":      setting.MissedReviewPenalty,
			"control_failure_penalty":    setting.ControlFailurePenalty,
			"disqualify_on_miss":         setting.DisqualifyOnMiss,
			"warning_window_start_hours": setting.WarningWindowStartHours,
			"warning_window_end_hours":   setting.WarningWindowEndHours,
			"updated_by":                 setting.UpdatedBy,
			"updated_at":                 gorm.Expr("CURRENT_TIMESTAMP"),
		}).Error
}
