package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"contest-review/internal/dto"
	"contest-review/internal/model"
	"contest-review/internal/repository"
	"contest-review/pkg/redis"
)

// ── 评审参数模块业务错误 ──

var (
	ErrSettingsNotFound      = errors.New("评审参数未初始化")
	ErrSettingsWarningWindow = errors.New("提醒窗口起点必须早于终点")
)

const settingsCacheKey = "review:settings"

// SettingsCache 评审参数的二级缓存（Redis）
type SettingsCache interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	SetBytes(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// SettingsProvider 评审参数读取接口
// 进程内缓存 → Redis → 数据库，缓存生命周期由组合根持有，不使用包级单例
type SettingsProvider interface {
	Get(ctx context.Context) (model.ReviewSetting, error)
	// Refresh 绕过缓存重新读取数据库并回填两级缓存
	Refresh(ctx context.Context) error
	// Invalidate 清空两级缓存
	Invalidate(ctx context.Context) error
}

type cachedSettingsProvider struct {
	repo   *repository.Repository
	cache  SettingsCache // 可为 nil
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger

	mu        sync.RWMutex
	value     *model.ReviewSetting
	expiresAt time.Time
}

// NewSettingsProvider 创建带 TTL 的评审参数读取器
func NewSettingsProvider(repo *repository.Repository, cache SettingsCache, ttl time.Duration, logger *zap.Logger) SettingsProvider {
	return &cachedSettingsProvider{
		repo:   repo,
		cache:  cache,
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
}

func (p *cachedSettingsProvider) Get(ctx context.Context) (model.ReviewSetting, error) {
	p.mu.RLock()
	if p.value != nil && p.now().Before(p.expiresAt) {
		v := *p.value
		p.mu.RUnlock()
		return v, nil
	}
	p.mu.RUnlock()

	if p.cache != nil {
		b, err := p.cache.GetBytes(ctx, settingsCacheKey)
		if err == nil {
			var s model.ReviewSetting
			if jsonErr := json.Unmarshal(b, &s); jsonErr == nil {
				p.store(&s)
				return s, nil
			}
		} else if !errors.Is(err, redis.ErrCacheMiss) {
			p.logger.Warn("读取评审参数缓存失败，回源数据库", zap.Error(err))
		}
	}

	s, err := p.load(ctx)
	if err != nil {
		// 数据库不可用时沿用过期的进程内值
		p.mu.RLock()
		defer p.mu.RUnlock()
		if p.value != nil {
			p.logger.Warn("加载评审参数失败，使用过期缓存", zap.Error(err))
			return *p.value, nil
		}
		return model.ReviewSetting{}, err
	}
	return *s, nil
}

func (p *cachedSettingsProvider) Refresh(ctx context.Context) error {
	_, err := p.load(ctx)
	return err
}

func (p *cachedSettingsProvider) Invalidate(ctx context.Context) error {
	p.mu.Lock()
	p.value = nil
	p.expiresAt = time.Time{}
	p.mu.Unlock()

	if p.cache != nil {
		return p.cache.Delete(ctx, settingsCacheKey)
	}
	return nil
}

func (p *cachedSettingsProvider) load(ctx context.Context) (*model.ReviewSetting, error) {
	s, err := p.repo.Settings.Get(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSettingsNotFound
		}
		return nil, err
	}
	p.store(s)

	if p.cache != nil {
		if b, err := json.Marshal(s); err == nil {
			if err := p.cache.SetBytes(ctx, settingsCacheKey, b, p.ttl); err != nil {
				p.logger.Warn("写入评审参数缓存失败", zap.Error(err))
			}
		}
	}
	return s, nil
}

func (p *cachedSettingsProvider) store(s *model.ReviewSetting) {
	v := *s
	p.mu.Lock()
	p.value = &v
	p.expiresAt = p.now().Add(p.ttl)
	p.mu.Unlock()
}

// ════════════════════════════════════════════════════════════
// ReviewSettingsService — 管理端读写评审参数
// ════════════════════════════════════════════════════════════

// ReviewSettingsService 评审参数业务接口
type ReviewSettingsService interface {
	Get(ctx context.Context) (*dto.ReviewSettingsResponse, error)
	Update(ctx context.Context, req *dto.UpdateReviewSettingsRequest, callerID string) (*dto.ReviewSettingsResponse, error)
}

type reviewSettingsService struct {
	repo     *repository.Repository
	provider SettingsProvider
	logger   *zap.Logger
}

// NewReviewSettingsService 创建 ReviewSettingsService 实例
func NewReviewSettingsService(repo *repository.Repository, provider SettingsProvider, logger *zap.Logger) ReviewSettingsService {
	return &reviewSettingsService{repo: repo, provider: provider, logger: logger}
}

func (s *reviewSettingsService) Get(ctx context.Context) (*dto.ReviewSettingsResponse, error) {
	setting, err := s.repo.Settings.Get(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSettingsNotFound
		}
		s.logger.Error("查询评审参数失败", zap.Error(err))
		return nil, err
	}
	return toSettingsResponse(setting), nil
}

func (s *reviewSettingsService) Update(ctx context.Context, req *dto.UpdateReviewSettingsRequest, callerID string) (*dto.ReviewSettingsResponse, error) {
	setting, err := s.repo.Settings.Get(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSettingsNotFound
		}
		s.logger.Error("查询评审参数失败", zap.Error(err))
		return nil, err
	}

	applyInt := func(dst *int, v *int) {
		if v != nil {
			*dst = *v
		}
	}
	applyInt(&setting.DeadlineDays, req.DeadlineDays)
	applyInt(&setting.PanelSize, req.PanelSize)
	applyInt(&setting.VerificationPanelSize, req.VerificationPanelSize)
	applyInt(&setting.MinReviewsForScore, req.MinReviewsForScore)
	applyInt(&setting.TrimThreshold, req.TrimThreshold)
	applyInt(&setting.FinalistCount, req.FinalistCount)
	applyInt(&setting.MissedReviewPenalty, req.MissedReviewPenalty)
	applyInt(&setting.ControlFailurePenalty, req.ControlFailurePenalty)
	applyInt(&setting.WarningWindowStartHours, req.WarningWindowStartHours)
	applyInt(&setting.WarningWindowEndHours, req.WarningWindowEndHours)
	if req.DisqualifyOnMiss != nil {
		setting.DisqualifyOnMiss = *req.DisqualifyOnMiss
	}
	if setting.WarningWindowStartHours >= setting.WarningWindowEndHours {
		return nil, ErrSettingsWarningWindow
	}
	setting.UpdatedBy = &callerID

	if err := s.repo.Settings.Update(ctx, setting); err != nil {
		s.logger.Error("更新评审参数失败", zap.Error(err))
		return nil, err
	}

	// 写后失效，下次读取回源
	if err := s.provider.Invalidate(ctx); err != nil {
		s.logger.Warn("失效评审参数缓存失败", zap.Error(err))
	}

	s.logger.Info("评审参数已更新", zap.String("by", callerID))
	return toSettingsResponse(setting), nil
}

func toSettingsResponse(m *model.ReviewSetting) *dto.ReviewSettingsResponse {
	return &dto.ReviewSettingsResponse{
		DeadlineDays:            m.DeadlineDays,
		PanelSize:               m.PanelSize,
		VerificationPanelSize:   m.VerificationPanelSize,
		MinReviewsForScore:      m.MinReviewsForScore,
		TrimThreshold:           m.TrimThreshold,
		FinalistCount:           m.FinalistCount,
		MissedReviewPenalty:     m.MissedReviewPenalty,
		ControlFailurePenalty:   m.ControlFailurePenalty,
		DisqualifyOnMiss:        m.DisqualifyOnMiss,
		WarningWindowStartHours: m.WarningWindowStartHours,
		WarningWindowEndHours:   m.WarningWindowEndHours,
		UpdatedAt:               m.UpdatedAt,
	}
}
