package job

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"contest-review/config"
	"contest-review/internal/service"
	applogger "contest-review/pkg/logger"
)

// Scheduler 周期任务：清扫、通知投递、评审参数同步
type Scheduler struct {
	cron    *cron.Cron
	svc     *service.Service
	timeout time.Duration
	logger  *zap.Logger
}

// NewScheduler 按配置注册周期任务；表达式为空的任务不注册
func NewScheduler(cfg *config.JobsConfig, svc *service.Service, logger *zap.Logger) (*Scheduler, error) {
	s := &Scheduler{
		// 上一次未结束时跳过本次触发，清扫本身另有分布式锁
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		svc:     svc,
		timeout: 5 * time.Minute,
		logger:  logger,
	}

	jobs := []struct {
		name string
		spec string
		fn   func(ctx context.Context) error
	}{
		{"sweep", cfg.SweepSpec, s.sweep},
		{"dispatch", cfg.DispatchSpec, s.dispatch},
		{"settings_sync", cfg.SettingsSyncSpec, s.syncSettings},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		if _, err := s.cron.AddFunc(j.spec, s.wrap(j.name, j.fn)); err != nil {
			return nil, fmt.Errorf("注册定时任务 %s 失败: %w", j.name, err)
		}
		logger.Info("定时任务已注册", zap.String("job", j.name), zap.String("spec", j.spec))
	}
	return s, nil
}

// Start 启动调度
func (s *Scheduler) Start() { s.cron.Start() }

// Stop 停止调度并等待正在执行的任务结束
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("等待定时任务结束超时")
	}
}

func (s *Scheduler) wrap(name string, fn func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		log := applogger.ForJob(s.logger, name, uuid.NewString())
		start := time.Now()
		if err := fn(ctx); err != nil {
			log.Error("定时任务执行失败", zap.Error(err))
			return
		}
		log.Debug("定时任务完成", zap.Duration("elapsed", time.Since(start)))
	}
}

func (s *Scheduler) sweep(ctx context.Context) error {
	resp, err := s.svc.Sweep.RunSweep(ctx)
	if err != nil {
		return err
	}
	if resp.Skipped {
		s.logger.Info("清扫被跳过：其他实例持有锁")
		return nil
	}
	s.logger.Info("清扫完成",
		zap.String("run_id", resp.RunID),
		zap.Int("expired", resp.Expired),
		zap.Int("reassigned", resp.Reassigned),
		zap.Int("reminded", resp.Reminded),
		zap.Int("warnings", len(resp.Report.Warnings)),
	)
	return nil
}

func (s *Scheduler) dispatch(ctx context.Context) error {
	resp, err := s.svc.Dispatcher.Dispatch(ctx)
	if err != nil {
		return err
	}
	if resp.Claimed > 0 {
		s.logger.Info("通知投递完成",
			zap.Int("claimed", resp.Claimed),
			zap.Int("sent", resp.Sent),
			zap.Int("retried", resp.Retried),
			zap.Int("failed", resp.Failed),
		)
	}
	return nil
}

func (s *Scheduler) syncSettings(ctx context.Context) error {
	return s.svc.Settings.Refresh(ctx)
}
