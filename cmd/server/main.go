package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"contest-review/config"
	"contest-review/internal/api/handler"
	"contest-review/internal/api/middleware"
	"contest-review/internal/api/router"
	"contest-review/internal/job"
	"contest-review/internal/repository"
	"contest-review/internal/service"
	"contest-review/pkg/database"
	"contest-review/pkg/identity"
	"contest-review/pkg/jwt"
	applogger "contest-review/pkg/logger"
	"contest-review/pkg/mailer"
	"contest-review/pkg/redis"
	"contest-review/pkg/retry"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("jobs_enabled", cfg.Jobs.Enabled),
	)

	// 3. 连接数据库
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	logger.Info("数据库连接成功")

	// 3.1 执行数据库迁移
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 sql.DB 失败", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 4. 连接 Redis（可选：失败时降级为进程内缓存、无锁清扫、不限流）
	infra := service.Infra{
		Identity: identity.NewHTTPProvider(&cfg.Identity, retry.NewPolicy(&cfg.Retry), logger),
		Mailer:   mailer.NewSMTPSender(&cfg.Mail, logger),
	}
	var limiter middleware.RateLimiter
	rdb, err := redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis 连接失败，共享缓存、清扫锁与限流将不可用", zap.Error(err))
		rdb = nil
	} else {
		infra.Cache = rdb
		infra.Locker = rdb
		limiter = rdb
	}

	// 5. 初始化 JWT 校验器
	jwtMgr := jwt.NewManager(&cfg.Auth)

	// 6. 依赖注入: Repository → Service → Handler
	repo := repository.NewRepository(db)
	svc := service.NewService(cfg, repo, infra, logger)
	h := handler.NewHandler(svc)

	// 预热评审参数，失败不阻断启动
	if err := svc.Settings.Refresh(context.Background()); err != nil {
		logger.Warn("预热评审参数失败", zap.Error(err))
	}

	// 7. 定时任务
	var scheduler *job.Scheduler
	if cfg.Jobs.Enabled {
		scheduler, err = job.NewScheduler(&cfg.Jobs, svc, logger)
		if err != nil {
			logger.Fatal("定时任务初始化失败", zap.Error(err))
		}
		scheduler.Start()
	}

	// 8. 初始化路由
	engine := router.Setup(cfg, h, jwtMgr, limiter, db, logger)

	// 9. 启动 HTTP 服务器（优雅关闭）
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器异常", zap.Error(err))
		}
	}()

	// 10. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	if scheduler != nil {
		scheduler.Stop(ctx)
	}

	// 关闭数据库连接
	if sqlDB != nil {
		sqlDB.Close()
	}

	// 关闭 Redis 连接
	if rdb != nil {
		rdb.Close()
	}

	logger.Info("服务器已关闭")
}
