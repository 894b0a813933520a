// sweep 单次执行清扫（可选附带一轮通知投递），供外部调度器或运维手动调用
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"contest-review/config"
	"contest-review/internal/repository"
	"contest-review/internal/service"
	"contest-review/pkg/database"
	"contest-review/pkg/identity"
	applogger "contest-review/pkg/logger"
	"contest-review/pkg/mailer"
	"contest-review/pkg/redis"
	"contest-review/pkg/retry"
)

func main() {
	var (
		configPath string
		envFile    string
		dispatch   bool
		timeout    time.Duration
	)
	flag.StringVar(&configPath, "config", "", "配置文件路径（默认查找 ./config/config.yaml）")
	flag.StringVar(&envFile, "env", "", "额外加载的 .env 文件")
	flag.BoolVar(&dispatch, "dispatch", false, "清扫后投递一轮待发通知")
	flag.DurationVar(&timeout, "timeout", 10*time.Minute, "整体超时")
	flag.Parse()

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			fmt.Fprintf(os.Stderr, "加载 %s 失败: %v\n", envFile, err)
			os.Exit(1)
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 sql.DB 失败", zap.Error(err))
	}
	defer sqlDB.Close()

	infra := service.Infra{
		Identity: identity.NewHTTPProvider(&cfg.Identity, retry.NewPolicy(&cfg.Retry), logger),
		Mailer:   mailer.NewSMTPSender(&cfg.Mail, logger),
	}
	// 与常驻服务共用 Redis 锁，避免同时清扫
	if rdb, err := redis.NewClient(&cfg.Redis, logger); err != nil {
		logger.Warn("Redis 不可用，本次清扫不加锁", zap.Error(err))
	} else {
		defer rdb.Close()
		infra.Cache = rdb
		infra.Locker = rdb
	}

	svc := service.NewService(cfg, repository.NewRepository(db), infra, logger)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	resp, err := svc.Sweep.RunSweep(ctx)
	if err != nil {
		logger.Fatal("清扫失败", zap.Error(err))
	}
	if resp.Skipped {
		fmt.Println("Sweep skipped: another instance holds the lock")
		return
	}
	fmt.Printf("Sweep run %s: expired %d, reassigned %d, restaffed %d, reminded %d\n",
		resp.RunID, resp.Expired, resp.Reassigned, resp.Restaffed, resp.Reminded)
	for _, w := range resp.Report.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
	for _, e := range resp.Report.Errors {
		fmt.Printf("  error: %s\n", e)
	}

	if dispatch {
		d, err := svc.Dispatcher.Dispatch(ctx)
		if err != nil {
			logger.Fatal("通知投递失败", zap.Error(err))
		}
		fmt.Printf("Notifications claimed %d: sent %d, retried %d, failed %d\n",
			d.Claimed, d.Sent, d.Retried, d.Failed)
	}

	if resp.Report.HasErrors() {
		os.Exit(2)
	}
}
