// migrate 手动管理评审引擎的数据库 schema
//
//	migrate            应用全部迁移
//	migrate -down 1    回滚一个版本
//	migrate -force 1   修复 dirty 状态
//	migrate -version   打印当前版本
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"contest-review/config"
	"contest-review/pkg/database"
	applogger "contest-review/pkg/logger"
)

func main() {
	var (
		configPath  string
		down        int
		force       int
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "", "配置文件路径")
	flag.IntVar(&down, "down", 0, "回滚的版本数")
	flag.IntVar(&force, "force", -1, "强制设置的版本号")
	flag.BoolVar(&showVersion, "version", false, "仅打印当前版本")
	flag.Parse()

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

	switch {
	case showVersion:
	case force >= 0:
		err = database.ForceMigrationVersion(sqlDB, force, logger)
	case down > 0:
		err = database.RollbackMigrations(sqlDB, down, logger)
	default:
		err = database.RunMigrations(sqlDB, logger)
	}
	if err != nil {
		logger.Fatal("迁移失败", zap.Error(err))
	}

	version, dirty, err := database.MigrationVersion(sqlDB)
	if err != nil {
		logger.Fatal("读取版本失败", zap.Error(err))
	}
	fmt.Printf("schema version %d (dirty=%v)\n", version, dirty)
}
