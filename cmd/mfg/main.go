package main

import (
	"fmt"
	"log"
	"os"

	"github.com/bitfantasy/nimo-mfg/internal/config"
	"github.com/bitfantasy/nimo-mfg/internal/mfg/entity"
	"github.com/bitfantasy/nimo-mfg/internal/mfg/inventory"
	"github.com/bitfantasy/nimo-mfg/internal/mfg/repository"
	"github.com/bitfantasy/nimo-mfg/internal/mfg/service"
	"github.com/bitfantasy/nimo-mfg/internal/shared/feishu"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "mfg",
	Short: "nimo-mfg 生产与采购服务",
	Long: `nimo-mfg manages furniture manufacturing orders, procurement requirements,
purchase orders with landed costs, multi-level MO approvals and cost variance.`,
	SilenceUsage: true,
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(escalateCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app 命令共用的运行时依赖
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB
	rdb    *redis.Client
	svc    *service.Services
}

func (a *app) Close() {
	if a.rdb != nil {
		a.rdb.Close()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	a.logger.Sync()
}

// bootstrap 加载配置并连接数据库；withServices 为真时组装服务集合
func bootstrap(withServices bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := initDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: zapLogger, db: db}
	if !withServices {
		return a, nil
	}

	if cfg.Redis.Host != "" {
		a.rdb = initRedis(cfg.Redis)
	}

	thresholds, err := config.LoadApprovalThresholds(cfg.Mfg.ApprovalConfig)
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := service.Options{
		Subsidiary:        cfg.Mfg.Subsidiary,
		Currency:          cfg.Mfg.Currency,
		POPrefix:          cfg.Mfg.POPrefix,
		VarianceTolerance: cfg.Mfg.VarianceTolerance,
		Thresholds:        thresholds,
		Logger:            zapLogger,
	}
	if cfg.Feishu.Enabled() {
		client := feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret)
		opts.Alerts = feishu.NewAlerter(client, cfg.Feishu.AlertUserID)
		zapLogger.Info("Feishu alerts enabled", zap.String("receiver", cfg.Feishu.AlertUserID))
	}

	repos := repository.NewRepositories(db, a.rdb)
	a.svc = service.NewServices(storesOf(repos), inventory.NewStore(db), opts)
	return a, nil
}

func storesOf(r *repository.Repositories) service.Stores {
	return service.Stores{
		MO:          r.MO,
		PO:          r.PO,
		Requirement: r.Requirement,
		Approval:    r.Approval,
		Variance:    r.Variance,
		Labor:       r.Labor,
		Supplier:    r.Supplier,
		ActivityLog: r.ActivityLog,
		Sequence:    r.Sequence,
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(false)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.db.AutoMigrate(entity.AllModels()...); err != nil {
				return fmt.Errorf("auto migrate: %w", err)
			}
			a.logger.Info("Database migration completed", zap.Int("tables", len(entity.AllModels())))
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("nimo-mfg %s (built %s)\n", Version, BuildTime)
		},
	}
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}
