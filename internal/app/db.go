package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/hikeit-ble/internal/config"
	"github.com/taoyao-code/hikeit-ble/internal/metrics"
	"github.com/taoyao-code/hikeit-ble/internal/migrate"
	pgstorage "github.com/taoyao-code/hikeit-ble/internal/storage/pg"
)

// ConnectDBAndMigrate 建立数据库连接并按需执行内嵌迁移
func ConnectDBAndMigrate(ctx context.Context, cfg cfgpkg.DatabaseConfig, log *zap.Logger) (*pgxpool.Pool, error) {
	dbpool, err := pgstorage.NewPool(ctx, cfg, log)
	if err != nil {
		log.Error("db connect error", zap.Error(err))
		return nil, err
	}
	if cfg.AutoMigrate {
		n, err := migrate.Embedded(log).Up(ctx, dbpool)
		if err != nil {
			log.Error("db migrate error", zap.Error(err))
			return dbpool, err
		}
		log.Info("db migrations applied", zap.Int("applied", n))
	}
	return dbpool, nil
}

// NewFrameLogWriter 创建帧日志及其异步写入器
func NewFrameLogWriter(dbpool *pgxpool.Pool, cfg cfgpkg.DatabaseConfig, log *zap.Logger, appm *metrics.AppMetrics) (*pgstorage.FrameLog, *pgstorage.Writer) {
	store := &pgstorage.FrameLog{Pool: dbpool}
	return store, pgstorage.NewWriter(store, cfg.BufferSize, log.Named("framelog"), appm)
}
