package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/hikeit-ble/internal/config"
	"github.com/taoyao-code/hikeit-ble/internal/metrics"
	redisstorage "github.com/taoyao-code/hikeit-ble/internal/storage/redis"
)

// NewRedisClient 创建Redis客户端，未启用时返回 nil
func NewRedisClient(cfg cfgpkg.RedisConfig, logger *zap.Logger) (*redisstorage.Client, error) {
	if !cfg.Enabled {
		logger.Info("redis is disabled, skipping initialization")
		return nil, nil
	}

	client, err := redisstorage.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("redis client initialized",
		zap.String("addr", cfg.Addr),
		zap.Int("pool_size", cfg.PoolSize))

	return client, nil
}

// NewStatePublisher 状态镜像发布器，键名与过期时间取自客户端配置
func NewStatePublisher(client *redisstorage.Client, logger *zap.Logger, appm *metrics.AppMetrics) *redisstorage.Publisher {
	return client.Publisher(logger.Named("redis"), appm)
}
