package app

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taoyao-code/hikeit-ble/internal/health"
	"github.com/taoyao-code/hikeit-ble/internal/session"
	redisstorage "github.com/taoyao-code/hikeit-ble/internal/storage/redis"
)

// NewHealthAggregator 创建健康检查聚合器，初始只包含 BLE 会话检查
func NewHealthAggregator(m *session.Machine, sup *session.Supervisor, link health.LinkState) *health.Aggregator {
	return health.NewAggregator(
		health.NewBLEChecker(m, sup, link),
	)
}

// RegisterHealthRoutes 注册健康检查HTTP路由
func RegisterHealthRoutes(r gin.IRoutes, aggregator *health.Aggregator) {
	health.RegisterHTTPRoutes(r, aggregator)
}

// AddDatabaseChecker 启用数据库时追加检查器
func AddDatabaseChecker(aggregator *health.Aggregator, dbpool *pgxpool.Pool, writer health.WriterStats) {
	if dbpool != nil {
		aggregator.AddChecker(health.NewDatabaseChecker(dbpool, writer))
	}
}

// AddRedisChecker 启用Redis时追加检查器
func AddRedisChecker(aggregator *health.Aggregator, client *redisstorage.Client, publisher *redisstorage.Publisher) {
	if client != nil {
		aggregator.AddChecker(health.NewRedisChecker(client, publisher))
	}
}
