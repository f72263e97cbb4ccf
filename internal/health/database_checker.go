package health

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// WriterStats 帧日志异步写入统计
type WriterStats interface {
	Dropped() uint64
	Failed() uint64
}

// DatabaseChecker 帧日志库：连通性，以及写入器自上次检查以来是否丢弃或写失败
type DatabaseChecker struct {
	pool   *pgxpool.Pool
	writer WriterStats
	watch  counterWatch
}

// NewDatabaseChecker writer 可为 nil
func NewDatabaseChecker(pool *pgxpool.Pool, writer WriterStats) *DatabaseChecker {
	return &DatabaseChecker{pool: pool, writer: writer}
}

func (c *DatabaseChecker) Name() string { return CheckDatabase }

func (c *DatabaseChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	if err := c.pool.Ping(ctx); err != nil {
		return finish(start, StatusUnhealthy, fmt.Sprintf("frame log unreachable: %v", err), nil)
	}
	stats := c.pool.Stat()
	details := map[string]interface{}{
		"acquired_conns": stats.AcquiredConns(),
		"max_conns":      stats.MaxConns(),
	}
	status, message := c.writerStatus(details)
	return finish(start, status, message, details)
}

// writerStatus 写失败优先于丢弃
func (c *DatabaseChecker) writerStatus(details map[string]interface{}) (Status, string) {
	if c.writer == nil {
		return StatusHealthy, "ok"
	}
	dropped, failed := c.writer.Dropped(), c.writer.Failed()
	details["frame_log_dropped"] = dropped
	details["frame_log_failed"] = failed

	failing := c.watch.grew("failed", failed)
	dropping := c.watch.grew("dropped", dropped)
	switch {
	case failing:
		return StatusDegraded, "frame log writes failing"
	case dropping:
		return StatusDegraded, "frame log dropping records"
	}
	return StatusHealthy, "ok"
}
