package health

import (
	"context"
	"fmt"
	"time"

	redisstorage "github.com/taoyao-code/hikeit-ble/internal/storage/redis"
)

// RedisChecker 状态镜像：连通性、快照键剩余有效期与发布队列丢弃
type RedisChecker struct {
	client    *redisstorage.Client
	publisher *redisstorage.Publisher
	watch     counterWatch
}

// NewRedisChecker publisher 可为 nil
func NewRedisChecker(client *redisstorage.Client, publisher *redisstorage.Publisher) *RedisChecker {
	return &RedisChecker{client: client, publisher: publisher}
}

func (c *RedisChecker) Name() string { return CheckRedis }

func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	st, err := c.client.Inspect(ctx)
	if err != nil {
		return finish(start, StatusUnhealthy, fmt.Sprintf("state mirror unreachable: %v", err), nil)
	}
	details := map[string]interface{}{
		"snapshot_key": st.SnapshotKey,
		"total_conns":  st.TotalConns,
		"idle_conns":   st.IdleConns,
		"timeouts":     st.Timeouts,
	}
	if st.SnapshotTTL > 0 {
		details["snapshot_ttl"] = st.SnapshotTTL.String()
	}
	if c.publisher == nil {
		return finish(start, StatusHealthy, "ok", details)
	}
	dropped := c.publisher.Dropped()
	details["channel"] = c.publisher.Channel()
	details["publish_dropped"] = dropped
	if c.watch.grew("dropped", dropped) {
		return finish(start, StatusDegraded, "state mirror dropping events", details)
	}
	return finish(start, StatusHealthy, "ok", details)
}
