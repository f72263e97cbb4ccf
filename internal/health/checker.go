package health

import (
	"context"
	"sync"
	"time"
)

// Status 组件健康状态
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"  // 仍可控制设备，但有旁路输出或链路异常
	StatusUnhealthy Status = "unhealthy" // 会话无法服务
)

// 检查项名称
const (
	CheckBLE      = "ble"
	CheckDatabase = "database"
	CheckRedis    = "redis"
)

// CheckResult 单个组件的检查结果
type CheckResult struct {
	Status  Status                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
	Latency time.Duration          `json:"latency"`
}

// Checker 组件检查器
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// sideOutput 帧日志与状态镜像只是旁路输出：不可用时整体最多降级
func sideOutput(name string) bool {
	return name == CheckDatabase || name == CheckRedis
}

func severity(s Status) int {
	switch s {
	case StatusUnhealthy:
		return 2
	case StatusDegraded:
		return 1
	}
	return 0
}

func finish(start time.Time, status Status, message string, details map[string]interface{}) CheckResult {
	return CheckResult{Status: status, Message: message, Details: details, Latency: time.Since(start)}
}

// counterWatch 记录累计计数器的上次读数，判断两次检查之间是否增长
type counterWatch struct {
	mu   sync.Mutex
	last map[string]uint64
}

func (w *counterWatch) grew(name string, v uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.last == nil {
		w.last = make(map[string]uint64)
	}
	prev, seen := w.last[name]
	w.last[name] = v
	if !seen {
		return v > 0
	}
	return v > prev
}
