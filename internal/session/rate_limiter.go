package session

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// WriteLimiter 基于 Token Bucket 的写入节流，间隔为0时不限速
type WriteLimiter struct {
	limiter      *rate.Limiter
	interval     time.Duration
	allowedCount atomic.Int64
	waitErrCount atomic.Int64
}

// NewWriteLimiter 创建写入节流器
// interval: 两次写入的最小间隔，突发容量固定为1
func NewWriteLimiter(interval time.Duration) *WriteLimiter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &WriteLimiter{
		limiter:  rate.NewLimiter(limit, 1),
		interval: interval,
	}
}

// Wait 等待下一个写入时隙（阻塞，随 ctx 取消）
func (l *WriteLimiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		l.waitErrCount.Add(1)
		return err
	}
	l.allowedCount.Add(1)
	return nil
}

// Stats 获取统计信息
func (l *WriteLimiter) Stats() WriteLimiterStats {
	return WriteLimiterStats{
		IntervalMs:   l.interval.Milliseconds(),
		AllowedTotal: l.allowedCount.Load(),
		WaitErrTotal: l.waitErrCount.Load(),
	}
}

// WriteLimiterStats 写入节流统计信息
type WriteLimiterStats struct {
	IntervalMs   int64 `json:"interval_ms"`
	AllowedTotal int64 `json:"allowed_total"`
	WaitErrTotal int64 `json:"wait_err_total"`
}
