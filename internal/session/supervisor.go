package session

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/hikeit-ble/internal/metrics"
)

// Supervisor 自动重连：允许连接且处于断开状态时按间隔发起 Connect。
// 状态机本身从不重试
type Supervisor struct {
	m              *Machine
	delay          time.Duration
	connectTimeout time.Duration
	log            *zap.Logger
	metrics        *metrics.AppMetrics

	allowed atomic.Bool
	wake    chan struct{}
}

func NewSupervisor(m *Machine, delay, connectTimeout time.Duration, logger *zap.Logger, am *metrics.AppMetrics) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if delay <= 0 {
		delay = 5 * time.Second
	}
	if connectTimeout <= 0 {
		connectTimeout = 20 * time.Second
	}
	return &Supervisor{
		m:              m,
		delay:          delay,
		connectTimeout: connectTimeout,
		log:            logger,
		metrics:        am,
		wake:           make(chan struct{}, 1),
	}
}

// Allowed 是否允许连接
func (s *Supervisor) Allowed() bool { return s.allowed.Load() }

// SetAllowed 连接开关。关闭时立即断开（已验证则先发断开通知）
func (s *Supervisor) SetAllowed(ctx context.Context, allowed bool) error {
	prev := s.allowed.Swap(allowed)
	if allowed {
		if !prev {
			s.log.Info("connect switch on")
		}
		select {
		case s.wake <- struct{}{}:
		default:
		}
		return nil
	}
	if prev {
		s.log.Info("connect switch off")
	}
	return s.m.Disconnect(ctx)
}

// Run 重连循环，直到 ctx 取消
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.delay)
	defer ticker.Stop()
	s.tryConnect(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.m.Done():
			return
		case <-ticker.C:
			s.tryConnect(ctx)
		case <-s.wake:
			s.tryConnect(ctx)
		}
	}
}

func (s *Supervisor) tryConnect(ctx context.Context) {
	if !s.allowed.Load() || s.m.Phase() != PhaseDisconnected {
		return
	}
	if s.metrics != nil {
		s.metrics.ReconnectAttempts.Inc()
	}
	cctx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()
	if err := s.m.Connect(cctx); err != nil && !errors.Is(err, ErrAlreadyConnected) {
		s.log.Warn("reconnect attempt failed", zap.Duration("retry_in", s.delay), zap.Error(err))
	}
}
