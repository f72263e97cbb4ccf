package health

import (
	"context"
	"fmt"
	"time"

	"github.com/taoyao-code/hikeit-ble/internal/session"
)

// LinkState 查询底层链路是否仍连接
type LinkState interface {
	LinkUp(ctx context.Context) (bool, error)
}

// BLEChecker 会话与蓝牙链路检查器。设备离线只降级，不影响就绪
type BLEChecker struct {
	machine *session.Machine
	sup     *session.Supervisor
	link    LinkState
}

// NewBLEChecker sup 与 link 可为 nil
func NewBLEChecker(m *session.Machine, sup *session.Supervisor, link LinkState) *BLEChecker {
	return &BLEChecker{machine: m, sup: sup, link: link}
}

func (c *BLEChecker) Name() string { return CheckBLE }

// Check 执行健康检查
func (c *BLEChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	snap := c.machine.Snapshot()

	details := map[string]interface{}{
		"phase":    snap.Phase,
		"sequence": snap.Sequence,
	}
	if snap.SessionID != "" {
		details["session_id"] = snap.SessionID
	}
	if snap.DeviceID != "" {
		details["device_id"] = snap.DeviceID
	}
	limiter := c.machine.Limiter().Stats()
	details["write_interval_ms"] = limiter.IntervalMs
	details["writes_allowed_total"] = limiter.AllowedTotal

	result := func(status Status, message string) CheckResult {
		return CheckResult{Status: status, Message: message, Details: details, Latency: time.Since(start)}
	}

	select {
	case <-c.machine.Done():
		return result(StatusUnhealthy, "session machine stopped")
	default:
	}

	if c.sup != nil {
		details["connect_allowed"] = c.sup.Allowed()
		if !c.sup.Allowed() {
			return result(StatusHealthy, "offline by switch")
		}
	}

	switch snap.Phase {
	case session.PhaseDisconnected:
		return result(StatusDegraded, "device not connected")
	case session.PhaseConnected, session.PhaseAwaitingVerification:
		return result(StatusDegraded, "verification pending")
	}

	if c.link != nil {
		up, err := c.link.LinkUp(ctx)
		if err != nil {
			return result(StatusDegraded, fmt.Sprintf("link state query failed: %v", err))
		}
		details["link_up"] = up
		if !up {
			return result(StatusDegraded, "link down")
		}
	}
	return result(StatusHealthy, "ok")
}
