package session

import (
	"context"

	"github.com/taoyao-code/hikeit-ble/internal/protocol/hikeit"
)

// Connect 建立连接并发送验证帧，返回时处于 AwaitingVerification（验证结果异步到达）
func (m *Machine) Connect(ctx context.Context) error {
	return m.do(ctx, m.connect)
}

// Disconnect 已验证时先发断开通知再关闭传输；已断开时为空操作
func (m *Machine) Disconnect(ctx context.Context) error {
	return m.do(ctx, m.disconnect)
}

// Verify 重新发送连接验证（验证被拒后由调用方决定是否重试）
func (m *Machine) Verify(ctx context.Context) error {
	return m.do(ctx, func(ctx context.Context) error {
		switch m.currentPhase() {
		case PhaseDisconnected:
			return ErrNotConnected
		case PhaseVerified:
			return nil
		}
		return m.sendVerify(ctx)
	})
}

// exec 在连接状态下构建并发送一帧
func (m *Machine) exec(ctx context.Context, build func(fc hikeit.FrameContext, cur *hikeit.Content) (*hikeit.Frame, error)) error {
	return m.do(ctx, func(ctx context.Context) error {
		if m.currentPhase() == PhaseDisconnected {
			return ErrNotConnected
		}
		f, err := build(&m.state, m.state.currentContent())
		if err != nil {
			return err
		}
		return m.send(ctx, f)
	})
}

// SetSpeedMode 切换速度模式，需已收到状态帧
func (m *Machine) SetSpeedMode(ctx context.Context, mode hikeit.SpeedMode, at bool) error {
	return m.exec(ctx, func(fc hikeit.FrameContext, cur *hikeit.Content) (*hikeit.Frame, error) {
		return hikeit.BuildModeCommand(fc, mode, at, cur)
	})
}

// SetStep 调整当前模式的档位
func (m *Machine) SetStep(ctx context.Context, step int) error {
	return m.exec(ctx, func(fc hikeit.FrameContext, cur *hikeit.Content) (*hikeit.Frame, error) {
		mode := hikeit.ModeUnknown
		if m.state.status != nil {
			mode = m.state.status.Mode
		}
		return hikeit.BuildStepCommand(fc, step, mode, cur)
	})
}

// SetLocked 安全模式加锁/解锁。PIN 非法时不发送任何帧
func (m *Machine) SetLocked(ctx context.Context, pin string, locked bool) error {
	if _, err := hikeit.EncodePIN(pin); err != nil {
		return err
	}
	return m.exec(ctx, func(fc hikeit.FrameContext, _ *hikeit.Content) (*hikeit.Frame, error) {
		return hikeit.BuildSafeModeCommand(fc, pin, locked)
	})
}

// SendScreen 屏幕命令
func (m *Machine) SendScreen(ctx context.Context) error {
	return m.exec(ctx, func(fc hikeit.FrameContext, _ *hikeit.Content) (*hikeit.Frame, error) {
		return hikeit.BuildScreenCommand(fc), nil
	})
}

// SendStudyMode 进入学习模式
func (m *Machine) SendStudyMode(ctx context.Context) error {
	return m.exec(ctx, func(fc hikeit.FrameContext, _ *hikeit.Content) (*hikeit.Frame, error) {
		return hikeit.BuildStudyMode(fc), nil
	})
}

// SetAuto 设置 AT 标志
func (m *Machine) SetAuto(ctx context.Context, enable bool) error {
	return m.exec(ctx, func(fc hikeit.FrameContext, cur *hikeit.Content) (*hikeit.Frame, error) {
		return hikeit.BuildAutoCommand(fc, enable, cur)
	})
}

// ToggleAuto 按最近状态翻转 AT 标志
func (m *Machine) ToggleAuto(ctx context.Context) error {
	return m.exec(ctx, func(fc hikeit.FrameContext, cur *hikeit.Content) (*hikeit.Frame, error) {
		if m.state.status == nil {
			return nil, hikeit.ErrMissingStatus
		}
		return hikeit.BuildAutoCommand(fc, !m.state.status.AT, cur)
	})
}
