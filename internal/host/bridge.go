package host

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/taoyao-code/hikeit-ble/internal/config"
	"github.com/taoyao-code/hikeit-ble/internal/protocol/hikeit"
	"github.com/taoyao-code/hikeit-ble/internal/session"
)

// 状态文本
const (
	TextDisconnected = "Disconnected"
	TextConnecting   = "Connecting..."
	TextConnected    = "Connected"
	TextVerifying    = "Verifying..."
	TextVerified     = "Verified"
	TextError        = "Error"
	TextOffline      = "Offline"
)

var (
	// ErrUnknownLabel 标签不在当前标签表中
	ErrUnknownLabel = errors.New("host: unknown speed mode label")
	// ErrInvalidAddress 地址不是 AA:BB:CC:DD:EE:FF 形式
	ErrInvalidAddress = errors.New("host: invalid device address")
)

// AddressTarget 可更换目标地址的传输
type AddressTarget interface {
	SetAddress(addr string)
	Address() string
}

// Bridge 宿主集成层：把地址、PIN、模式选择、档位、锁定开关和按钮映射到会话命令，
// 并维护一个人类可读的状态文本
type Bridge struct {
	machine *session.Machine
	sup     *session.Supervisor
	target  AddressTarget
	labels  *hikeit.LabelSet
	log     *zap.Logger

	mu     sync.RWMutex
	pin    string
	base   string // 不考虑连接开关的状态文本
	locked bool
	onText []func(string)
}

// NewBridge 在 machine.Run 之前调用，以便注册回调
func NewBridge(m *session.Machine, sup *session.Supervisor, target AddressTarget, labels *hikeit.LabelSet, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	if labels == nil {
		labels = hikeit.StandardLabels()
	}
	b := &Bridge{
		machine: m,
		sup:     sup,
		target:  target,
		labels:  labels,
		log:     logger,
		base:    TextDisconnected,
	}
	h := m.Hooks()
	h.AddConnecting(func() { b.setBase(TextConnecting) })
	h.AddError(func(error) { b.setBase(TextError) })
	h.AddPhase(func(p session.Phase) {
		switch p {
		case session.PhaseDisconnected:
			b.setBase(TextDisconnected)
		case session.PhaseConnected:
			b.setBase(TextConnected)
		case session.PhaseAwaitingVerification:
			b.setBase(TextVerifying)
		case session.PhaseVerified:
			b.setBase(TextVerified)
		}
	})
	h.AddStatus(func(st *hikeit.StatusSnapshot) {
		b.mu.Lock()
		b.locked = st.Locked
		b.mu.Unlock()
	})
	return b
}

// AddTextListener 状态文本变化时回调（在会话协程内执行，不得阻塞）
func (b *Bridge) AddTextListener(fn func(string)) {
	b.mu.Lock()
	b.onText = append(b.onText, fn)
	b.mu.Unlock()
}

func (b *Bridge) setBase(text string) {
	b.mu.Lock()
	changed := b.base != text
	b.base = text
	b.mu.Unlock()
	if changed {
		b.notifyText()
	}
}

func (b *Bridge) notifyText() {
	text := b.StatusText()
	b.mu.RLock()
	listeners := b.onText
	b.mu.RUnlock()
	for _, fn := range listeners {
		fn(text)
	}
}

// StatusText 当前状态文本；连接开关关闭时为 Offline
func (b *Bridge) StatusText() string {
	if !b.ConnectAllowed() {
		return TextOffline
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.base
}

// Labels 模式选择器选项
func (b *Bridge) Labels() []string { return b.labels.Labels() }

// SetAddress 更换设备地址。已连接时断开，由重连循环连接新地址
func (b *Bridge) SetAddress(ctx context.Context, addr string) error {
	addr = strings.ToUpper(strings.TrimSpace(addr))
	if !config.ValidAddress(addr) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	if b.target.Address() == addr {
		return nil
	}
	b.target.SetAddress(addr)
	b.log.Info("device address changed", zap.String("address", addr))
	if b.machine.Phase() != session.PhaseDisconnected {
		return b.machine.Disconnect(ctx)
	}
	return nil
}

// Address 当前设备地址
func (b *Bridge) Address() string { return b.target.Address() }

// SetPIN 保存安全模式 PIN，空串表示未设置
func (b *Bridge) SetPIN(pin string) error {
	pin = strings.TrimSpace(pin)
	if pin != "" {
		if _, err := hikeit.EncodePIN(pin); err != nil {
			return err
		}
	}
	b.mu.Lock()
	b.pin = pin
	b.mu.Unlock()
	return nil
}

// HasPIN 是否已设置 PIN
func (b *Bridge) HasPIN() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pin != ""
}

// SelectSpeedMode 按标签切换模式，AT 标志沿用最近状态
func (b *Bridge) SelectSpeedMode(ctx context.Context, label string) error {
	mode, ok := b.labels.Mode(label)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLabel, label)
	}
	at := false
	if st := b.machine.Snapshot().Status; st != nil {
		at = st.AT
	}
	return b.machine.SetSpeedMode(ctx, mode, at)
}

// SpeedModeLabel 最近状态对应的标签；无状态或标签表中没有该模式时返回 false
func (b *Bridge) SpeedModeLabel() (string, bool) {
	st := b.machine.Snapshot().Status
	if st == nil {
		return "", false
	}
	return b.labels.Label(st.Mode)
}

// SetStep 当前模式的档位
func (b *Bridge) SetStep(ctx context.Context, step int) error {
	return b.machine.SetStep(ctx, step)
}

// SetLocked 锁定开关，使用已保存的 PIN
func (b *Bridge) SetLocked(ctx context.Context, locked bool) error {
	b.mu.RLock()
	pin := b.pin
	b.mu.RUnlock()
	if err := b.machine.SetLocked(ctx, pin, locked); err != nil {
		return err
	}
	b.mu.Lock()
	b.locked = locked
	b.mu.Unlock()
	return nil
}

// Locked 开关状态：最近一次成功下发的值，收到状态帧后以设备为准
func (b *Bridge) Locked() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.locked
}

// PressScreen 屏幕按钮
func (b *Bridge) PressScreen(ctx context.Context) error { return b.machine.SendScreen(ctx) }

// PressAuto 自动按钮：翻转最近状态的 AT 标志
func (b *Bridge) PressAuto(ctx context.Context) error { return b.machine.ToggleAuto(ctx) }

// SetConnectAllowed 连接开关
func (b *Bridge) SetConnectAllowed(ctx context.Context, allowed bool) error {
	prev := b.sup.Allowed()
	err := b.sup.SetAllowed(ctx, allowed)
	if prev != allowed {
		b.notifyText()
	}
	return err
}

// ConnectAllowed 连接开关状态
func (b *Bridge) ConnectAllowed() bool { return b.sup.Allowed() }
