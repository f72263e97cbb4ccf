package session

import (
	"time"

	"github.com/taoyao-code/hikeit-ble/internal/protocol/hikeit"
)

// Direction 帧方向
type Direction string

const (
	DirectionRx Direction = "rx"
	DirectionTx Direction = "tx"
)

// FrameEvent 一次收发的帧记录
type FrameEvent struct {
	SessionID string
	Direction Direction
	Type      hikeit.MsgType
	Sequence  uint8
	Raw       string
	At        time.Time
}

// Hooks 生命周期回调，每类可挂多个监听者。
// 回调在 Machine 协程内同步执行：不得阻塞，除 Snapshot 外不得调用 Machine 的方法。
// 须在 Run 之前注册完毕
type Hooks struct {
	connecting   []func()
	failed       []func(error)
	connected    []func()
	disconnected []func()
	verified     []func()
	message      []func(raw string)
	status       []func(*hikeit.StatusSnapshot)
	phase        []func(Phase)
	frame        []func(FrameEvent)
}

func (h *Hooks) AddConnecting(fn func())                   { h.connecting = append(h.connecting, fn) }
func (h *Hooks) AddError(fn func(error))                   { h.failed = append(h.failed, fn) }
func (h *Hooks) AddConnected(fn func())                    { h.connected = append(h.connected, fn) }
func (h *Hooks) AddDisconnected(fn func())                 { h.disconnected = append(h.disconnected, fn) }
func (h *Hooks) AddVerified(fn func())                     { h.verified = append(h.verified, fn) }
func (h *Hooks) AddMessage(fn func(raw string))            { h.message = append(h.message, fn) }
func (h *Hooks) AddStatus(fn func(*hikeit.StatusSnapshot)) { h.status = append(h.status, fn) }
func (h *Hooks) AddPhase(fn func(Phase))                   { h.phase = append(h.phase, fn) }
func (h *Hooks) AddFrame(fn func(FrameEvent))              { h.frame = append(h.frame, fn) }

func (h *Hooks) fireConnecting() {
	for _, fn := range h.connecting {
		fn()
	}
}

func (h *Hooks) fireError(err error) {
	for _, fn := range h.failed {
		fn(err)
	}
}

func (h *Hooks) fireConnected() {
	for _, fn := range h.connected {
		fn()
	}
}

func (h *Hooks) fireDisconnected() {
	for _, fn := range h.disconnected {
		fn()
	}
}

func (h *Hooks) fireVerified() {
	for _, fn := range h.verified {
		fn()
	}
}

func (h *Hooks) fireMessage(raw string) {
	for _, fn := range h.message {
		fn(raw)
	}
}

func (h *Hooks) fireStatus(s *hikeit.StatusSnapshot) {
	for _, fn := range h.status {
		fn(s)
	}
}

func (h *Hooks) firePhase(p Phase) {
	for _, fn := range h.phase {
		fn(p)
	}
}

func (h *Hooks) fireFrame(e FrameEvent) {
	for _, fn := range h.frame {
		fn(e)
	}
}
