package session

import (
	"context"

	"github.com/looplab/fsm"
)

// Phase 连接阶段
type Phase string

const (
	PhaseDisconnected         Phase = "disconnected"
	PhaseConnected            Phase = "connected"
	PhaseAwaitingVerification Phase = "awaiting_verification"
	PhaseVerified             Phase = "verified"
)

func (p Phase) String() string { return string(p) }

// 阶段事件
const (
	evConnect    = "connect"
	evVerifySent = "verify_sent"
	evVerified   = "verified"
	evDisconnect = "disconnect"
)

// newPhaseFSM 构建阶段机。回调里不得再触发事件
func newPhaseFSM(onEnter func(Phase)) *fsm.FSM {
	return fsm.NewFSM(
		string(PhaseDisconnected),
		fsm.Events{
			{Name: evConnect, Src: []string{string(PhaseDisconnected)}, Dst: string(PhaseConnected)},
			{Name: evVerifySent, Src: []string{string(PhaseConnected)}, Dst: string(PhaseAwaitingVerification)},
			{Name: evVerified, Src: []string{string(PhaseAwaitingVerification)}, Dst: string(PhaseVerified)},
			{Name: evDisconnect, Src: []string{
				string(PhaseConnected), string(PhaseAwaitingVerification), string(PhaseVerified),
			}, Dst: string(PhaseDisconnected)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				if onEnter != nil {
					onEnter(Phase(e.Dst))
				}
			},
		},
	)
}
