package app

import (
	"time"

	"github.com/taoyao-code/hikeit-ble/internal/api"
	"github.com/taoyao-code/hikeit-ble/internal/host"
	"github.com/taoyao-code/hikeit-ble/internal/protocol/hikeit"
	"github.com/taoyao-code/hikeit-ble/internal/session"
	pgstorage "github.com/taoyao-code/hikeit-ble/internal/storage/pg"
)

// FrameSink 帧日志写入端，实现须为非阻塞
type FrameSink interface {
	Frame(f pgstorage.FrameRecord)
	SessionStarted(s pgstorage.SessionRecord)
	SessionVerified(sessionID, deviceID string, at time.Time)
	SessionEnded(sessionID string, at time.Time)
}

// EventSink websocket 事件广播
type EventSink interface {
	Publish(ev api.Event)
}

// StateSink 外部状态镜像
type StateSink interface {
	Publish(kind string, snapshot any, data any)
}

// WireFrameLog 将会话生命周期与收发帧写入帧日志
func WireFrameLog(m *session.Machine, sink FrameSink, address func() string) {
	h := m.Hooks()
	// 断开回调触发时快照已复位，会话ID 在此保存；只在会话协程内读写
	var current string

	h.AddConnected(func() {
		snap := m.Snapshot()
		current = snap.SessionID
		sink.SessionStarted(pgstorage.SessionRecord{
			ID:        snap.SessionID,
			Address:   address(),
			StartedAt: snap.ConnectedAt,
		})
	})
	h.AddVerified(func() {
		snap := m.Snapshot()
		sink.SessionVerified(snap.SessionID, snap.DeviceID, time.Now())
	})
	h.AddDisconnected(func() {
		if current == "" {
			return
		}
		sink.SessionEnded(current, time.Now())
		current = ""
	})
	h.AddFrame(func(e session.FrameEvent) {
		sink.Frame(pgstorage.FrameRecord{
			SessionID: e.SessionID,
			Direction: string(e.Direction),
			MsgType:   uint8(e.Type),
			Sequence:  e.Sequence,
			Raw:       e.Raw,
			At:        e.At,
		})
	})
}

// WireEvents 将会话回调与状态文本转发到 websocket 与状态镜像，两者均可为 nil
func WireEvents(m *session.Machine, bridge *host.Bridge, events EventSink, state StateSink) {
	emit := func(typ string, payload interface{}) {
		if events != nil {
			events.Publish(api.NewEvent(typ, payload))
		}
		if state != nil {
			state.Publish(typ, m.Snapshot(), payload)
		}
	}

	h := m.Hooks()
	h.AddPhase(func(p session.Phase) {
		emit(api.EventPhase, map[string]string{"phase": p.String()})
	})
	h.AddConnected(func() { emit(api.EventConnected, nil) })
	h.AddVerified(func() {
		emit(api.EventVerified, map[string]string{"device_id": m.Snapshot().DeviceID})
	})
	h.AddDisconnected(func() { emit(api.EventDisconnected, nil) })
	h.AddError(func(err error) {
		emit(api.EventError, map[string]string{"error": err.Error()})
	})
	h.AddMessage(func(raw string) {
		emit(api.EventMessage, map[string]string{"raw": raw})
	})
	h.AddStatus(func(st *hikeit.StatusSnapshot) { emit(api.EventStatus, st) })
	h.AddFrame(func(e session.FrameEvent) {
		if events != nil {
			events.Publish(api.NewEvent(api.EventFrame, map[string]interface{}{
				"direction": e.Direction,
				"type":      e.Type.String(),
				"seq":       e.Sequence,
				"raw":       e.Raw,
			}))
		}
	})

	if bridge != nil {
		bridge.AddTextListener(func(text string) {
			emit(api.EventStatusText, map[string]string{"text": text})
		})
	}
}
