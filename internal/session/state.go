package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/taoyao-code/hikeit-ble/internal/protocol/hikeit"
)

// State 会话可变状态，只由 Machine 的协程读写。
// 序号在进程生命周期内单调递增（模256），其余字段按连接重置
type State struct {
	seq         uint8
	deviceID    hikeit.DeviceID
	status      *hikeit.StatusSnapshot
	sessionID   string
	connectedAt time.Time
}

var _ hikeit.FrameContext = (*State)(nil)

// NextSequence 返回当前序号并自增
func (s *State) NextSequence() uint8 {
	n := s.seq
	s.seq++
	return n
}

// DeviceID 已学习的设备ID，未学习时为全零
func (s *State) DeviceID() hikeit.DeviceID { return s.deviceID }

// learnDeviceID 首个非零设备ID在本次连接内固定
func (s *State) learnDeviceID(id hikeit.DeviceID) bool {
	if !s.deviceID.IsZero() || id.IsZero() {
		return false
	}
	s.deviceID = id
	return true
}

func (s *State) begin(now time.Time) {
	s.deviceID = hikeit.DeviceID{}
	s.status = nil
	s.sessionID = uuid.NewString()
	s.connectedAt = now
}

func (s *State) reset() {
	s.deviceID = hikeit.DeviceID{}
	s.status = nil
	s.sessionID = ""
	s.connectedAt = time.Time{}
}

// currentContent 最近状态的内容区，无状态时为 nil
func (s *State) currentContent() *hikeit.Content {
	if s.status == nil {
		return nil
	}
	c := s.status.Content
	return &c
}
