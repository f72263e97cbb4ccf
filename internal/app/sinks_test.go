package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/hikeit-ble/internal/api"
	cfgpkg "github.com/taoyao-code/hikeit-ble/internal/config"
	"github.com/taoyao-code/hikeit-ble/internal/protocol/hikeit"
	"github.com/taoyao-code/hikeit-ble/internal/session"
	pgstorage "github.com/taoyao-code/hikeit-ble/internal/storage/pg"
)

var testDevice = hikeit.DeviceID{0x12, 0x34, 0x56, 0x78}

type stubTransport struct {
	mu     sync.Mutex
	notify func([]byte)
}

func (s *stubTransport) Connect(_ context.Context, notify func([]byte)) error {
	s.mu.Lock()
	s.notify = notify
	s.mu.Unlock()
	return nil
}

func (s *stubTransport) Write(context.Context, []byte) error { return nil }
func (s *stubTransport) Close(context.Context) error         { return nil }

func (s *stubTransport) push(f *hikeit.Frame) {
	s.mu.Lock()
	n := s.notify
	s.mu.Unlock()
	n(f.Bytes())
}

type recordingSink struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingSink) add(s string) {
	r.mu.Lock()
	r.calls = append(r.calls, s)
	r.mu.Unlock()
}

func (r *recordingSink) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recordingSink) Frame(f pgstorage.FrameRecord) {
	r.add(fmt.Sprintf("frame:%s:%02X", f.Direction, f.MsgType))
}

func (r *recordingSink) SessionStarted(s pgstorage.SessionRecord) {
	r.add("start:" + s.Address)
}

func (r *recordingSink) SessionVerified(_, deviceID string, _ time.Time) {
	r.add("verified:" + deviceID)
}

func (r *recordingSink) SessionEnded(string, time.Time) { r.add("end") }

type recordingEvents struct {
	recordingSink
}

func (r *recordingEvents) Publish(ev api.Event) { r.add(ev.Type) }

type recordingState struct {
	recordingSink
	snapshots []session.Snapshot
}

func (r *recordingState) Publish(kind string, snapshot any, _ any) {
	r.mu.Lock()
	r.calls = append(r.calls, kind)
	r.snapshots = append(r.snapshots, snapshot.(session.Snapshot))
	r.mu.Unlock()
}

func runMachine(t *testing.T) (*session.Machine, *stubTransport) {
	t.Helper()
	st := &stubTransport{}
	m := session.NewMachine(st, session.Options{}, nil, nil)
	return m, st
}

func start(t *testing.T, m *session.Machine) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = m.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-m.Done()
	})
}

// connectAndVerify 连接、收到验证通过、主动断开
func connectAndVerify(t *testing.T, m *session.Machine, st *stubTransport) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, m.Connect(ctx))
	st.push(hikeit.NewFrame(0x10, hikeit.TypeVerify, hikeit.Content{0x01}, testDevice))
	require.Eventually(t, func() bool { return m.Phase() == session.PhaseVerified },
		time.Second, 5*time.Millisecond)
	require.NoError(t, m.Disconnect(ctx))
}

func TestWireFrameLog(t *testing.T) {
	m, st := runMachine(t)
	sink := &recordingSink{}
	WireFrameLog(m, sink, func() string { return "AA:BB:CC:DD:EE:FF" })
	start(t, m)

	connectAndVerify(t, m, st)

	assert.Equal(t, []string{
		"start:AA:BB:CC:DD:EE:FF",
		"frame:tx:09",
		"frame:rx:09",
		"verified:12345678",
		"frame:tx:09",
		"end",
	}, sink.list())
}

func TestWireFrameLog_EndOnlyOnce(t *testing.T) {
	m, _ := runMachine(t)
	sink := &recordingSink{}
	WireFrameLog(m, sink, func() string { return "" })
	start(t, m)

	ctx := context.Background()
	require.NoError(t, m.Connect(ctx))
	require.NoError(t, m.Disconnect(ctx))
	require.NoError(t, m.Disconnect(ctx))

	assert.Equal(t, []string{"start:", "frame:tx:09", "end"}, sink.list())
}

func TestWireEvents(t *testing.T) {
	m, st := runMachine(t)
	events := &recordingEvents{}
	state := &recordingState{}
	WireEvents(m, nil, events, state)
	start(t, m)

	connectAndVerify(t, m, st)

	wantState := []string{
		api.EventPhase, api.EventConnected,
		api.EventPhase,
		api.EventMessage, api.EventPhase, api.EventVerified,
		api.EventPhase, api.EventDisconnected,
	}
	assert.Equal(t, wantState, state.list())
	assert.Equal(t, []string{
		api.EventPhase, api.EventConnected,
		api.EventFrame, api.EventPhase,
		api.EventFrame, api.EventMessage, api.EventPhase, api.EventVerified,
		api.EventFrame, api.EventPhase, api.EventDisconnected,
	}, events.list())

	// 验证事件携带已学习的设备ID
	state.mu.Lock()
	defer state.mu.Unlock()
	assert.Equal(t, "12345678", state.snapshots[5].DeviceID)
	assert.Equal(t, session.PhaseDisconnected, state.snapshots[7].Phase)
}

func TestWireEvents_NilSinks(t *testing.T) {
	m, st := runMachine(t)
	WireEvents(m, nil, nil, nil)
	start(t, m)

	connectAndVerify(t, m, st)
	assert.Equal(t, session.PhaseDisconnected, m.Phase())
}

func TestLoadSpeedLabels(t *testing.T) {
	tests := []struct {
		name    string
		labels  string
		wantErr bool
	}{
		{"默认", "", false},
		{"标准", "standard", false},
		{"ESPHome", "ESPHome", false},
		{"未知", "racing", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ls, err := LoadSpeedLabels(cfgpkg.ProtocolConfig{SpeedLabels: tt.labels})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, ls.Labels())
		})
	}
}
