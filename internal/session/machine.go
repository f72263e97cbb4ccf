package session

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/taoyao-code/hikeit-ble/internal/metrics"
	"github.com/taoyao-code/hikeit-ble/internal/protocol/hikeit"
)

const (
	defaultSettle    = 500 * time.Millisecond
	defaultQueueSize = 64
	shutdownTimeout  = 5 * time.Second
)

// Options 状态机参数
type Options struct {
	ConnectSettle    time.Duration // 连接后发送验证前的等待
	DisconnectSettle time.Duration // 发送断开通知后关闭传输前的等待
	WriteInterval    time.Duration // 写入最小间隔，0 不限速
	StrictChecksum   bool          // 校验和不符的帧直接丢弃
	QueueSize        int
}

// DefaultOptions 与设备参考实现一致的时序
func DefaultOptions() Options {
	return Options{
		ConnectSettle:    defaultSettle,
		DisconnectSettle: defaultSettle,
		QueueSize:        defaultQueueSize,
	}
}

// LinkMonitor 可选接口：传输层能感知链路意外断开时实现
type LinkMonitor interface {
	SetLinkLostHandler(fn func())
}

// Snapshot 会话对外视图
type Snapshot struct {
	Phase       Phase                  `json:"phase"`
	SessionID   string                 `json:"session_id,omitempty"`
	DeviceID    string                 `json:"device_id,omitempty"`
	Sequence    uint8                  `json:"sequence"`
	ConnectedAt time.Time              `json:"connected_at,omitzero"`
	Status      *hikeit.StatusSnapshot `json:"status,omitempty"`
}

type request struct {
	ctx   context.Context
	fn    func(ctx context.Context) error
	reply chan error
}

type inbound struct {
	gen     uint64
	payload []byte
	lost    bool
}

// Machine 会话状态机。Run 所在协程是 State 的唯一读写者，
// 传输通知与 API 请求都经由通道交给它串行处理
type Machine struct {
	transport Transport
	opts      Options
	log       *zap.Logger
	metrics   *metrics.AppMetrics
	hooks     *Hooks

	state   State
	gen     uint64
	phase   *fsm.FSM
	decoder hikeit.Decoder
	limiter *WriteLimiter

	requests chan *request
	inbound  chan inbound
	done     chan struct{}
	running  atomic.Bool

	mu   sync.RWMutex
	snap Snapshot

	now func() time.Time
}

// NewMachine 创建状态机；hooks 可为 nil，之后通过 Hooks() 注册
func NewMachine(t Transport, opts Options, logger *zap.Logger, m *metrics.AppMetrics) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	mc := &Machine{
		transport: t,
		opts:      opts,
		log:       logger,
		metrics:   m,
		hooks:     &Hooks{},
		decoder:   hikeit.Decoder{Strict: opts.StrictChecksum},
		limiter:   NewWriteLimiter(opts.WriteInterval),
		requests:  make(chan *request),
		inbound:   make(chan inbound, opts.QueueSize),
		done:      make(chan struct{}),
		snap:      Snapshot{Phase: PhaseDisconnected},
		now:       time.Now,
	}
	mc.phase = newPhaseFSM(mc.onEnterPhase)
	return mc
}

// Hooks 回调注册表，须在 Run 之前注册
func (m *Machine) Hooks() *Hooks { return m.hooks }

// Limiter 写入节流器（用于统计）
func (m *Machine) Limiter() *WriteLimiter { return m.limiter }

// Done Run 退出后关闭
func (m *Machine) Done() <-chan struct{} { return m.done }

// Snapshot 返回当前会话视图的副本。Status 快照整体替换、不会被原地修改
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

// Phase 当前阶段
func (m *Machine) Phase() Phase { return m.Snapshot().Phase }

// Run 事件循环，直到 ctx 取消。退出前若仍连接则发送断开通知
func (m *Machine) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return errors.New("session: machine already running")
	}
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return nil
		case in := <-m.inbound:
			m.handleInbound(ctx, in)
		case req := <-m.requests:
			req.reply <- req.fn(req.ctx)
		}
	}
}

func (m *Machine) shutdown() {
	if m.currentPhase() == PhaseDisconnected {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := m.disconnect(ctx); err != nil {
		m.log.Warn("disconnect on shutdown failed", zap.Error(err))
	}
}

// do 把请求交给事件循环执行并等待结果
func (m *Machine) do(ctx context.Context, fn func(ctx context.Context) error) error {
	req := &request{ctx: ctx, fn: fn, reply: make(chan error, 1)}
	select {
	case m.requests <- req:
	case <-m.done:
		return ErrMachineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-m.done:
		return ErrMachineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post 传输层协程投递入站事件
func (m *Machine) post(in inbound) {
	select {
	case m.inbound <- in:
	case <-m.done:
	}
}

func (m *Machine) currentPhase() Phase { return Phase(m.phase.Current()) }

func (m *Machine) fire(ev string) {
	// 阶段迁移是本地操作，不随请求取消
	if err := m.phase.Event(context.Background(), ev); err != nil {
		m.log.Warn("phase transition rejected",
			zap.String("event", ev),
			zap.String("phase", m.phase.Current()),
			zap.Error(err))
	}
}

func (m *Machine) onEnterPhase(p Phase) {
	m.publish()
	if m.metrics != nil {
		m.metrics.SetPhase(string(p))
	}
	m.log.Info("session phase", zap.String("phase", string(p)), zap.String("session_id", m.state.sessionID))
	m.hooks.firePhase(p)
}

// publish 将 State 同步到对外视图
func (m *Machine) publish() {
	s := Snapshot{
		Phase:       m.currentPhase(),
		SessionID:   m.state.sessionID,
		Sequence:    m.state.seq,
		ConnectedAt: m.state.connectedAt,
		Status:      m.state.status,
	}
	if !m.state.deviceID.IsZero() {
		s.DeviceID = m.state.deviceID.String()
	}
	m.mu.Lock()
	m.snap = s
	m.mu.Unlock()
}

func (m *Machine) connect(ctx context.Context) error {
	if m.currentPhase() != PhaseDisconnected {
		return ErrAlreadyConnected
	}
	m.gen++
	gen := m.gen
	if lm, ok := m.transport.(LinkMonitor); ok {
		lm.SetLinkLostHandler(func() { m.post(inbound{gen: gen, lost: true}) })
	}
	m.hooks.fireConnecting()
	m.log.Info("connecting")

	notify := func(b []byte) {
		m.post(inbound{gen: gen, payload: append([]byte(nil), b...)})
	}
	if err := m.transport.Connect(ctx, notify); err != nil {
		if m.metrics != nil {
			m.metrics.ConnectTotal.WithLabelValues("error").Inc()
		}
		m.gen++
		if cerr := m.transport.Close(context.WithoutCancel(ctx)); cerr != nil {
			m.log.Debug("close after failed connect", zap.Error(cerr))
		}
		err = fmt.Errorf("%w: connect: %w", ErrTransport, err)
		m.log.Warn("connect failed", zap.Error(err))
		m.hooks.fireError(err)
		return err
	}
	if m.metrics != nil {
		m.metrics.ConnectTotal.WithLabelValues("ok").Inc()
	}

	m.state.begin(m.now())
	m.fire(evConnect)
	m.hooks.fireConnected()

	if err := sleepCtx(ctx, m.opts.ConnectSettle); err != nil {
		m.teardown(ctx, "connect canceled")
		return err
	}
	if err := m.sendVerify(ctx); err != nil {
		if m.currentPhase() != PhaseDisconnected {
			m.teardown(ctx, "verify not sent")
		}
		return err
	}
	return nil
}

// sendVerify 发送连接验证，Connected 下迁移到 AwaitingVerification
func (m *Machine) sendVerify(ctx context.Context) error {
	if err := m.send(ctx, hikeit.BuildVerify(&m.state, true)); err != nil {
		return err
	}
	if m.currentPhase() == PhaseConnected {
		m.fire(evVerifySent)
	}
	return nil
}

func (m *Machine) disconnect(ctx context.Context) error {
	switch m.currentPhase() {
	case PhaseDisconnected:
		return nil
	case PhaseVerified:
		if err := m.send(ctx, hikeit.BuildVerify(&m.state, false)); err != nil {
			m.log.Warn("disconnect notice not sent", zap.Error(err))
		} else if err := sleepCtx(ctx, m.opts.DisconnectSettle); err != nil {
			m.log.Debug("disconnect settle interrupted", zap.Error(err))
		}
	}
	if m.currentPhase() != PhaseDisconnected {
		m.teardown(ctx, "requested")
	}
	return nil
}

// teardown 关闭传输、回到 Disconnected 并丢弃本次连接的状态
func (m *Machine) teardown(ctx context.Context, reason string) {
	m.gen++
	if err := m.transport.Close(context.WithoutCancel(ctx)); err != nil {
		m.log.Warn("transport close failed", zap.Error(err))
	}
	sid := m.state.sessionID
	m.state.reset()
	m.fire(evDisconnect)
	m.log.Info("disconnected", zap.String("reason", reason), zap.String("session_id", sid))
	m.hooks.fireDisconnected()
}

// send 节流后写入一帧；写失败视为传输错误并复位连接
func (m *Machine) send(ctx context.Context, f *hikeit.Frame) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait write slot: %w", err)
	}
	raw := f.Hex()
	if err := m.transport.Write(ctx, f.Bytes()); err != nil {
		if m.metrics != nil {
			m.metrics.WriteErrors.Inc()
		}
		err = fmt.Errorf("%w: write %s: %w", ErrTransport, f.Type, err)
		m.log.Error("write frame failed", zap.String("raw", raw), zap.Error(err))
		m.hooks.fireError(err)
		m.teardown(ctx, "write failed")
		return err
	}
	if m.metrics != nil {
		m.metrics.FramesSent.WithLabelValues(f.Type.String()).Inc()
	}
	m.log.Debug("frame sent",
		zap.String("raw", raw),
		zap.Uint8("seq", f.Sequence),
		zap.String("type", f.Type.String()))
	m.publish()
	m.hooks.fireFrame(FrameEvent{
		SessionID: m.state.sessionID,
		Direction: DirectionTx,
		Type:      f.Type,
		Sequence:  f.Sequence,
		Raw:       raw,
		At:        m.now(),
	})
	return nil
}

func (m *Machine) handleInbound(ctx context.Context, in inbound) {
	if in.gen != m.gen || m.currentPhase() == PhaseDisconnected {
		m.log.Debug("stale transport event dropped", zap.Bool("lost", in.lost))
		return
	}
	if in.lost {
		m.log.Warn("link lost", zap.String("session_id", m.state.sessionID))
		m.hooks.fireError(fmt.Errorf("%w: link lost", ErrTransport))
		m.teardown(ctx, "link lost")
		return
	}
	raw := strings.ToUpper(hex.EncodeToString(in.payload))
	frames, err := hikeit.SplitNotification(raw)
	if err != nil {
		m.frameError("framing", raw, err)
		return
	}
	for _, s := range frames {
		m.handleFrame(s)
	}
}

func (m *Machine) frameError(reason, raw string, err error) {
	if m.metrics != nil {
		m.metrics.FrameErrors.WithLabelValues(reason).Inc()
	}
	m.log.Warn("frame dropped", zap.String("reason", reason), zap.String("raw", raw), zap.Error(err))
}

func (m *Machine) handleFrame(raw string) {
	f, err := m.decoder.Decode(raw)
	if err != nil {
		if f == nil {
			reason := "framing"
			if errors.Is(err, hikeit.ErrChecksumMismatch) {
				reason = "checksum"
			}
			m.frameError(reason, raw, err)
			return
		}
		// 非严格模式：与设备参考实现一致，校验和不符照常处理
		if m.metrics != nil {
			m.metrics.FrameErrors.WithLabelValues("checksum").Inc()
		}
		m.log.Debug("checksum mismatch accepted", zap.String("raw", raw))
	}
	if m.metrics != nil {
		m.metrics.FramesReceived.WithLabelValues(f.Type.String()).Inc()
	}
	m.log.Debug("frame received", zap.String("raw", raw), zap.Uint8("seq", f.Sequence))

	if m.state.learnDeviceID(f.DeviceID) {
		m.log.Info("device id learned",
			zap.String("device_id", f.DeviceID.String()),
			zap.String("session_id", m.state.sessionID))
	}

	m.hooks.fireFrame(FrameEvent{
		SessionID: m.state.sessionID,
		Direction: DirectionRx,
		Type:      f.Type,
		Sequence:  f.Sequence,
		Raw:       raw,
		At:        m.now(),
	})
	m.hooks.fireMessage(raw)

	switch f.Type {
	case hikeit.TypeVerify:
		m.handleVerify(f)
	case hikeit.TypeStatus:
		st, err := hikeit.DecodeStatus(f)
		if err != nil {
			m.frameError("status", raw, err)
			return
		}
		m.state.status = st
		m.log.Debug("status", zap.String("status", st.String()))
		m.publish()
		m.hooks.fireStatus(st)
		return
	}
	m.publish()
}

func (m *Machine) handleVerify(f *hikeit.Frame) {
	if m.currentPhase() != PhaseAwaitingVerification {
		m.log.Debug("verify reply ignored", zap.String("phase", m.phase.Current()))
		return
	}
	if f.Content[0] == 0 {
		if m.metrics != nil {
			m.metrics.VerifyTotal.WithLabelValues("rejected").Inc()
		}
		m.log.Warn("verification rejected", zap.String("session_id", m.state.sessionID))
		m.hooks.fireError(ErrVerificationRejected)
		return
	}
	if m.metrics != nil {
		m.metrics.VerifyTotal.WithLabelValues("ok").Inc()
	}
	m.fire(evVerified)
	m.hooks.fireVerified()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
