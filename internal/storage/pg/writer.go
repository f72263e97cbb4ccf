package pg

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/hikeit-ble/internal/metrics"
)

const (
	defaultWriterBuffer = 256
	writerBatchSize     = 64
	writerFlushEvery    = time.Second
	writerStopTimeout   = 5 * time.Second
)

// Store 帧日志存储
type Store interface {
	InsertFrames(ctx context.Context, frames []FrameRecord) error
	StartSession(ctx context.Context, s SessionRecord) error
	MarkVerified(ctx context.Context, sessionID, deviceID string, at time.Time) error
	EndSession(ctx context.Context, sessionID string, at time.Time) error
}

type opKind int

const (
	opFrame opKind = iota
	opStart
	opVerified
	opEnd
)

type writeOp struct {
	kind    opKind
	frame   FrameRecord
	session SessionRecord
}

// Writer 异步写入帧日志。入队不阻塞，队列满时丢弃并计数；
// 帧按批量写入，会话记录按到达顺序执行（写会话前先刷出已缓冲的帧）
type Writer struct {
	store   Store
	ops     chan writeOp
	log     *zap.Logger
	metrics *metrics.AppMetrics

	batchSize  int
	flushEvery time.Duration

	batch   []FrameRecord // 仅 Run 协程访问
	dropped atomic.Uint64
	failed  atomic.Uint64
	done    chan struct{}
}

func NewWriter(store Store, buffer int, logger *zap.Logger, m *metrics.AppMetrics) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = defaultWriterBuffer
	}
	return &Writer{
		store:      store,
		ops:        make(chan writeOp, buffer),
		log:        logger,
		metrics:    m,
		batchSize:  writerBatchSize,
		flushEvery: writerFlushEvery,
		batch:      make([]FrameRecord, 0, writerBatchSize),
		done:       make(chan struct{}),
	}
}

func (w *Writer) enqueue(op writeOp) {
	select {
	case w.ops <- op:
	default:
		if w.dropped.Add(1)%100 == 1 {
			w.log.Warn("frame log queue full, dropping", zap.Uint64("dropped", w.dropped.Load()))
		}
	}
}

// Frame 记录一帧
func (w *Writer) Frame(f FrameRecord) { w.enqueue(writeOp{kind: opFrame, frame: f}) }

// SessionStarted 记录连接开始
func (w *Writer) SessionStarted(s SessionRecord) { w.enqueue(writeOp{kind: opStart, session: s}) }

// SessionVerified 记录验证通过
func (w *Writer) SessionVerified(sessionID, deviceID string, at time.Time) {
	w.enqueue(writeOp{kind: opVerified, session: SessionRecord{ID: sessionID, DeviceID: deviceID, VerifiedAt: &at}})
}

// SessionEnded 记录连接结束
func (w *Writer) SessionEnded(sessionID string, at time.Time) {
	w.enqueue(writeOp{kind: opEnd, session: SessionRecord{ID: sessionID, EndedAt: &at}})
}

// Dropped 因队列满被丢弃的记录数
func (w *Writer) Dropped() uint64 { return w.dropped.Load() }

// Failed 写库失败的记录数
func (w *Writer) Failed() uint64 { return w.failed.Load() }

// Done Run 退出后关闭
func (w *Writer) Done() <-chan struct{} { return w.done }

// Run 消费队列直到 ctx 取消，退出前写完已入队的记录
func (w *Writer) Run(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.flushEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sctx, cancel := context.WithTimeout(context.Background(), writerStopTimeout)
			w.drain(sctx)
			cancel()
			return
		case op := <-w.ops:
			w.apply(ctx, op)
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Writer) drain(ctx context.Context) {
	for {
		select {
		case op := <-w.ops:
			w.apply(ctx, op)
		default:
			w.flush(ctx)
			return
		}
	}
}

func (w *Writer) flush(ctx context.Context) {
	if len(w.batch) == 0 {
		return
	}
	if err := w.store.InsertFrames(ctx, w.batch); err != nil {
		w.fail(len(w.batch), "insert frames", err)
	}
	w.batch = w.batch[:0]
}

func (w *Writer) apply(ctx context.Context, op writeOp) {
	if op.kind == opFrame {
		w.batch = append(w.batch, op.frame)
		if len(w.batch) >= w.batchSize {
			w.flush(ctx)
		}
		return
	}
	// 会话记录与帧保持到达顺序
	w.flush(ctx)

	var err error
	s := op.session
	switch op.kind {
	case opStart:
		err = w.store.StartSession(ctx, s)
	case opVerified:
		err = w.store.MarkVerified(ctx, s.ID, s.DeviceID, *s.VerifiedAt)
	case opEnd:
		err = w.store.EndSession(ctx, s.ID, *s.EndedAt)
	}
	if err != nil {
		w.fail(1, "session record", err)
	}
}

func (w *Writer) fail(n int, what string, err error) {
	w.failed.Add(uint64(n))
	if w.metrics != nil {
		w.metrics.PublishErrors.WithLabelValues("pg").Inc()
	}
	w.log.Warn("frame log write failed", zap.String("op", what), zap.Int("records", n), zap.Error(err))
}
