package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/taoyao-code/hikeit-ble/internal/metrics"
)

const (
	snapshotKey      = "snapshot"
	defaultPubBuffer = 128
	publishTimeout   = 2 * time.Second
)

// Message 发布到频道的事件
type Message struct {
	Kind string          `json:"kind"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data,omitempty"`
}

type pubOp struct {
	snapshot []byte // 非空时覆盖最新快照
	message  []byte // 非空时发布到频道
}

// Publisher 把会话快照镜像到 Redis 并在频道上广播事件。
// 只写不读：Redis 不是会话状态的来源，入队不阻塞调用方
type Publisher struct {
	rdb     redis.Cmdable
	key     string
	channel string
	ttl     time.Duration
	ops     chan pubOp
	log     *zap.Logger
	metrics *metrics.AppMetrics

	dropped atomic.Uint64
	done    chan struct{}
}

// PublisherOptions 键名与过期时间
type PublisherOptions struct {
	KeyPrefix string
	Channel   string
	TTL       time.Duration
	Buffer    int
}

func NewPublisher(rdb redis.Cmdable, opts PublisherOptions, logger *zap.Logger, m *metrics.AppMetrics) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Buffer <= 0 {
		opts.Buffer = defaultPubBuffer
	}
	if opts.Channel == "" {
		opts.Channel = opts.KeyPrefix + "events"
	}
	return &Publisher{
		rdb:     rdb,
		key:     opts.KeyPrefix + snapshotKey,
		channel: opts.Channel,
		ttl:     opts.TTL,
		ops:     make(chan pubOp, opts.Buffer),
		log:     logger,
		metrics: m,
		done:    make(chan struct{}),
	}
}

// SnapshotKey 快照所在键
func (p *Publisher) SnapshotKey() string { return p.key }

// Channel 事件频道
func (p *Publisher) Channel() string { return p.channel }

// Dropped 队列满时丢弃的次数
func (p *Publisher) Dropped() uint64 { return p.dropped.Load() }

// Done Run 退出后关闭
func (p *Publisher) Done() <-chan struct{} { return p.done }

func (p *Publisher) enqueue(op pubOp) {
	select {
	case p.ops <- op:
	default:
		if p.dropped.Add(1)%100 == 1 {
			p.log.Warn("redis publish queue full, dropping", zap.Uint64("dropped", p.dropped.Load()))
		}
	}
}

// Publish 更新最新快照并广播一条事件；snapshot 为 nil 时只广播
func (p *Publisher) Publish(kind string, snapshot any, data any) {
	op := pubOp{}
	if snapshot != nil {
		b, err := json.Marshal(snapshot)
		if err != nil {
			p.log.Warn("marshal snapshot", zap.Error(err))
			return
		}
		op.snapshot = b
	}
	msg := Message{Kind: kind, At: time.Now()}
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			p.log.Warn("marshal event", zap.String("kind", kind), zap.Error(err))
			return
		}
		msg.Data = b
	}
	b, err := json.Marshal(msg)
	if err != nil {
		p.log.Warn("marshal message", zap.Error(err))
		return
	}
	op.message = b
	p.enqueue(op)
}

// Run 消费队列直到 ctx 取消
func (p *Publisher) Run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			return
		case op := <-p.ops:
			if err := p.write(ctx, op); err != nil {
				if p.metrics != nil {
					p.metrics.PublishErrors.WithLabelValues("redis").Inc()
				}
				p.log.Warn("redis publish failed", zap.Error(err))
			}
		}
	}
}

func (p *Publisher) write(ctx context.Context, op pubOp) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	_, err := p.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		if op.snapshot != nil {
			pipe.Set(ctx, p.key, op.snapshot, p.ttl)
		}
		if op.message != nil {
			pipe.Publish(ctx, p.channel, op.message)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	return nil
}
