package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/hikeit-ble/internal/config"
	"github.com/taoyao-code/hikeit-ble/internal/metrics"
)

const (
	clientName         = "hikeit-gateway"
	defaultDialTimeout = 2 * time.Second
)

// ErrMirrorDisabled 配置中关闭了状态镜像
var ErrMirrorDisabled = errors.New("redis: state mirror disabled")

// Client 状态镜像所用的连接，带快照键前缀、频道与过期时间
type Client struct {
	*redis.Client
	keyPrefix string
	channel   string
	ttl       time.Duration
}

// MirrorState 镜像侧的即时状态，供健康检查使用
type MirrorState struct {
	SnapshotKey string
	// SnapshotTTL 快照剩余有效期；键不存在或未设过期时为 0
	SnapshotTTL time.Duration
	TotalConns  uint32
	IdleConns   uint32
	Timeouts    uint32
}

// NewClient 建立连接并在拨号超时内完成一次 PING
func NewClient(cfg cfgpkg.RedisConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrMirrorDisabled
	}
	dial := cfg.DialTimeout
	if dial <= 0 {
		dial = defaultDialTimeout
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ClientName:   clientName,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dial,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), dial)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return &Client{
		Client:    rdb,
		keyPrefix: cfg.KeyPrefix,
		channel:   cfg.Channel,
		ttl:       cfg.StatusTTL,
	}, nil
}

// SnapshotKey 快照所在键
func (c *Client) SnapshotKey() string { return c.keyPrefix + snapshotKey }

// Publisher 按本连接的键名与过期时间创建发布器
func (c *Client) Publisher(logger *zap.Logger, m *metrics.AppMetrics) *Publisher {
	return NewPublisher(c.Client, PublisherOptions{
		KeyPrefix: c.keyPrefix,
		Channel:   c.channel,
		TTL:       c.ttl,
	}, logger, m)
}

// Inspect 一次往返内完成 PING 与快照 PTTL 查询
func (c *Client) Inspect(ctx context.Context) (MirrorState, error) {
	st := MirrorState{SnapshotKey: c.SnapshotKey()}
	var pttl *redis.DurationCmd
	_, err := c.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Ping(ctx)
		pttl = pipe.PTTL(ctx, st.SnapshotKey)
		return nil
	})
	if err != nil {
		return st, err
	}
	if d := pttl.Val(); d > 0 {
		st.SnapshotTTL = d
	}
	ps := c.PoolStats()
	st.TotalConns, st.IdleConns, st.Timeouts = ps.TotalConns, ps.IdleConns, ps.Timeouts
	return st, nil
}
