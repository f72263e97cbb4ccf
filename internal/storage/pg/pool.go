package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	cfgpkg "github.com/taoyao-code/hikeit-ble/internal/config"
)

const (
	applicationName = "hikeit-gateway"
	// minFrameLogConns 写入器独占一条，历史查询一条
	minFrameLogConns = 2
	poolPingTimeout  = 3 * time.Second
)

// NewPool 帧日志连接池。只有一个写入协程，连接数按写入器加查询接口确定
func NewPool(ctx context.Context, cfg cfgpkg.DatabaseConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}
	pc.ConnConfig.RuntimeParams["application_name"] = applicationName
	if logger != nil {
		pc.ConnConfig.Tracer = &tracelog.TraceLog{
			Logger:   frameLogTracer{log: logger.Named("pg")},
			LogLevel: tracelog.LogLevelWarn,
		}
	}

	pc.MaxConns = int32(max(cfg.MaxOpenConns, minFrameLogConns))
	pc.MinConns = int32(min(max(cfg.MaxIdleConns, 0), int(pc.MaxConns)))
	pc.MaxConnLifetime = cfg.ConnMaxLifetime
	if pc.MaxConnLifetime == 0 {
		pc.MaxConnLifetime = time.Hour
	}
	pc.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, poolPingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// frameLogTracer 只转发告警及以上；帧批量插入的参数不进日志
type frameLogTracer struct {
	log *zap.Logger
}

func (t frameLogTracer) Log(_ context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	fields := make([]zap.Field, 0, len(data))
	for k, v := range data {
		if k == "args" {
			continue
		}
		fields = append(fields, zap.Any(k, v))
	}
	t.log.Log(zapLevel(level), msg, fields...)
}

func zapLevel(level tracelog.LogLevel) zapcore.Level {
	switch level {
	case tracelog.LogLevelError:
		return zapcore.ErrorLevel
	case tracelog.LogLevelWarn:
		return zapcore.WarnLevel
	case tracelog.LogLevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
