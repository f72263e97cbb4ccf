package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/hikeit-ble/internal/config"
	"github.com/taoyao-code/hikeit-ble/internal/metrics"
	"github.com/taoyao-code/hikeit-ble/internal/protocol/hikeit"
	"github.com/taoyao-code/hikeit-ble/internal/session"
)

// NewSessionAndSupervisor 构造会话状态机与自动重连
func NewSessionAndSupervisor(
	cfg *cfgpkg.Config,
	transport session.Transport,
	logger *zap.Logger,
	appm *metrics.AppMetrics,
) (*session.Machine, *session.Supervisor) {
	opts := session.DefaultOptions()
	opts.ConnectSettle = cfg.BLE.ConnectSettle
	opts.DisconnectSettle = cfg.BLE.DisconnectSettle
	opts.WriteInterval = cfg.BLE.WriteInterval
	opts.StrictChecksum = cfg.Protocol.StrictChecksum

	m := session.NewMachine(transport, opts, logger.Named("session"), appm)
	sup := session.NewSupervisor(m, cfg.BLE.ReconnectDelay, cfg.BLE.ConnectTimeout, logger.Named("supervisor"), appm)

	logger.Info("session machine configured",
		zap.Duration("connect_settle", opts.ConnectSettle),
		zap.Duration("write_interval", opts.WriteInterval),
		zap.Bool("strict_checksum", opts.StrictChecksum),
		zap.Duration("reconnect_delay", cfg.BLE.ReconnectDelay))
	return m, sup
}

// LoadSpeedLabels 速度模式标签：文件优先，否则使用内置变体
func LoadSpeedLabels(cfg cfgpkg.ProtocolConfig) (*hikeit.LabelSet, error) {
	if cfg.SpeedLabelsFile != "" {
		return hikeit.LoadLabelSet(cfg.SpeedLabelsFile)
	}
	return hikeit.BuiltinLabels(cfg.SpeedLabels)
}
