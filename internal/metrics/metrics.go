package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// 会话阶段，与 session.Phase 的字符串值一致
var phases = []string{"disconnected", "connected", "awaiting_verification", "verified"}

// AppMetrics 自定义业务指标
type AppMetrics struct {
	FramesSent        *prometheus.CounterVec // labels: type
	FramesReceived    *prometheus.CounterVec // labels: type
	FrameErrors       *prometheus.CounterVec // labels: reason=framing|checksum|status
	WriteErrors       prometheus.Counter
	ConnectTotal      *prometheus.CounterVec // labels: result=ok|error
	VerifyTotal       *prometheus.CounterVec // labels: result=ok|rejected
	ReconnectAttempts prometheus.Counter
	SessionPhase      *prometheus.GaugeVec   // labels: phase，当前阶段为1
	EventClients      prometheus.Gauge       // websocket 订阅者数
	PublishErrors     *prometheus.CounterVec // labels: sink=redis|pg
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg *prometheus.Registry) *AppMetrics {
	m := &AppMetrics{
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hikeit_frames_sent_total",
			Help: "Frames written to the BLE characteristic by message type.",
		}, []string{"type"}),
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hikeit_frames_received_total",
			Help: "Frames decoded from BLE notifications by message type.",
		}, []string{"type"}),
		FrameErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hikeit_frame_errors_total",
			Help: "Dropped or suspicious inbound frames by reason.",
		}, []string{"reason"}),
		WriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hikeit_write_errors_total",
			Help: "Failed writes to the BLE characteristic.",
		}),
		ConnectTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hikeit_connect_total",
			Help: "BLE connect attempts by result.",
		}, []string{"result"}),
		VerifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hikeit_verify_total",
			Help: "Verification replies by result.",
		}, []string{"result"}),
		ReconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hikeit_reconnect_attempts_total",
			Help: "Reconnect attempts issued by the supervisor.",
		}),
		SessionPhase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hikeit_session_phase",
			Help: "Current session phase (1 for the active phase).",
		}, []string{"phase"}),
		EventClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hikeit_event_clients",
			Help: "Connected websocket event subscribers.",
		}),
		PublishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hikeit_publish_errors_total",
			Help: "Failed mirror writes by sink.",
		}, []string{"sink"}),
	}
	reg.MustRegister(m.FramesSent, m.FramesReceived, m.FrameErrors, m.WriteErrors, m.ConnectTotal,
		m.VerifyTotal, m.ReconnectAttempts, m.SessionPhase, m.EventClients, m.PublishErrors)
	m.SetPhase("disconnected")
	return m
}

// SetPhase 将当前阶段置1，其余置0
func (m *AppMetrics) SetPhase(phase string) {
	for _, p := range phases {
		v := 0.0
		if p == phase {
			v = 1
		}
		m.SessionPhase.WithLabelValues(p).Set(v)
	}
}
