package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/hikeit-ble/internal/host"
	"github.com/taoyao-code/hikeit-ble/internal/protocol/hikeit"
	"github.com/taoyao-code/hikeit-ble/internal/session"
	pgstorage "github.com/taoyao-code/hikeit-ble/internal/storage/pg"
	"github.com/taoyao-code/hikeit-ble/internal/transport/bluez"
)

const (
	defaultCommandTimeout = 10 * time.Second
	defaultScanDuration   = 5 * time.Second
	maxScanDuration       = 30 * time.Second
)

// StandardResponse 标准响应格式
type StandardResponse struct {
	Code      int         `json:"code"`           // 0=成功, >0=错误码
	Message   string      `json:"message"`        // 消息
	Data      interface{} `json:"data,omitempty"` // 业务数据
	RequestID string      `json:"request_id"`     // 请求追踪ID
	Timestamp int64       `json:"timestamp"`      // 时间戳
}

// Scanner 设备扫描
type Scanner interface {
	Scan(ctx context.Context, d time.Duration) ([]bluez.Device, error)
}

// FrameQuery 帧日志查询，未启用数据库时为 nil
type FrameQuery interface {
	RecentFrames(ctx context.Context, sessionID string, limit int) ([]pgstorage.FrameRecord, error)
	RecentSessions(ctx context.Context, limit int) ([]pgstorage.SessionRecord, error)
}

// DeviceHandler 设备控制接口
type DeviceHandler struct {
	machine *session.Machine
	bridge  *host.Bridge
	scanner Scanner
	frames  FrameQuery
	timeout time.Duration
	logger  *zap.Logger
}

// NewDeviceHandler scanner 与 frames 可为 nil
func NewDeviceHandler(m *session.Machine, b *host.Bridge, scanner Scanner, frames FrameQuery, timeout time.Duration, logger *zap.Logger) *DeviceHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	return &DeviceHandler{
		machine: m,
		bridge:  b,
		scanner: scanner,
		frames:  frames,
		timeout: timeout,
		logger:  logger,
	}
}

// DeviceView 设备视图
type DeviceView struct {
	session.Snapshot
	StatusText     string `json:"status_text"`
	Address        string `json:"address"`
	ConnectAllowed bool   `json:"connect_allowed"`
	HasPIN         bool   `json:"has_pin"`
	Locked         bool   `json:"locked"`
	SpeedMode      string `json:"speed_mode,omitempty"`
	Version        string `json:"version,omitempty"`
}

// View 当前设备视图
func (h *DeviceHandler) View() DeviceView {
	v := DeviceView{
		Snapshot:       h.machine.Snapshot(),
		StatusText:     h.bridge.StatusText(),
		Address:        h.bridge.Address(),
		ConnectAllowed: h.bridge.ConnectAllowed(),
		HasPIN:         h.bridge.HasPIN(),
		Locked:         h.bridge.Locked(),
	}
	if label, ok := h.bridge.SpeedModeLabel(); ok {
		v.SpeedMode = label
	}
	if v.Status != nil {
		v.Version = v.Status.Version()
	}
	return v
}

// GetDevice GET /api/v1/device
func (h *DeviceHandler) GetDevice(c *gin.Context) {
	h.ok(c, "ok", h.View())
}

// GetLabels GET /api/v1/labels 模式选择器选项
func (h *DeviceHandler) GetLabels(c *gin.Context) {
	h.ok(c, "ok", gin.H{"labels": h.bridge.Labels()})
}

// Connect POST /api/v1/device/connect 立即连接（验证结果异步到达）
func (h *DeviceHandler) Connect(c *gin.Context) {
	h.run(c, "connect", func(ctx context.Context) error { return h.machine.Connect(ctx) })
}

// Disconnect POST /api/v1/device/disconnect
func (h *DeviceHandler) Disconnect(c *gin.Context) {
	h.run(c, "disconnect", func(ctx context.Context) error { return h.machine.Disconnect(ctx) })
}

// Verify POST /api/v1/device/verify 重发连接验证
func (h *DeviceHandler) Verify(c *gin.Context) {
	h.run(c, "verify", func(ctx context.Context) error { return h.machine.Verify(ctx) })
}

type allowedRequest struct {
	Allowed *bool `json:"allowed" binding:"required"`
}

// SetConnectAllowed PUT /api/v1/device/connect-allowed
func (h *DeviceHandler) SetConnectAllowed(c *gin.Context) {
	var req allowedRequest
	if !h.bind(c, &req) {
		return
	}
	h.run(c, "connect_allowed", func(ctx context.Context) error { return h.bridge.SetConnectAllowed(ctx, *req.Allowed) })
}

type addressRequest struct {
	Address string `json:"address" binding:"required"`
}

// SetAddress PUT /api/v1/device/address
func (h *DeviceHandler) SetAddress(c *gin.Context) {
	var req addressRequest
	if !h.bind(c, &req) {
		return
	}
	h.run(c, "address", func(ctx context.Context) error { return h.bridge.SetAddress(ctx, req.Address) })
}

type pinRequest struct {
	PIN string `json:"pin"`
}

// SetPIN PUT /api/v1/device/pin，空串清除
func (h *DeviceHandler) SetPIN(c *gin.Context) {
	var req pinRequest
	if !h.bind(c, &req) {
		return
	}
	h.run(c, "pin", func(context.Context) error { return h.bridge.SetPIN(req.PIN) })
}

type modeRequest struct {
	Label string `json:"label"` // 标签表中的标签
	Mode  string `json:"mode"`  // 或模式名，例如 sport
	AT    *bool  `json:"at"`    // 仅与 mode 一起使用，缺省沿用最近状态
}

// SetMode POST /api/v1/device/mode
func (h *DeviceHandler) SetMode(c *gin.Context) {
	var req modeRequest
	if !h.bind(c, &req) {
		return
	}
	switch {
	case req.Label != "":
		h.run(c, "mode", func(ctx context.Context) error { return h.bridge.SelectSpeedMode(ctx, req.Label) })
	case req.Mode != "":
		mode, err := hikeit.ParseSpeedMode(req.Mode)
		if err != nil {
			h.fail(c, http.StatusBadRequest, err.Error())
			return
		}
		h.run(c, "mode", func(ctx context.Context) error {
			at := false
			if req.AT != nil {
				at = *req.AT
			} else if st := h.machine.Snapshot().Status; st != nil {
				at = st.AT
			}
			return h.machine.SetSpeedMode(ctx, mode, at)
		})
	default:
		h.fail(c, http.StatusBadRequest, "label or mode is required")
	}
}

type stepRequest struct {
	Step *int `json:"step" binding:"required"`
}

// SetStep POST /api/v1/device/step
func (h *DeviceHandler) SetStep(c *gin.Context) {
	var req stepRequest
	if !h.bind(c, &req) {
		return
	}
	h.run(c, "step", func(ctx context.Context) error { return h.bridge.SetStep(ctx, *req.Step) })
}

type lockRequest struct {
	Locked *bool  `json:"locked" binding:"required"`
	PIN    string `json:"pin"` // 非空时先保存 PIN
}

// SetLocked POST /api/v1/device/lock
func (h *DeviceHandler) SetLocked(c *gin.Context) {
	var req lockRequest
	if !h.bind(c, &req) {
		return
	}
	h.run(c, "lock", func(ctx context.Context) error {
		if req.PIN != "" {
			if err := h.bridge.SetPIN(req.PIN); err != nil {
				return err
			}
		}
		return h.bridge.SetLocked(ctx, *req.Locked)
	})
}

// PressScreen POST /api/v1/device/screen
func (h *DeviceHandler) PressScreen(c *gin.Context) {
	h.run(c, "screen", h.bridge.PressScreen)
}

type autoRequest struct {
	Enable *bool `json:"enable"` // 缺省时翻转
}

// PressAuto POST /api/v1/device/auto
func (h *DeviceHandler) PressAuto(c *gin.Context) {
	var req autoRequest
	if c.Request.ContentLength > 0 && !h.bind(c, &req) {
		return
	}
	h.run(c, "auto", func(ctx context.Context) error {
		if req.Enable != nil {
			return h.machine.SetAuto(ctx, *req.Enable)
		}
		return h.bridge.PressAuto(ctx)
	})
}

// StudyMode POST /api/v1/device/study
func (h *DeviceHandler) StudyMode(c *gin.Context) {
	h.run(c, "study", h.machine.SendStudyMode)
}

// Scan GET /api/v1/device/scan?seconds=5
func (h *DeviceHandler) Scan(c *gin.Context) {
	if h.scanner == nil {
		h.fail(c, http.StatusNotImplemented, "scan not available")
		return
	}
	d := defaultScanDuration
	if v := c.Query("seconds"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.fail(c, http.StatusBadRequest, fmt.Sprintf("invalid seconds %q", v))
			return
		}
		d = min(time.Duration(n)*time.Second, maxScanDuration)
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), d+h.timeout)
	defer cancel()
	devices, err := h.scanner.Scan(ctx, d)
	if err != nil {
		h.logger.Warn("scan failed", zap.Error(err))
		h.fail(c, http.StatusBadGateway, err.Error())
		return
	}
	h.ok(c, "ok", gin.H{"devices": devices})
}

// ListFrames GET /api/v1/frames?session_id=&limit=
func (h *DeviceHandler) ListFrames(c *gin.Context) {
	if h.frames == nil {
		h.fail(c, http.StatusNotFound, "frame log disabled")
		return
	}
	limit := queryInt(c, "limit", 100)
	frames, err := h.frames.RecentFrames(c.Request.Context(), c.Query("session_id"), limit)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	h.ok(c, "ok", gin.H{"frames": frames})
}

// ListSessions GET /api/v1/sessions?limit=
func (h *DeviceHandler) ListSessions(c *gin.Context) {
	if h.frames == nil {
		h.fail(c, http.StatusNotFound, "frame log disabled")
		return
	}
	sessions, err := h.frames.RecentSessions(c.Request.Context(), queryInt(c, "limit", 20))
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	h.ok(c, "ok", gin.H{"sessions": sessions})
}

func queryInt(c *gin.Context, key string, def int) int {
	if v := c.Query(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func (h *DeviceHandler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.fail(c, http.StatusBadRequest, fmt.Sprintf("无效的请求: %v", err))
		return false
	}
	return true
}

// run 在命令超时内执行并按错误类型返回
func (h *DeviceHandler) run(c *gin.Context, op string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		code := classifyError(err)
		if code >= http.StatusInternalServerError {
			h.logger.Warn("device command failed", zap.String("op", op), zap.Error(err))
		}
		h.fail(c, code, err.Error())
		return
	}
	h.ok(c, op+" ok", h.View())
}

func classifyError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, hikeit.ErrMissingStatus), errors.Is(err, session.ErrAlreadyConnected):
		return http.StatusConflict
	case errors.Is(err, hikeit.ErrInvalidPin), errors.Is(err, host.ErrUnknownLabel), errors.Is(err, host.ErrInvalidAddress):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotConnected), errors.Is(err, session.ErrMachineStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrTransport):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (h *DeviceHandler) ok(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, StandardResponse{
		Code:      0,
		Message:   message,
		Data:      data,
		RequestID: c.GetString("request_id"),
		Timestamp: time.Now().Unix(),
	})
}

func (h *DeviceHandler) fail(c *gin.Context, status int, message string) {
	c.JSON(status, StandardResponse{
		Code:      status,
		Message:   strings.TrimSpace(message),
		RequestID: c.GetString("request_id"),
		Timestamp: time.Now().Unix(),
	})
}
