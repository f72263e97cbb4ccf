package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/taoyao-code/hikeit-ble/internal/metrics"
)

const (
	defaultEventBuffer = 256
	eventWriteTimeout  = 200 * time.Millisecond
	wsPingPeriod       = 30 * time.Second
	wsPongWait         = 60 * time.Second
)

// 事件类型
const (
	EventPhase        = "phase"
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
	EventVerified     = "verified"
	EventMessage      = "message"
	EventStatus       = "status"
	EventFrame        = "frame"
	EventError        = "error"
	EventStatusText   = "status_text"
)

// Event 推送给 websocket 客户端的事件
type Event struct {
	Type      string      `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// NewEvent 以当前时间（毫秒）创建事件
func NewEvent(typ string, payload interface{}) Event {
	return Event{Type: typ, Timestamp: time.Now().UnixMilli(), Payload: payload}
}

// EventHub websocket 客户端集合。Publish 只入队，由 Run 协程广播，
// 会话回调因此不会被慢客户端阻塞
type EventHub struct {
	clients map[*websocket.Conn]bool
	mu      sync.Mutex

	events   chan Event
	upgrader websocket.Upgrader
	log      *zap.Logger
	metrics  *metrics.AppMetrics
}

func NewEventHub(buffer int, logger *zap.Logger, m *metrics.AppMetrics) *EventHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	return &EventHub{
		clients: make(map[*websocket.Conn]bool),
		events:  make(chan Event, buffer),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:     logger,
		metrics: m,
	}
}

// Publish 入队一条事件，队列满时丢弃
func (h *EventHub) Publish(ev Event) {
	select {
	case h.events <- ev:
	default:
		h.log.Debug("event queue full, dropping", zap.String("type", ev.Type))
	}
}

// Clients 当前连接数
func (h *EventHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *EventHub) addClient(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = true
	n := len(h.clients)
	h.mu.Unlock()
	h.setGauge(n)
}

func (h *EventHub) removeClient(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		conn.Close()
		h.setGauge(n)
	}
}

func (h *EventHub) setGauge(n int) {
	if h.metrics != nil {
		h.metrics.EventClients.Set(float64(n))
	}
}

// Run 广播循环，ctx 取消时关闭所有客户端
func (h *EventHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case ev := <-h.events:
			h.broadcast(ev)
		}
	}
}

func (h *EventHub) closeAll() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.Unlock()
	for _, conn := range conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
			time.Now().Add(eventWriteTimeout))
		h.removeClient(conn)
	}
}

// broadcast 并发写各客户端，写失败的客户端被移除。
// 数据帧只在此处写出，同一连接不会并发写
func (h *EventHub) broadcast(ev Event) {
	h.mu.Lock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	var failedMu sync.Mutex
	var failed []*websocket.Conn
	for _, conn := range clients {
		wg.Add(1)
		go func(c *websocket.Conn) {
			defer wg.Done()
			_ = c.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := c.WriteJSON(ev); err != nil {
				failedMu.Lock()
				failed = append(failed, c)
				failedMu.Unlock()
			}
		}(conn)
	}
	wg.Wait()

	for _, conn := range failed {
		h.log.Debug("websocket client dropped", zap.String("remote", conn.RemoteAddr().String()))
		h.removeClient(conn)
	}
}

// Handle GET /api/v1/events 升级为 websocket 并保持连接直到客户端断开
func (h *EventHub) Handle(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	h.addClient(conn)
	h.log.Info("websocket client connected", zap.String("remote", conn.RemoteAddr().String()))
	defer func() {
		h.removeClient(conn)
		h.log.Info("websocket client closed", zap.String("remote", conn.RemoteAddr().String()))
	}()

	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.log.Debug("websocket read", zap.Error(err))
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventWriteTimeout)); err != nil {
				return
			}
		}
	}
}
