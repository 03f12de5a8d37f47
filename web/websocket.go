package web

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"quantlab/metrics"
)

// 推送事件类型
const (
	EventBacktestStarted  = "backtest_started"
	EventBacktestFinished = "backtest_finished"
	EventBacktestFailed   = "backtest_failed"
	EventLog              = "log"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 50 * time.Second
	sendBuffer   = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Event 推送给客户端的消息
type Event struct {
	Type      string      `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	logs bool // 是否订阅日志
}

type hubMessage struct {
	data    []byte
	logOnly bool
}

// WebSocketHub WebSocket 中心，负责推送回测事件和实时日志
type WebSocketHub struct {
	clients    map[*wsClient]bool
	broadcast  chan hubMessage
	register   chan *wsClient
	unregister chan *wsClient
	quit       chan struct{}
	closeOnce  sync.Once
	mu         sync.RWMutex
}

// NewWebSocketHub 创建 WebSocket 中心
func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan hubMessage, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		quit:       make(chan struct{}),
	}
}

// Run 运行 WebSocket 中心，直到 Close
func (h *WebSocketHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.reportClients()

		case client := <-h.unregister:
			h.remove(client)

		case message := <-h.broadcast:
			h.mu.RLock()
			var slow []*wsClient
			for client := range h.clients {
				if message.logOnly && !client.logs {
					continue
				}
				select {
				case client.send <- message.data:
				default:
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()
			// 发送缓冲已满的客户端直接断开
			for _, client := range slow {
				h.remove(client)
			}

		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.reportClients()
			return
		}
	}
}

func (h *WebSocketHub) remove(client *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()
	h.reportClients()
}

func (h *WebSocketHub) reportClients() {
	metrics.GetPrometheusMetrics().SetWebSocketClients(h.ClientCount())
}

// ClientCount 当前连接数
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close 关闭所有连接并停止 Run
func (h *WebSocketHub) Close() {
	h.closeOnce.Do(func() { close(h.quit) })
}

// Broadcast 广播事件，队列满时丢弃
func (h *WebSocketHub) Broadcast(eventType string, data interface{}) {
	h.publish(eventType, data, false)
}

// BroadcastLog 推送日志，只发给订阅了日志的客户端
// 作为 logger 的 hook 使用，这里不能再调用 logger
func (h *WebSocketHub) BroadcastLog(level, message string) {
	h.publish(EventLog, gin.H{"level": level, "message": message}, true)
}

func (h *WebSocketHub) publish(eventType string, data interface{}, logOnly bool) {
	payload, err := json.Marshal(Event{
		Type:      eventType,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	})
	if err != nil {
		return
	}
	select {
	case h.broadcast <- hubMessage{data: payload, logOnly: logOnly}:
	case <-h.quit:
	default:
	}
}

// handleWebSocket 升级连接，?subscribe_logs=true 时同时推送实时日志
func (h *WebSocketHub) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		logs: c.Query("subscribe_logs") == "true",
	}

	select {
	case h.register <- client:
	case <-h.quit:
		conn.Close()
		return
	}

	go client.writePump()
	client.readPump(h)
}

// readPump 保持连接，读到错误后注销
func (c *wsClient) readPump(h *WebSocketHub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.quit:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
