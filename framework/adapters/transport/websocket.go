// Package transport предоставляет HTTP и WebSocket транспорты поверх шин команд и запросов.
package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	adapterevents "github.com/akriventsev/theater/framework/adapters/events"
	"github.com/akriventsev/theater/framework/core"
	"github.com/akriventsev/theater/framework/events"
	"github.com/akriventsev/theater/framework/metrics"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WebSocketConfig конфигурация для WebSocket хаба
type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	WriteWait       time.Duration
	PingInterval    time.Duration
	PongWait        time.Duration
	MaxMessageSize  int64
	SendBuffer      int
	// AggregateQueryParam имя query параметра для фильтрации по агрегату
	AggregateQueryParam string
}

// DefaultWebSocketConfig возвращает конфигурацию WebSocket по умолчанию
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		ReadBufferSize:      1024,
		WriteBufferSize:     1024,
		WriteWait:           10 * time.Second,
		PingInterval:        54 * time.Second,
		PongWait:            60 * time.Second,
		MaxMessageSize:      512,
		SendBuffer:          64,
		AggregateQueryParam: "aggregate",
	}
}

type wsClient struct {
	conn      *websocket.Conn
	send      chan []byte
	aggregate string
}

// WebSocketHub рассылает опубликованные события подключенным клиентам.
// Реализует events.EventHandler и подписывается на публикатор.
// Медленный клиент с переполненным буфером отключается.
type WebSocketHub struct {
	config   WebSocketConfig
	upgrader websocket.Upgrader
	clients  map[*wsClient]struct{}
	closed   bool
	mu       sync.RWMutex
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewWebSocketHub создает новый хаб
func NewWebSocketHub(config WebSocketConfig, m *metrics.Metrics, logger *slog.Logger) *WebSocketHub {
	return &WebSocketHub{
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
		metrics: m,
		logger:  logger,
	}
}

// Name возвращает имя компонента (реализация core.Component)
func (h *WebSocketHub) Name() string {
	return "websocket-hub"
}

// Type возвращает тип компонента (реализация core.Component)
func (h *WebSocketHub) Type() core.ComponentType {
	return core.ComponentTypeTransport
}

// EventType реализует events.EventHandler: хаб получает события любого типа
func (h *WebSocketHub) EventType() string {
	return events.AllEventTypes
}

// Handle реализует events.EventHandler
func (h *WebSocketHub) Handle(ctx context.Context, event events.Event) error {
	env, err := adapterevents.NewEnvelope(event)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		if client.aggregate != "" && client.aggregate != event.AggregateID() {
			continue
		}
		select {
		case client.send <- data:
		default:
			h.removeLocked(client)
		}
	}
	return nil
}

// Clients возвращает количество подключенных клиентов
func (h *WebSocketHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Handler возвращает gin handler, выполняющий upgrade соединения
func (h *WebSocketHub) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.isClosed() {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}

		conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.logger.Warn("websocket upgrade failed", slog.Any("error", err))
			return
		}

		client := &wsClient{
			conn:      conn,
			send:      make(chan []byte, h.config.SendBuffer),
			aggregate: c.Query(h.config.AggregateQueryParam),
		}

		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			// хаб закрылся во время upgrade
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(h.config.WriteWait))
			_ = conn.Close()
			return
		}
		h.clients[client] = struct{}{}
		h.mu.Unlock()
		if h.metrics != nil {
			h.metrics.SessionOpened(context.Background())
		}

		go h.writePump(client)
		h.readPump(client)
	}
}

// Close отключает всех клиентов. После закрытия новые подключения отклоняются.
func (h *WebSocketHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for client := range h.clients {
		h.removeLocked(client)
	}
}

func (h *WebSocketHub) isClosed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

func (h *WebSocketHub) remove(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

func (h *WebSocketHub) removeLocked(client *wsClient) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	if h.metrics != nil {
		h.metrics.SessionClosed(context.Background())
	}
}

// readPump читает управляющие кадры до разрыва соединения
func (h *WebSocketHub) readPump(client *wsClient) {
	defer func() {
		h.remove(client)
		_ = client.conn.Close()
	}()

	client.conn.SetReadLimit(h.config.MaxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(h.config.PongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(h.config.PongWait))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WebSocketHub) writePump(client *wsClient) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()

	for {
		select {
		case data, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(h.config.WriteWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(h.config.WriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
