package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	adapterevents "github.com/akriventsev/theater/framework/adapters/events"
	"github.com/akriventsev/theater/framework/events"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, hub *WebSocketHub, query string) *websocket.Conn {
	t.Helper()

	router := gin.New()
	router.GET("/ws", hub.Handler())
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return hub.Clients() > 0 }, time.Second, 10*time.Millisecond)
	return conn
}

func TestWebSocketHub_BroadcastsEnvelope(t *testing.T) {
	hub := NewWebSocketHub(DefaultWebSocketConfig(), nil, discardLogger())
	conn := dialHub(t, hub, "")

	event := events.NewBaseEvent("seat.reserved", "theater-1").WithCorrelationID("corr-9")
	require.NoError(t, hub.Handle(context.Background(), event))

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env adapterevents.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, event.EventID(), env.EventID)
	assert.Equal(t, "seat.reserved", env.EventType)
	assert.Equal(t, "theater-1", env.AggregateID)
	assert.Equal(t, "corr-9", env.Metadata["correlation_id"])
}

func TestWebSocketHub_FiltersByAggregate(t *testing.T) {
	hub := NewWebSocketHub(DefaultWebSocketConfig(), nil, discardLogger())
	conn := dialHub(t, hub, "?aggregate=theater-2")

	require.NoError(t, hub.Handle(context.Background(), events.NewBaseEvent("seat.reserved", "theater-1")))
	wanted := events.NewBaseEvent("seat.reserved", "theater-2")
	require.NoError(t, hub.Handle(context.Background(), wanted))

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env adapterevents.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, wanted.EventID(), env.EventID)
}

func TestWebSocketHub_Close(t *testing.T) {
	hub := NewWebSocketHub(DefaultWebSocketConfig(), nil, discardLogger())
	conn := dialHub(t, hub, "")

	hub.Close()
	assert.Equal(t, 0, hub.Clients())

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestWebSocketHub_RejectsAfterClose(t *testing.T) {
	hub := NewWebSocketHub(DefaultWebSocketConfig(), nil, discardLogger())
	hub.Close()

	router := gin.New()
	router.GET("/ws", hub.Handler())
	server := httptest.NewServer(router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if conn != nil {
		_ = conn.Close()
	}
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, 0, hub.Clients())
}

func TestWebSocketHub_SubscribesToAllTypes(t *testing.T) {
	hub := NewWebSocketHub(DefaultWebSocketConfig(), nil, discardLogger())
	publisher := events.NewInMemoryEventPublisher()
	require.NoError(t, publisher.Subscribe(hub.EventType(), hub))
	require.NoError(t, publisher.Publish(context.Background(), events.NewBaseEvent("seat.reserved", "theater-1")))
}
