package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, hub *Hub, streams ...string) *websocket.Conn {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(streams, w, r)
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHubPublishReachesSubscribers(t *testing.T) {
	hub := NewHub(StreamConnections)
	conn := dialHub(t, hub, StreamConnections)

	require.Eventually(t, func() bool { return hub.SubscriberCount(StreamConnections) == 1 }, time.Second, 10*time.Millisecond)

	hub.Publish(StreamConnections, EventConnectionsChanged, map[string]any{"action": "add", "total": 1})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, StreamConnections, msg.Stream)
	require.Equal(t, EventConnectionsChanged, msg.Event)
	data, ok := msg.Data.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "add", data["action"])
}

func TestHubIgnoresUnknownStreams(t *testing.T) {
	hub := NewHub(StreamConnections)
	dialHub(t, hub, "secrets", StreamConnections)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return hub.SubscriberCount(StreamConnections) == 1 }, time.Second, 10*time.Millisecond)
	require.Zero(t, hub.SubscriberCount("secrets"))
	require.False(t, hub.Allowed("secrets"))
	require.True(t, hub.Allowed(" Connections "))
}

func TestHubControlMessages(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub)

	require.NoError(t, conn.WriteJSON(controlMessage{Action: "subscribe", Streams: []string{"connections"}}))
	require.Eventually(t, func() bool { return hub.SubscriberCount(StreamConnections) == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(controlMessage{Action: "ping"}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "pong", msg.Event)

	require.NoError(t, conn.WriteJSON(controlMessage{Action: "unsubscribe", Streams: []string{"connections"}}))
	require.Eventually(t, func() bool { return hub.SubscriberCount(StreamConnections) == 0 }, time.Second, 10*time.Millisecond)
}

func TestHubUnregistersOnDisconnect(t *testing.T) {
	hub := NewHub(StreamConnections)
	conn := dialHub(t, hub, StreamConnections)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	require.Zero(t, hub.SubscriberCount(StreamConnections))
}

func TestHostHelpers(t *testing.T) {
	require.Equal(t, "example.com", hostWithoutPort("https://example.com:8443"))
	require.Equal(t, "127.0.0.1", hostWithoutPort("127.0.0.1:8000"))
	require.True(t, isLoopback("localhost"))
	require.True(t, isLoopback("::1"))
	require.False(t, isLoopback("10.0.0.1"))
	require.Equal(t, []string{"a", "b"}, uniqueStreams([]string{" A ", "b", "a", ""}))
}
