package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferrymail/ferry/internal/events"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newHubServer starts an HTTP server whose /ws endpoint registers
// connections with the hub under the account given by ?account_id.
func newHubServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = hub.Register(r.URL.Query().Get("account_id"), conn)
	}))
	t.Cleanup(server.Close)
	return server
}

func dialHub(t *testing.T, server *httptest.Server, accountID string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?account_id=" + accountID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHubSendReachesAllAccountConnections(t *testing.T) {
	hub := NewHub(10)
	server := newHubServer(t, hub)

	conn1 := dialHub(t, server, "acct-1")
	conn2 := dialHub(t, server, "acct-1")
	other := dialHub(t, server, "acct-2")

	require.Eventually(t, func() bool {
		return hub.ActiveConnections("acct-1") == 2
	}, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(Frame{Type: "sync_status", AccountID: "acct-1"})

	for _, conn := range []*websocket.Conn{conn1, conn2} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)

		var frame Frame
		require.NoError(t, json.Unmarshal(raw, &frame))
		assert.Equal(t, "sync_status", frame.Type)
		assert.Equal(t, "acct-1", frame.AccountID)
	}

	// The other account must not receive the frame.
	require.NoError(t, other.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := other.ReadMessage()
	assert.Error(t, err)
}

func TestHubEnforcesPerAccountLimit(t *testing.T) {
	hub := NewHub(1)
	server := newHubServer(t, hub)

	dialHub(t, server, "acct-1")
	require.Eventually(t, func() bool {
		return hub.ActiveConnections("acct-1") == 1
	}, 2*time.Second, 10*time.Millisecond)

	over := dialHub(t, server, "acct-1")
	require.NoError(t, over.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := over.ReadMessage()
	require.Error(t, err)
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)

	assert.Equal(t, 1, hub.ActiveConnections("acct-1"))
}

func TestHubUnregister(t *testing.T) {
	hub := NewHub(10)
	server := newHubServer(t, hub)

	dialHub(t, server, "acct-1")

	require.Eventually(t, func() bool {
		return hub.ActiveConnections("acct-1") == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.mu.RLock()
	var conn *websocket.Conn
	for c := range hub.conns["acct-1"] {
		conn = c
	}
	hub.mu.RUnlock()

	hub.Unregister("acct-1", conn)
	assert.Equal(t, 0, hub.ActiveConnections("acct-1"))

	// Unregistering twice is harmless.
	hub.Unregister("acct-1", conn)
}

func TestBridgeForwardsUIEvents(t *testing.T) {
	hub := NewHub(10)
	server := newHubServer(t, hub)
	conn := dialHub(t, server, "acct-1")

	require.Eventually(t, func() bool {
		return hub.ActiveConnections("acct-1") == 1
	}, 2*time.Second, 10*time.Millisecond)

	bus := events.NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Bridge(ctx, bus, hub)

	// Internal events stay internal; UI events arrive as frames.
	bus.Publish(events.Event{Type: events.TypeActionLogged, AccountID: "acct-1", Payload: "ignored"})
	bus.Publish(events.Event{Type: events.TypePendingCount, AccountID: "acct-1", Payload: float64(3)})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame Frame
	require.NoError(t, json.Unmarshal(raw, &frame))
	assert.Equal(t, string(events.TypePendingCount), frame.Type)
	assert.Equal(t, "acct-1", frame.AccountID)
	assert.Equal(t, float64(3), frame.Payload)
	assert.False(t, frame.Timestamp.IsZero())
}
