package watch

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/buildtreego/internal/event"
	"github.com/vk/buildtreego/internal/testutil"
)

func dialHub(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var m message
	require.NoError(t, json.Unmarshal(payload, &m))
	return m
}

func TestSnapshotOnConnect(t *testing.T) {
	h := testutil.NewHarness()
	defer h.Agg.Dispose()
	hub := NewHub(h.Agg)

	h.Agg.OnEvent(h.Ctx, testutil.StartEvent("build-1", "", "my build"))
	h.Agg.OnEvent(h.Ctx, testutil.StartEvent("task-1", "build-1", "compile"))

	conn := dialHub(t, hub)

	m := readMessage(t, conn)
	assert.Equal(t, "snapshot", m.Type)
	require.NotNil(t, m.Snapshot)
	assert.Equal(t, 2, m.Snapshot.NodeCount())
	require.NotNil(t, m.Snapshot.Find("task-1"))
}

func TestBroadcastRefresh(t *testing.T) {
	h := testutil.NewHarness()
	defer h.Agg.Dispose()
	hub := NewHub(h.Agg)

	h.Agg.OnEvent(h.Ctx, testutil.StartEvent("build-1", "", "my build"))

	conn := dialHub(t, hub)
	readMessage(t, conn) // initial snapshot

	// Wait for the subscription to be registered before broadcasting.
	require.Eventually(t, func() bool {
		return hub.SubscriberCount() == 1
	}, time.Second, 5*time.Millisecond)

	h.Agg.OnEvent(h.Ctx, testutil.FinishEvent("build-1", event.StatusSuccess))
	hub.BroadcastRefresh(h.Ctx, "build-1", true)

	m := readMessage(t, conn)
	assert.Equal(t, "refresh", m.Type)
	assert.True(t, m.Terminal)
	require.NotNil(t, m.Node)
	assert.Equal(t, "build-1", m.Node.ID)
	assert.Equal(t, "success", m.Node.State)
}

func TestBroadcastSkipsUnknownNodes(t *testing.T) {
	h := testutil.NewHarness()
	defer h.Agg.Dispose()
	hub := NewHub(h.Agg)

	// Nothing to send, nothing to crash on.
	hub.BroadcastRefresh(h.Ctx, "ghost", false)
	assert.Equal(t, 0, hub.SubscriberCount())
}

func TestDisconnectRemovesSubscriber(t *testing.T) {
	h := testutil.NewHarness()
	defer h.Agg.Dispose()
	hub := NewHub(h.Agg)

	h.Agg.OnEvent(h.Ctx, testutil.StartEvent("build-1", "", "my build"))

	conn := dialHub(t, hub)
	readMessage(t, conn)
	require.Eventually(t, func() bool {
		return hub.SubscriberCount() == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return hub.SubscriberCount() == 0
	}, time.Second, 5*time.Millisecond)
}
