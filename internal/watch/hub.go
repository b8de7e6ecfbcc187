// Package watch serves the consumer surface: a WebSocket endpoint that
// delivers one full tree snapshot on connect, then per-node refresh notices
// as the scheduler emits them.
//
// The hub never blocks the broadcast path: a subscriber whose outbound
// buffer fills up is disconnected and can reconnect for a fresh snapshot.
package watch

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/vk/buildtreego/internal/aggregator"
	"github.com/vk/buildtreego/internal/ctxlog"
)

// message is the wire envelope sent to watch subscribers.
type message struct {
	Type string `json:"type"` // "snapshot" or "refresh"

	Snapshot *aggregator.TreeSnapshot `json:"snapshot,omitempty"`
	Node     *aggregator.NodeSnapshot `json:"node,omitempty"`
	Terminal bool                     `json:"terminal,omitempty"`
}

// Hub fans refresh notices out to connected watch clients.
type Hub struct {
	agg      *aggregator.Aggregator
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

// NewHub creates a hub over the aggregator.
func NewHub(agg *aggregator.Aggregator) *Hub {
	return &Hub{
		agg:  agg,
		subs: make(map[chan []byte]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// BroadcastRefresh pushes a refresh notice for the node to every subscriber.
// Nodes that no longer resolve (cleared tree) are skipped.
func (h *Hub) BroadcastRefresh(ctx context.Context, nodeID string, terminal bool) {
	snap := h.agg.SnapshotNode(ctx, nodeID)
	if snap == nil {
		return
	}
	payload, err := json.Marshal(message{Type: "refresh", Node: snap, Terminal: terminal})
	if err != nil {
		ctxlog.FromContext(ctx).Warn("encode refresh notice failed", "node", nodeID, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub <- payload:
		default:
			// Slow consumer; closing the channel makes its writer loop
			// drop the connection.
			close(sub)
			delete(h.subs, sub)
		}
	}
}

// ServeHTTP upgrades the request and streams the snapshot plus subsequent
// refresh notices until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := ctxlog.FromContext(ctx)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("watch upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	initial, err := json.Marshal(message{Type: "snapshot", Snapshot: h.agg.Snapshot(ctx)})
	if err != nil {
		logger.Warn("encode snapshot failed", "error", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, initial); err != nil {
		return
	}

	sub := make(chan []byte, 32)
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	defer h.unsubscribe(sub)

	// Reader goroutine only notices the peer closing.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	logger.Debug("watch client connected", "remote_addr", r.RemoteAddr)
	for {
		select {
		case payload, ok := <-sub:
			if !ok {
				logger.Debug("watch client dropped, consumer behind", "remote_addr", r.RemoteAddr)
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// SubscriberCount returns the number of connected watch clients.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) unsubscribe(sub chan []byte) {
	h.mu.Lock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
	}
	h.mu.Unlock()
}
