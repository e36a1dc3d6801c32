// Package hub pushes store snapshots to dashboard clients over websockets.
package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"dispatch-dashboard/internal/logging"
	"dispatch-dashboard/internal/store"
)

const (
	defaultWriteWait  = 10 * time.Second
	defaultSendBuffer = 16
)

// Message is the frame written to clients.
type Message struct {
	Type     string         `json:"type"`
	Snapshot store.Snapshot `json:"snapshot"`
}

// client owns one connection. Frames are queued on send and written by the
// client's own writePump, so a slow reader never blocks Publish.
type client struct {
	conn *websocket.Conn
	send chan []byte

	// version of the newest frame queued; guarded by Hub.mu.
	version uint64
}

// Hub tracks connected clients and broadcasts a snapshot whenever the store
// version moves forward.
type Hub struct {
	upgrader   websocket.Upgrader
	snapshot   func() store.Snapshot
	log        logging.Logger
	writeWait  time.Duration
	sendBuffer int

	mu          sync.Mutex
	clients     map[*client]struct{}
	lastVersion uint64
	last        []byte
}

func New(snapshot func() store.Snapshot, log logging.Logger) *Hub {
	if log == nil {
		log = logging.Noop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		snapshot:   snapshot,
		log:        log,
		writeWait:  defaultWriteWait,
		sendBuffer: defaultSendBuffer,
		clients:    make(map[*client]struct{}),
	}
}

// Listener adapts the hub to store change notifications.
func (h *Hub) Listener() store.Listener {
	return func(store.Change) { h.Publish() }
}

// Publish queues the current snapshot for every client unless a snapshot at
// this version or a newer one already went out. It never waits on a client:
// one whose queue is full is dropped.
func (h *Hub) Publish() {
	snap := h.snapshot()
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.detectChange(snap.Version) {
		return
	}
	data, err := json.Marshal(Message{Type: "snapshot", Snapshot: snap})
	if err != nil {
		h.log.Error(context.Background(), "marshal snapshot", logging.Err(err))
		return
	}
	h.last = data
	for c := range h.clients {
		h.enqueue(c, snap.Version, data)
	}
	h.log.Debug(context.Background(), "snapshot broadcast",
		logging.Any("version", snap.Version),
		logging.Int("clients", len(h.clients)))
}

// detectChange records version and reports whether it is newer than the last
// broadcast. Snapshots read before a concurrent newer one are stale and
// skipped. Callers hold h.mu.
func (h *Hub) detectChange(version uint64) bool {
	if h.last != nil && version <= h.lastVersion {
		return false
	}
	h.lastVersion = version
	return true
}

// enqueue hands data to c without blocking. Callers hold h.mu.
func (h *Hub) enqueue(c *client, version uint64, data []byte) {
	if version <= c.version {
		return
	}
	select {
	case c.send <- data:
		c.version = version
	default:
		h.log.Warn(context.Background(), "ws client too slow, dropping")
		h.drop(c)
	}
}

// drop unregisters c and closes its queue, which stops its writePump.
// Callers hold h.mu.
func (h *Hub) drop(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// HandleWebSocket upgrades the request and sends the latest snapshot so a new
// client renders immediately.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "ws upgrade error", logging.Err(err))
		return
	}
	snap := h.snapshot()
	data, err := json.Marshal(Message{Type: "snapshot", Snapshot: snap})
	if err != nil {
		h.log.Error(r.Context(), "marshal snapshot", logging.Err(err))
		_ = conn.Close()
		return
	}

	c := &client{conn: conn, send: make(chan []byte, h.sendBuffer)}
	h.mu.Lock()
	version := snap.Version
	// A broadcast may have gone out between reading snap and taking the lock.
	if h.last != nil && h.lastVersion > version {
		data, version = h.last, h.lastVersion
	}
	h.clients[c] = struct{}{}
	c.send <- data
	c.version = version
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.drop(c)
		_ = c.conn.Close()
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	h.drop(c)
	h.mu.Unlock()
}

// writePump writes queued frames, each under a deadline, until the queue is
// closed or a write fails.
func (h *Hub) writePump(c *client) {
	defer func() { _ = c.conn.Close() }()
	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.log.Debug(context.Background(), "ws write failed", logging.Err(err))
			h.remove(c)
			return
		}
	}
}

// readPump drains client frames until the connection drops.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
