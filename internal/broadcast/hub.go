// Package broadcast fans session records out to websocket subscribers. One
// hub serves every connected dashboard; a slow or dead subscriber is dropped
// rather than allowed to stall the tick loop.
package broadcast

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/auraloop/mindstate/internal/monitoring"
)

const (
	// writeWait bounds a single frame write; a subscriber that cannot
	// drain a frame in this window is pruned.
	writeWait = 5 * time.Second

	// sendBuffer is the per-subscriber frame queue. Records arrive at
	// roughly 1 Hz, so a full queue means the peer stopped reading
	// seconds ago.
	sendBuffer = 16
)

type subscriber struct {
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

// shutdown closes the frame queue and the connection. Safe under concurrent
// calls from the publisher, the read loop, and hub close.
func (s *subscriber) shutdown() {
	s.closeOnce.Do(func() { close(s.send) })
	s.conn.Close()
}

// Hub tracks websocket subscribers and broadcasts marshalled records to all
// of them. The zero value is not usable; construct with NewHub.
type Hub struct {
	mu       sync.Mutex
	subs     map[*subscriber]struct{}
	closed   bool
	upgrader websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The control surface is bound to localhost or a trusted
			// LAN; dashboards connect cross-origin from dev servers.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// SubscriberCount reports the number of live websocket connections.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish marshals v once and queues it on every subscriber. Subscribers
// whose queue is full are disconnected so one stalled peer cannot block the
// producer.
func (h *Hub) Publish(v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}

	h.mu.Lock()
	var stalled []*subscriber
	for sub := range h.subs {
		select {
		case sub.send <- payload:
		default:
			stalled = append(stalled, sub)
		}
	}
	for _, sub := range stalled {
		delete(h.subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range stalled {
		monitoring.Logf("dropping stalled websocket subscriber %s", sub.conn.RemoteAddr())
		sub.shutdown()
	}
	return nil
}

// ServeWS upgrades the request and streams published records until the peer
// disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		monitoring.Logf("websocket upgrade failed: %v", err)
		return
	}

	sub := &subscriber{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.subs[sub] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()

	monitoring.Logf("websocket subscriber connected from %s (%d total)", conn.RemoteAddr(), n)

	go h.readLoop(sub)
	h.writeLoop(sub)
}

// readLoop drains inbound frames so close and ping control messages are
// processed. Subscribers never send data frames; anything received is
// ignored.
func (h *Hub) readLoop(sub *subscriber) {
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			h.drop(sub)
			return
		}
	}
}

func (h *Hub) writeLoop(sub *subscriber) {
	for payload := range sub.send {
		sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := sub.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.drop(sub)
			return
		}
	}
	// The queue only closes through shutdown, so the connection is
	// already torn down when the range ends.
}

// drop removes a subscriber and closes its connection. Safe to call more
// than once for the same subscriber.
func (h *Hub) drop(sub *subscriber) {
	h.mu.Lock()
	_, live := h.subs[sub]
	delete(h.subs, sub)
	h.mu.Unlock()

	if live {
		monitoring.Logf("websocket subscriber %s disconnected", sub.conn.RemoteAddr())
	}
	sub.shutdown()
}

// Close disconnects every subscriber. The hub accepts no new connections
// afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	h.subs = make(map[*subscriber]struct{})
	h.closed = true
	h.mu.Unlock()

	for _, sub := range subs {
		sub.shutdown()
	}
}
