package broadcast

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/auraloop/mindstate/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

func dialHub(t *testing.T, h *Hub) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func waitForSubscribers(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.SubscriberCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber count = %d, want %d", h.SubscriberCount(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPublishReachesSubscriber(t *testing.T) {
	h := NewHub()
	defer h.Close()
	conn, cleanup := dialHub(t, h)
	defer cleanup()
	waitForSubscribers(t, h, 1)

	if err := h.Publish(map[string]string{"type": "tick", "brain_state": "relaxed"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("unmarshal %q: %v", payload, err)
	}
	if got["brain_state"] != "relaxed" {
		t.Fatalf("payload = %v", got)
	}
}

func TestPublishRejectsUnmarshalable(t *testing.T) {
	h := NewHub()
	defer h.Close()
	if err := h.Publish(make(chan int)); err == nil {
		t.Fatal("expected a marshal error for a channel value")
	}
}

func TestStalledSubscriberIsPruned(t *testing.T) {
	h := NewHub()
	defer h.Close()
	conn, cleanup := dialHub(t, h)
	defer cleanup()
	waitForSubscribers(t, h, 1)

	// Register a second subscriber by hand with no write loop and no
	// queue capacity, so the first publish finds it stalled.
	stalledConn, stalledCleanup := dialHub(t, h)
	defer stalledCleanup()
	waitForSubscribers(t, h, 2)
	h.mu.Lock()
	for sub := range h.subs {
		delete(h.subs, sub)
	}
	live := &subscriber{conn: conn, send: make(chan []byte, sendBuffer)}
	stalled := &subscriber{conn: stalledConn, send: make(chan []byte)}
	h.subs[live] = struct{}{}
	h.subs[stalled] = struct{}{}
	h.mu.Unlock()

	if err := h.Publish(map[string]int{"seq": 1}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := h.SubscriberCount(); got != 1 {
		t.Fatalf("subscriber count after publish = %d, want 1", got)
	}
	if _, open := <-stalled.send; open {
		t.Fatal("stalled subscriber queue left open")
	}
	select {
	case payload := <-live.send:
		if !strings.Contains(string(payload), `"seq":1`) {
			t.Fatalf("live subscriber payload = %s", payload)
		}
	default:
		t.Fatal("live subscriber did not receive the record")
	}
}

func TestSubscriberDisconnectIsObserved(t *testing.T) {
	h := NewHub()
	defer h.Close()
	conn, cleanup := dialHub(t, h)
	defer cleanup()
	waitForSubscribers(t, h, 1)

	conn.Close()
	waitForSubscribers(t, h, 0)
}

func TestCloseDisconnectsSubscribers(t *testing.T) {
	h := NewHub()
	conn, cleanup := dialHub(t, h)
	defer cleanup()
	waitForSubscribers(t, h, 1)

	h.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("read succeeded after the hub closed")
	}
	if got := h.SubscriberCount(); got != 0 {
		t.Fatalf("subscriber count after close = %d", got)
	}
}
