package headband

import (
	"fmt"
	"sync"
)

// MockTransport replays a fixed sequence of frames and then reports the
// stream as closed. Tests drive the Link's decode, stall, and reconnect
// paths with it without a live bridge.
type MockTransport struct {
	mu     sync.Mutex
	frames [][]byte
	next   int
	closed bool

	// Hold, when non-nil, is closed to release ReadMessage calls that have
	// exhausted the frame list; until then they block like a live link.
	Hold chan struct{}
}

// NewMockTransport returns a transport that yields the given frames in order.
func NewMockTransport(frames [][]byte) *MockTransport {
	return &MockTransport{frames: frames}
}

func (m *MockTransport) ReadMessage() ([]byte, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("mock transport closed")
	}
	if m.next < len(m.frames) {
		f := m.frames[m.next]
		m.next++
		m.mu.Unlock()
		return f, nil
	}
	hold := m.Hold
	m.mu.Unlock()

	if hold != nil {
		<-hold
	}
	return nil, fmt.Errorf("mock stream ended")
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
