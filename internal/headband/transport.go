package headband

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
)

// Transport is one dialed connection to the bridge. ReadMessage blocks until
// the next complete frame arrives or the connection fails.
type Transport interface {
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer opens a Transport to the given address. Dial selects an
// implementation from the address scheme.
type Dialer func(ctx context.Context, addr string) (Transport, error)

// Dial connects to a bridge address: ws:// and wss:// use a websocket client,
// serial: uses a local serial port (BLE dongle bridge).
func Dial(ctx context.Context, addr string) (Transport, error) {
	switch {
	case strings.HasPrefix(addr, "ws://"), strings.HasPrefix(addr, "wss://"):
		return dialWebsocket(ctx, addr)
	case strings.HasPrefix(addr, "serial:"):
		return dialSerial(strings.TrimPrefix(addr, "serial:"))
	}
	return nil, fmt.Errorf("unsupported bridge address %q", addr)
}

type wsTransport struct {
	conn *websocket.Conn
}

func dialWebsocket(ctx context.Context, addr string) (Transport, error) {
	if _, err := url.Parse(addr); err != nil {
		return nil, fmt.Errorf("bad bridge URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", addr, err)
	}
	return &wsTransport{conn: conn}, nil
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

type serialTransport struct {
	port serial.Port
	scan *bufio.Scanner
}

func dialSerial(portName string) (Transport, error) {
	mode := &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: 1,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("serial open %s: %w", portName, err)
	}
	scan := bufio.NewScanner(port)
	// EEG chunks are the largest frames; 64 KiB leaves generous headroom.
	scan.Buffer(make([]byte, 0, 4096), 64*1024)
	return &serialTransport{port: port, scan: scan}, nil
}

func (t *serialTransport) ReadMessage() ([]byte, error) {
	if !t.scan.Scan() {
		if err := t.scan.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("serial stream closed")
	}
	// Scanner reuses its buffer; the caller keeps frames across reads.
	line := make([]byte, len(t.scan.Bytes()))
	copy(line, t.scan.Bytes())
	return line, nil
}

func (t *serialTransport) Close() error {
	return t.port.Close()
}
