package headband

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/auraloop/mindstate/internal/config"
	"github.com/auraloop/mindstate/internal/monitoring"
)

// ErrStreamStopped is the terminal condition surfaced after the reconnect
// budget is exhausted. The acquisition loop never returns it while any retry
// remains.
var ErrStreamStopped = errors.New("sensor stream stopped after reconnect exhaustion")

// Link maintains the connection to the headband bridge and pumps decoded
// samples to a sink. One Link serves one session; the tick side never touches
// it directly.
type Link struct {
	addr string
	dial Dialer
	cfg  *config.TuningConfig

	mu   sync.Mutex
	tr   Transport
	info DeviceInfo

	frames  chan []byte
	readErr chan error
}

// NewLink creates a Link for the given bridge address. The dialer is
// injectable so tests can substitute a mock transport.
func NewLink(addr string, dial Dialer, cfg *config.TuningConfig) *Link {
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	return &Link{addr: addr, dial: dial, cfg: cfg}
}

// Connect dials the bridge and performs the handshake. Failure to resolve the
// mandatory biosignal stream is a hard error; missing optional streams are
// only reflected in the returned DeviceInfo.
func (l *Link) Connect(ctx context.Context) (DeviceInfo, error) {
	dctx, cancel := context.WithTimeout(ctx, l.cfg.GetConnectTimeout())
	defer cancel()

	tr, err := l.dial(dctx, l.addr)
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("connect %s: %w", l.addr, err)
	}

	type handshake struct {
		info DeviceInfo
		err  error
	}
	ch := make(chan handshake, 1)
	go func() {
		raw, err := tr.ReadMessage()
		if err != nil {
			ch <- handshake{err: err}
			return
		}
		info, err := decodeInfo(raw)
		ch <- handshake{info: info, err: err}
	}()

	select {
	case <-dctx.Done():
		tr.Close()
		return DeviceInfo{}, fmt.Errorf("handshake timeout: %w", dctx.Err())
	case h := <-ch:
		if h.err != nil {
			tr.Close()
			return DeviceInfo{}, fmt.Errorf("handshake: %w", h.err)
		}
		l.mu.Lock()
		l.tr = tr
		l.info = h.info
		l.mu.Unlock()
		l.startReader(tr)
		monitoring.Logf("connected to bridge %q (ppg=%v acc=%v gyro=%v)",
			h.info.Name, h.info.PPG, h.info.Accel, h.info.Gyro)
		return h.info, nil
	}
}

// Info returns the DeviceInfo from the most recent successful Connect.
func (l *Link) Info() DeviceInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.info
}

// startReader pumps raw frames from the transport into a buffered channel so
// the acquisition loop can poll without blocking. When the channel is full
// the oldest frame is dropped; stale sensor data has no value.
func (l *Link) startReader(tr Transport) {
	frames := make(chan []byte, 256)
	readErr := make(chan error, 1)
	l.mu.Lock()
	l.frames = frames
	l.readErr = readErr
	l.mu.Unlock()

	go func() {
		for {
			data, err := tr.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- data:
			default:
				select {
				case <-frames:
				default:
				}
				select {
				case frames <- data:
				default:
				}
			}
		}
	}()
}

// Run pumps samples to the sink until the context is cancelled or the
// reconnect budget is spent. Each successful reconnect calls onReconnect so
// the owner can reset the shared per-session state before new data flows.
func (l *Link) Run(ctx context.Context, emit SampleSink, onReconnect func()) error {
	l.mu.Lock()
	connected := l.tr != nil
	l.mu.Unlock()
	if !connected {
		return fmt.Errorf("not connected: call Connect first")
	}

	maxAttempts := l.cfg.GetMaxReconnectAttempts()
	attempts := 0

	for {
		err := l.pump(ctx, emit)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			l.Close()
			return err
		}
		monitoring.Logf("sensor link lost: %v", err)
		l.Close()

		reconnected := false
		for attempts < maxAttempts {
			attempts++
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(l.cfg.GetReconnectWait()):
			}
			monitoring.Logf("reconnect attempt %d/%d", attempts, maxAttempts)
			if _, err := l.Connect(ctx); err != nil {
				monitoring.Logf("reconnect attempt %d failed: %v", attempts, err)
				continue
			}
			attempts = 0
			reconnected = true
			if onReconnect != nil {
				onReconnect()
			}
			break
		}
		if !reconnected {
			monitoring.Logf("reconnect budget exhausted, stopping stream")
			return ErrStreamStopped
		}
	}
}

// pump drains frames until the link fails, the mandatory stream stalls, or
// the context ends. Per-chunk decode errors are isolated: logged, skipped,
// and only a long consecutive run escalates to a link-level failure.
func (l *Link) pump(ctx context.Context, emit SampleSink) error {
	l.mu.Lock()
	frames, readErr := l.frames, l.readErr
	l.mu.Unlock()

	stall := l.cfg.GetStallWindow()
	maxErrs := l.cfg.GetMaxConsecutiveErrors()
	lastData := time.Now()
	consecutive := 0

	idle := time.NewTicker(100 * time.Millisecond)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw := <-frames:
			samples, err := decodeSamples(raw)
			if err != nil {
				consecutive++
				if consecutive <= 5 {
					monitoring.Logf("skipping bad chunk: %v", err)
				} else if consecutive == 6 {
					monitoring.Logf("repeated chunk errors, suppressing logs")
				}
				if consecutive >= maxErrs {
					return fmt.Errorf("%d consecutive chunk errors", consecutive)
				}
				continue
			}
			consecutive = 0
			for _, s := range samples {
				if s.Kind == KindEEG {
					lastData = time.Now()
				}
				emit(s)
			}

		case err := <-readErr:
			return fmt.Errorf("link read: %w", err)

		case <-idle.C:
			if since := time.Since(lastData); since > stall {
				return fmt.Errorf("no biosignal data for %v", since.Round(time.Second))
			}
		}
	}
}

// Close releases the transport. Safe to call repeatedly and while Run is
// draining; the reader goroutine exits on the resulting read error.
func (l *Link) Close() error {
	l.mu.Lock()
	tr := l.tr
	l.tr = nil
	l.mu.Unlock()
	if tr == nil {
		return nil
	}
	return tr.Close()
}
