package headband

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/auraloop/mindstate/internal/config"
	"github.com/auraloop/mindstate/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

func strPtr(s string) *string { return &s }
func intPtr(v int) *int       { return &v }

func fastLinkConfig(maxAttempts int) *config.TuningConfig {
	return &config.TuningConfig{
		StallWindow:          strPtr("200ms"),
		ReconnectWait:        strPtr("1ms"),
		ConnectTimeout:       strPtr("500ms"),
		MaxReconnectAttempts: intPtr(maxAttempts),
		MaxConsecutiveErrors: intPtr(3),
	}
}

var infoFrame = []byte(`{"type":"info","name":"bridge","streams":{"eeg":true,"ppg":true,"acc":true,"gyro":true}}`)
var eegFrame = []byte(`{"type":"eeg","t":1,"data":[[1,2,3,4]]}`)

func TestConnectRejectsMissingBiosignalStream(t *testing.T) {
	dial := func(ctx context.Context, addr string) (Transport, error) {
		return NewMockTransport([][]byte{
			[]byte(`{"type":"info","name":"bridge","streams":{"eeg":false}}`),
		}), nil
	}
	l := NewLink("mock://", dial, fastLinkConfig(1))
	if _, err := l.Connect(context.Background()); err == nil {
		t.Fatal("Connect succeeded without the mandatory stream")
	}
}

func TestConnectDialFailureIsHardError(t *testing.T) {
	dial := func(ctx context.Context, addr string) (Transport, error) {
		return nil, fmt.Errorf("no route to bridge")
	}
	l := NewLink("mock://", dial, fastLinkConfig(1))
	if _, err := l.Connect(context.Background()); err == nil {
		t.Fatal("Connect succeeded with a failing dialer")
	}
}

func TestRunStopsAfterReconnectExhaustion(t *testing.T) {
	var dials int
	var mu sync.Mutex
	dial := func(ctx context.Context, addr string) (Transport, error) {
		mu.Lock()
		defer mu.Unlock()
		dials++
		if dials == 1 {
			return NewMockTransport([][]byte{infoFrame, eegFrame}), nil
		}
		return nil, fmt.Errorf("bridge gone")
	}

	l := NewLink("mock://", dial, fastLinkConfig(2))
	if _, err := l.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	var samples int
	err := l.Run(context.Background(), func(Sample) { samples++ }, nil)
	if !errors.Is(err, ErrStreamStopped) {
		t.Fatalf("Run returned %v, want ErrStreamStopped", err)
	}
	if samples == 0 {
		t.Error("no samples emitted before the link died")
	}
	mu.Lock()
	defer mu.Unlock()
	if dials != 3 { // initial connect plus two failed reconnects
		t.Errorf("dial count = %d, want 3", dials)
	}
}

func TestRunReconnectResetsSessionState(t *testing.T) {
	var dials int
	var mu sync.Mutex
	dial := func(ctx context.Context, addr string) (Transport, error) {
		mu.Lock()
		defer mu.Unlock()
		dials++
		switch dials {
		case 1, 2:
			return NewMockTransport([][]byte{infoFrame, eegFrame}), nil
		default:
			return nil, fmt.Errorf("bridge gone")
		}
	}

	l := NewLink("mock://", dial, fastLinkConfig(1))
	if _, err := l.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	var resets, samples int
	err := l.Run(context.Background(),
		func(Sample) { samples++ },
		func() { resets++ })
	if !errors.Is(err, ErrStreamStopped) {
		t.Fatalf("Run returned %v, want ErrStreamStopped", err)
	}
	if resets != 1 {
		t.Errorf("onReconnect called %d times, want 1", resets)
	}
	if samples < 2 {
		t.Errorf("samples = %d, want at least one per connection", samples)
	}
}

func TestRunIsolatesPerChunkErrors(t *testing.T) {
	frames := [][]byte{
		infoFrame,
		eegFrame,
		[]byte(`{"type":"eeg","t":2,"data":[[1,2]]}`), // malformed: skipped
		[]byte(`{"type":"eeg","t":3,"data":[[9,9,9,9]]}`),
	}
	tr := NewMockTransport(frames)
	tr.Hold = make(chan struct{})
	dial := func(ctx context.Context, addr string) (Transport, error) { return tr, nil }

	l := NewLink("mock://", dial, fastLinkConfig(0))
	if _, err := l.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	var got []float64
	go func() {
		// Cancel once both good frames are through.
		for {
			mu.Lock()
			n := len(got)
			mu.Unlock()
			if n >= 2 {
				cancel()
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	err := l.Run(ctx, func(s Sample) {
		if s.Kind == KindEEG {
			mu.Lock()
			got = append(got, s.Timestamp)
			mu.Unlock()
		}
	}, nil)
	close(tr.Hold)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("emitted timestamps = %v, want [1 3]", got)
	}
}

func TestRunRequiresConnect(t *testing.T) {
	l := NewLink("mock://", Dial, fastLinkConfig(1))
	if err := l.Run(context.Background(), func(Sample) {}, nil); err == nil {
		t.Fatal("Run succeeded without Connect")
	}
}
