// Package hrv derives heart rate and heart rate variability from the
// optical pulse stream. The effective sample rate of that stream varies with
// the transport, so the engine measures the real rate from timestamps and
// adapts, degrading to cached or partial estimates rather than dropping to
// zero when the window is too thin for a full computation.
package hrv

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/auraloop/mindstate/internal/dsp"
	"github.com/auraloop/mindstate/internal/headband"
	"github.com/auraloop/mindstate/internal/monitoring"
)

// Metrics is one HRV readout. RMSSD and SDNN are in milliseconds; RR holds
// the most recent accepted intervals. Cached marks a heart rate carried over
// from the last full computation, Partial one estimated from just two peaks.
type Metrics struct {
	HeartRate float64   `json:"heart_rate"`
	RMSSD     float64   `json:"hrv_rmssd"`
	SDNN      float64   `json:"hrv_sdnn"`
	RR        []float64 `json:"rr_intervals"`
	Valid     bool      `json:"valid"`
	Cached    bool      `json:"cached,omitempty"`
	Partial   bool      `json:"partial,omitempty"`
}

const (
	bufferCap    = 2000 // samples, 30+ seconds at any plausible rate
	minRRMillis  = 400  // 150 bpm
	maxRRMillis  = 2000 // 30 bpm
	minSpanSecs  = 3.0
	minPeakCount = 3 // two RR intervals
)

type reading struct {
	value float64
	time  float64 // unix seconds
}

// Engine accumulates pulse readings and computes metrics on demand.
type Engine struct {
	mu        sync.Mutex
	buf       []reading
	rate      float64
	peakTimes []float64
	lastValid float64 // cached heart rate, bpm
}

// NewEngine builds an engine assuming the nominal rate until measured
// timestamps say otherwise.
func NewEngine() *Engine {
	return &Engine{rate: headband.PPGRate}
}

// Push adds one pulse sample. The infrared channel carries the cardiac
// signal.
func (e *Engine) Push(s headband.Sample) {
	if s.Kind != headband.KindPPG {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buf = append(e.buf, reading{value: s.PPG[1], time: s.Timestamp})
	if len(e.buf) > bufferCap {
		e.buf = e.buf[len(e.buf)-bufferCap:]
	}
}

// Reset drops all buffered data and the cached estimates.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buf = nil
	e.peakTimes = nil
	e.lastValid = 0
	e.rate = headband.PPGRate
}

// Metrics computes the current readout. When the full computation cannot be
// completed the heart rate degrades first to the cached value, then to a
// two-peak estimate; RMSSD and SDNN are only reported from a full window.
func (e *Engine) Metrics() Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()

	m := e.compute()
	if m.Valid {
		return m
	}
	if e.lastValid > 0 {
		m.HeartRate = e.lastValid
		m.Valid = true
		m.Cached = true
		return m
	}
	if len(e.peakTimes) >= 2 {
		rr := e.peakTimes[len(e.peakTimes)-1] - e.peakTimes[len(e.peakTimes)-2]
		if rr >= 0.4 && rr <= 2.0 {
			hr := 60 / rr
			if hr >= 30 && hr <= 150 {
				m.HeartRate = hr
				m.Valid = true
				m.Partial = true
				e.lastValid = hr
			}
		}
	}
	return m
}

// compute runs the full pipeline: peak detection, RR filtering, and the
// RMSSD/SDNN statistics. Caller holds the lock.
func (e *Engine) compute() Metrics {
	peaks := e.detectPeaks()
	if len(peaks) < minPeakCount {
		return Metrics{}
	}

	var rr []float64
	for i := 1; i < len(peaks); i++ {
		ms := (peaks[i] - peaks[i-1]) * 1000
		if ms >= minRRMillis && ms <= maxRRMillis {
			rr = append(rr, ms)
		}
	}
	if len(rr) < 2 {
		return Metrics{}
	}

	mean := stat.Mean(rr, nil)

	var sumSqDiff float64
	for i := 1; i < len(rr); i++ {
		d := rr[i] - rr[i-1]
		sumSqDiff += d * d
	}
	rmssd := math.Sqrt(sumSqDiff / float64(len(rr)-1))

	sdnn := stat.PopStdDev(rr, nil)

	hr := 60000 / mean
	e.lastValid = hr

	tail := rr
	if len(tail) > 10 {
		tail = tail[len(tail)-10:]
	}
	return Metrics{
		HeartRate: hr,
		RMSSD:     rmssd,
		SDNN:      sdnn,
		RR:        append([]float64(nil), tail...),
		Valid:     true,
	}
}

// detectPeaks finds heartbeat peaks in the buffered window and records their
// timestamps. Caller holds the lock.
func (e *Engine) detectPeaks() []float64 {
	if len(e.buf) < 10 {
		return nil
	}
	span := e.buf[len(e.buf)-1].time - e.buf[0].time
	if span < minSpanSecs {
		return nil
	}

	// Track the rate the transport actually delivers.
	if actual := float64(len(e.buf)) / span; math.Abs(actual-e.rate) > 10 {
		monitoring.Logf("hrv: pulse stream running at %.1f Hz, adjusting from %.1f", actual, e.rate)
		e.rate = actual
	}

	values := make([]float64, len(e.buf))
	for i, r := range e.buf {
		values[i] = r.value
	}
	mean := stat.Mean(values, nil)
	for i := range values {
		values[i] -= mean
	}
	if std := stat.PopStdDev(values, nil); std > 0 {
		for i := range values {
			values[i] /= std
		}
	}

	// Isolate the cardiac band when the rate leaves room for it. The
	// forward-backward pass keeps peaks where the heartbeats actually are;
	// a single pass shifts them enough to skew short-window estimates.
	if e.rate >= 10 {
		values = dsp.NewPulseFilter(e.rate).ApplyZeroPhase(values)
	}

	minDistance := int(e.rate * 0.4)
	if minDistance < 1 {
		minDistance = 1
	}
	idx := dsp.FindPeaks(values, minDistance, 0.3)
	if len(idx) < 2 {
		idx = dsp.FindPeaks(values, minDistance, 0.1)
	}

	peaks := make([]float64, 0, len(idx))
	for _, i := range idx {
		peaks = append(peaks, e.buf[i].time)
	}
	e.peakTimes = peaks
	return peaks
}
