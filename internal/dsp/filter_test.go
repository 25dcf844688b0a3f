package dsp

import (
	"math"
	"testing"
)

// pulseTrain synthesizes gaussian beat bumps at the given times over span
// seconds.
func pulseTrain(rate, span float64, beats []float64) []float64 {
	n := int(rate * span)
	sig := make([]float64, n)
	for i := range sig {
		ts := float64(i) / rate
		for _, b := range beats {
			d := ts - b
			sig[i] += math.Exp(-d * d / (2 * 0.06 * 0.06))
		}
	}
	return sig
}

// argmaxNear returns the index of the largest value within ±halfWidth samples
// of center.
func argmaxNear(sig []float64, center, halfWidth int) int {
	lo, hi := center-halfWidth, center+halfWidth
	if lo < 0 {
		lo = 0
	}
	if hi > len(sig)-1 {
		hi = len(sig) - 1
	}
	best := lo
	for i := lo + 1; i <= hi; i++ {
		if sig[i] > sig[best] {
			best = i
		}
	}
	return best
}

func TestZeroPhaseKeepsSlowPulsePeaksInPlace(t *testing.T) {
	const rate = 64.0
	beats := []float64{0.455, 2.273} // a 33 bpm beat near the highpass corner
	sig := pulseTrain(rate, 3.2, beats)

	filtered := NewPulseFilter(rate).ApplyZeroPhase(sig)
	for _, b := range beats {
		want := int(math.Round(b * rate))
		got := argmaxNear(filtered, want, int(math.Round(rate*0.35)))
		if d := got - want; d < -3 || d > 3 {
			t.Fatalf("beat at %.3fs found at sample %d, want near %d", b, got, want)
		}
	}
}

func TestZeroPhaseMatchesSinglePassMagnitude(t *testing.T) {
	const rate = 256.0
	sig := make([]float64, int(rate))
	for i := range sig {
		ts := float64(i) / rate
		sig[i] = math.Sin(2 * math.Pi * 10 * ts)
	}
	f := NewBiosignalFilter(rate, 60)
	out := f.ApplyZeroPhase(sig)
	// Mid-window, away from edge transients, a 10 Hz tone inside the passband
	// comes through at close to unit amplitude.
	var peak float64
	for i := len(out) / 4; i < 3*len(out)/4; i++ {
		if a := math.Abs(out[i]); a > peak {
			peak = a
		}
	}
	if peak < 0.8 || peak > 1.2 {
		t.Fatalf("passband amplitude = %v after the double pass, want about 1", peak)
	}
}
