package dsp

import (
	"math"
	"testing"
)

func TestWelchPeakAtToneFrequency(t *testing.T) {
	const rate = 256.0
	signal := sine(12, 1, rate, 512)
	freqs, psd := WelchPSD(signal, rate)
	if freqs == nil {
		t.Fatalf("no estimate for a 512 sample window")
	}
	best := 0
	for i := range psd {
		if psd[i] > psd[best] {
			best = i
		}
	}
	if math.Abs(freqs[best]-12) > 1.5 {
		t.Fatalf("peak at %v Hz, want 12 Hz", freqs[best])
	}
}

func TestWelchParsevalEnergy(t *testing.T) {
	const rate = 256.0
	signal := sine(10, 2, rate, 1024)
	freqs, psd := WelchPSD(signal, rate)
	df := freqs[1] - freqs[0]
	var total float64
	for _, p := range psd {
		total += p * df
	}
	// A sine of amplitude 2 has mean square power 2.
	if math.Abs(total-2) > 0.2 {
		t.Fatalf("integrated PSD = %v, want about 2", total)
	}
}

func TestBandIntegralTrapezoid(t *testing.T) {
	freqs := []float64{0, 1, 2, 3, 4}
	psd := []float64{0, 2, 4, 2, 0}
	// Trapezoids over the 1-3 Hz bins: (2+4)/2 + (4+2)/2 = 6.
	if got := bandIntegral(freqs, psd, 1, 4); math.Abs(got-6) > 1e-12 {
		t.Fatalf("band integral = %v, want 6", got)
	}
	if got := bandIntegral(freqs, psd, 2, 3); math.Abs(got-4) > 1e-12 {
		t.Fatalf("single bin band = %v, want 4", got)
	}
	if got := bandIntegral(freqs, psd, 10, 20); got != 0 {
		t.Fatalf("out of range band = %v, want 0", got)
	}
}

func TestWelchTooShort(t *testing.T) {
	if f, p := WelchPSD(make([]float64, 4), 256); f != nil || p != nil {
		t.Fatalf("tiny input produced an estimate")
	}
}

func TestBiosignalFilterNotchesLine(t *testing.T) {
	const rate = 256.0
	f := NewBiosignalFilter(rate, 60)
	line := sine(60, 1, rate, 1024)
	alpha := sine(10, 1, rate, 1024)
	outLine := f.Apply(line)
	outAlpha := f.Apply(alpha)

	rms := func(s []float64) float64 {
		var sum float64
		for _, v := range s[len(s)/2:] { // skip transient
			sum += v * v
		}
		return math.Sqrt(sum / float64(len(s)/2))
	}
	if r := rms(outLine); r > 0.15 {
		t.Fatalf("60 Hz residual RMS = %v, want strong attenuation", r)
	}
	if r := rms(outAlpha); r < 0.5 {
		t.Fatalf("10 Hz RMS = %v, passband content was damaged", r)
	}
}

func TestFilterApplyIsStateless(t *testing.T) {
	f := NewBiosignalFilter(256, 60)
	in := sine(10, 1, 256, 256)
	a := f.Apply(in)
	b := f.Apply(in)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("repeated Apply diverged at sample %d", i)
		}
	}
}
