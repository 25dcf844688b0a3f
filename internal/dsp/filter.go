package dsp

import "math"

// biquad is one direct-form-II-transposed second order section.
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
	z1, z2     float64
}

func (s *biquad) process(x float64) float64 {
	y := s.b0*x + s.z1
	s.z1 = s.b1*x - s.a1*y + s.z2
	s.z2 = s.b2*x - s.a2*y
	return y
}

func (s *biquad) reset() {
	s.z1, s.z2 = 0, 0
}

// RBJ cookbook coefficient designs, normalized to a0 == 1.

func highpassBiquad(freq, rate, q float64) biquad {
	w0 := 2 * math.Pi * freq / rate
	cosW, sinW := math.Cos(w0), math.Sin(w0)
	alpha := sinW / (2 * q)
	a0 := 1 + alpha
	return biquad{
		b0: (1 + cosW) / 2 / a0,
		b1: -(1 + cosW) / a0,
		b2: (1 + cosW) / 2 / a0,
		a1: -2 * cosW / a0,
		a2: (1 - alpha) / a0,
	}
}

func lowpassBiquad(freq, rate, q float64) biquad {
	w0 := 2 * math.Pi * freq / rate
	cosW, sinW := math.Cos(w0), math.Sin(w0)
	alpha := sinW / (2 * q)
	a0 := 1 + alpha
	return biquad{
		b0: (1 - cosW) / 2 / a0,
		b1: (1 - cosW) / a0,
		b2: (1 - cosW) / 2 / a0,
		a1: -2 * cosW / a0,
		a2: (1 - alpha) / a0,
	}
}

func notchBiquad(freq, rate, q float64) biquad {
	w0 := 2 * math.Pi * freq / rate
	cosW, sinW := math.Cos(w0), math.Sin(w0)
	alpha := sinW / (2 * q)
	a0 := 1 + alpha
	return biquad{
		b0: 1 / a0,
		b1: -2 * cosW / a0,
		b2: 1 / a0,
		a1: -2 * cosW / a0,
		a2: (1 - alpha) / a0,
	}
}

// Filter is a cascade of biquad sections applied in sequence.
type Filter struct {
	sections []biquad
}

// NewBiosignalFilter builds the conditioning chain applied to every raw
// channel before spectral analysis: 0.5 Hz highpass to remove drift, 50 Hz
// lowpass, and a narrow notch at the mains frequency.
func NewBiosignalFilter(rate, lineHz float64) *Filter {
	return &Filter{sections: []biquad{
		highpassBiquad(0.5, rate, math.Sqrt2/2),
		lowpassBiquad(50, rate, math.Sqrt2/2),
		notchBiquad(lineHz, rate, 30),
	}}
}

// NewPulseFilter builds the 0.5-4 Hz passband used to isolate the cardiac
// component of the optical pulse signal.
func NewPulseFilter(rate float64) *Filter {
	return &Filter{sections: []biquad{
		highpassBiquad(0.5, rate, math.Sqrt2/2),
		lowpassBiquad(4, rate, math.Sqrt2/2),
	}}
}

// Apply filters a window into a fresh slice. State is zeroed first so the
// result depends only on the window, not on prior calls.
func (f *Filter) Apply(in []float64) []float64 {
	for i := range f.sections {
		f.sections[i].reset()
	}
	out := make([]float64, len(in))
	for i, x := range in {
		y := x
		for j := range f.sections {
			y = f.sections[j].process(y)
		}
		out[i] = y
	}
	return out
}

// ApplyZeroPhase runs the cascade forward and then backward over the window,
// cancelling the phase shift of the single pass. Peak positions survive the
// filtering, which matters when timestamps are read back from sample indices.
func (f *Filter) ApplyZeroPhase(in []float64) []float64 {
	out := f.Apply(in)
	reverse(out)
	out = f.Apply(out)
	reverse(out)
	return out
}

func reverse(v []float64) {
	for i, j := 0, len(v)-1; i < j; i, j = i+1, j-1 {
		v[i], v[j] = v[j], v[i]
	}
}
