// Package dsp holds the signal-processing core: fixed-capacity sample
// buffers, the filtering and spectral-estimation chain, band-power
// integration, and the shared peak finder.
package dsp

// RingFloat is a fixed-capacity ring buffer for float64 samples. Oldest
// values are evicted on overflow; Slice returns insertion order.
type RingFloat struct {
	data []float64
	pos  int
	full bool
	cap  int
}

// NewRingFloat creates a RingFloat with the given capacity.
func NewRingFloat(capacity int) *RingFloat {
	return &RingFloat{data: make([]float64, capacity), cap: capacity}
}

// Push adds a value, evicting the oldest when full.
func (r *RingFloat) Push(v float64) {
	r.data[r.pos] = v
	r.pos++
	if r.pos >= r.cap {
		r.pos = 0
		r.full = true
	}
}

// Len returns the number of buffered values.
func (r *RingFloat) Len() int {
	if r.full {
		return r.cap
	}
	return r.pos
}

// Full reports whether the buffer has reached capacity.
func (r *RingFloat) Full() bool { return r.full }

// Slice copies the contents out in insertion order.
func (r *RingFloat) Slice() []float64 {
	n := r.Len()
	out := make([]float64, n)
	if r.full {
		copy(out, r.data[r.pos:])
		copy(out[r.cap-r.pos:], r.data[:r.pos])
	} else {
		copy(out, r.data[:r.pos])
	}
	return out
}

// Reset discards all buffered values.
func (r *RingFloat) Reset() {
	r.pos = 0
	r.full = false
}

// Vec3 is a 3-axis motion reading.
type Vec3 struct {
	X, Y, Z float64
}

// RingVec3 is a fixed-capacity ring buffer for Vec3 readings.
type RingVec3 struct {
	data []Vec3
	pos  int
	full bool
	cap  int
}

// NewRingVec3 creates a RingVec3 with the given capacity.
func NewRingVec3(capacity int) *RingVec3 {
	return &RingVec3{data: make([]Vec3, capacity), cap: capacity}
}

// Push adds a reading, evicting the oldest when full.
func (r *RingVec3) Push(v Vec3) {
	r.data[r.pos] = v
	r.pos++
	if r.pos >= r.cap {
		r.pos = 0
		r.full = true
	}
}

// Len returns the number of buffered readings.
func (r *RingVec3) Len() int {
	if r.full {
		return r.cap
	}
	return r.pos
}

// Slice copies the contents out in insertion order.
func (r *RingVec3) Slice() []Vec3 {
	n := r.Len()
	out := make([]Vec3, n)
	if r.full {
		copy(out, r.data[r.pos:])
		copy(out[r.cap-r.pos:], r.data[:r.pos])
	} else {
		copy(out, r.data[:r.pos])
	}
	return out
}

// Reset discards all buffered readings.
func (r *RingVec3) Reset() {
	r.pos = 0
	r.full = false
}
