package dsp

import (
	"sync"

	"github.com/auraloop/mindstate/internal/headband"
)

// ChannelBuffer owns the per-channel ring buffers shared between the
// acquisition loop (writer) and the processing tick (reader). One second of
// biosignal and one second of motion are kept; the tick always works from an
// immutable Snapshot so a window is never torn mid-computation.
type ChannelBuffer struct {
	mu    sync.Mutex
	eeg   [headband.EEGChannels]*RingFloat
	accel *RingVec3
	gyro  *RingVec3
}

// Snapshot is a read-only copy of the buffered windows, in insertion order
// with the newest sample last.
type Snapshot struct {
	EEG   [headband.EEGChannels][]float64
	Accel []Vec3
	Gyro  []Vec3
}

// NewChannelBuffer sizes the rings for one second at the nominal rates.
func NewChannelBuffer() *ChannelBuffer {
	b := &ChannelBuffer{
		accel: NewRingVec3(headband.MotionRate),
		gyro:  NewRingVec3(headband.MotionRate),
	}
	for ch := range b.eeg {
		b.eeg[ch] = NewRingFloat(headband.EEGRate)
	}
	return b
}

// Push routes a decoded sample into the matching ring. Unknown kinds are
// ignored; the pulse stream is owned by the HRV engine, not this buffer.
func (b *ChannelBuffer) Push(s headband.Sample) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch s.Kind {
	case headband.KindEEG:
		for _, row := range s.EEG {
			for ch := 0; ch < headband.EEGChannels; ch++ {
				b.eeg[ch].Push(row[ch])
			}
		}
	case headband.KindAccel:
		b.accel.Push(Vec3{s.Vec[0], s.Vec[1], s.Vec[2]})
	case headband.KindGyro:
		b.gyro.Push(Vec3{s.Vec[0], s.Vec[1], s.Vec[2]})
	}
}

// FullBiosignal reports whether a full second of biosignal is buffered, the
// gate for running a processing tick.
func (b *ChannelBuffer) FullBiosignal() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.eeg {
		if !b.eeg[ch].Full() {
			return false
		}
	}
	return true
}

// Snapshot copies the current windows out under the lock.
func (b *ChannelBuffer) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	var snap Snapshot
	for ch := range b.eeg {
		snap.EEG[ch] = b.eeg[ch].Slice()
	}
	snap.Accel = b.accel.Slice()
	snap.Gyro = b.gyro.Slice()
	return snap
}

// Reset empties every ring. Called on reconnect as part of the session epoch
// reset.
func (b *ChannelBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.eeg {
		b.eeg[ch].Reset()
	}
	b.accel.Reset()
	b.gyro.Reset()
}
