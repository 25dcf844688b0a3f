// Package headband implements the acquisition side of the pipeline: it
// maintains the link to the wearable's streaming bridge, decodes the framed
// sensor protocol, and emits typed samples with bounded auto-reconnect.
package headband

// Nominal stream rates and channel layout for the 4-electrode headband.
const (
	EEGRate     = 256 // Hz, biosignal
	PPGRate     = 64  // Hz, pulse (effective rate varies on real hardware)
	MotionRate  = 52  // Hz, accelerometer and gyroscope
	EEGChannels = 4
)

// ChannelNames lists the electrode positions in wire order. Indices 1 and 2
// are the frontal pair used for blink and forehead-tension features.
var ChannelNames = [EEGChannels]string{"TP9", "AF7", "AF8", "TP10"}

// Kind discriminates the sample variants carried over the link.
type Kind int

const (
	KindEEG Kind = iota
	KindPPG
	KindAccel
	KindGyro
)

func (k Kind) String() string {
	switch k {
	case KindEEG:
		return "eeg"
	case KindPPG:
		return "ppg"
	case KindAccel:
		return "acc"
	case KindGyro:
		return "gyro"
	}
	return "unknown"
}

// Sample is one decoded sensor reading. It is immutable once emitted; only
// the fields for the tagged Kind are meaningful.
type Sample struct {
	Kind      Kind
	Timestamp float64 // bridge clock, unix seconds

	EEG [][EEGChannels]float64 // KindEEG chunk rows, microvolts
	PPG [3]float64             // KindPPG ambient/infrared/red
	Vec [3]float64             // KindAccel in g, KindGyro in deg/s
}

// SampleSink receives decoded samples from the acquisition loop.
type SampleSink func(Sample)

// DeviceInfo describes the resolved bridge connection. Optional streams that
// the bridge does not expose are simply false; downstream stages treat their
// absence as valid degraded input.
type DeviceInfo struct {
	Name    string `json:"name"`
	EEG     bool   `json:"eeg"`
	PPG     bool   `json:"ppg"`
	Accel   bool   `json:"acc"`
	Gyro    bool   `json:"gyro"`
	Rate    int    `json:"sample_rate"`
	NumChan int    `json:"channel_count"`
}
