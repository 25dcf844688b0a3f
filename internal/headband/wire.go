package headband

import (
	"encoding/json"
	"fmt"
)

// The bridge speaks newline-delimited JSON over serial and one JSON text
// message per websocket frame. The first message after dial must be "info".

type wireStreams struct {
	EEG  bool `json:"eeg"`
	PPG  bool `json:"ppg"`
	Acc  bool `json:"acc"`
	Gyro bool `json:"gyro"`
}

type wireMessage struct {
	Type    string       `json:"type"`
	Name    string       `json:"name,omitempty"`
	Streams *wireStreams `json:"streams,omitempty"`
	T       float64      `json:"t,omitempty"`
	Data    [][]float64  `json:"data,omitempty"`
}

// decodeInfo parses the handshake message. The biosignal stream is mandatory;
// a bridge that cannot provide it is not a usable device.
func decodeInfo(raw []byte) (DeviceInfo, error) {
	var m wireMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return DeviceInfo{}, fmt.Errorf("failed to parse handshake: %w", err)
	}
	if m.Type != "info" {
		return DeviceInfo{}, fmt.Errorf("expected info message, got %q", m.Type)
	}
	if m.Streams == nil || !m.Streams.EEG {
		return DeviceInfo{}, fmt.Errorf("bridge %q does not expose the biosignal stream", m.Name)
	}
	return DeviceInfo{
		Name:    m.Name,
		EEG:     true,
		PPG:     m.Streams.PPG,
		Accel:   m.Streams.Acc,
		Gyro:    m.Streams.Gyro,
		Rate:    EEGRate,
		NumChan: EEGChannels,
	}, nil
}

// decodeSamples parses one data message into zero or more samples. A message
// with an unknown type or malformed rows is a per-chunk data error: the caller
// logs and skips it without touching the link.
func decodeSamples(raw []byte) ([]Sample, error) {
	var m wireMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to parse chunk: %w", err)
	}

	switch m.Type {
	case "eeg":
		if len(m.Data) == 0 {
			return nil, fmt.Errorf("empty eeg chunk")
		}
		s := Sample{Kind: KindEEG, Timestamp: m.T}
		for i, row := range m.Data {
			if len(row) != EEGChannels {
				return nil, fmt.Errorf("eeg row %d has %d channels, want %d", i, len(row), EEGChannels)
			}
			var r [EEGChannels]float64
			copy(r[:], row)
			s.EEG = append(s.EEG, r)
		}
		return []Sample{s}, nil

	case "ppg":
		if len(m.Data) == 0 {
			return nil, fmt.Errorf("empty ppg chunk")
		}
		// Only the newest reading matters for peak detection; older rows in
		// the chunk carry no extra timing information at the bridge's clock
		// resolution, so emit one sample per row with interpolated spacing.
		samples := make([]Sample, 0, len(m.Data))
		for i, row := range m.Data {
			if len(row) < 1 {
				return nil, fmt.Errorf("ppg row %d is empty", i)
			}
			var p [3]float64
			copy(p[:], row)
			ts := m.T + float64(i)/float64(PPGRate)
			samples = append(samples, Sample{Kind: KindPPG, Timestamp: ts, PPG: p})
		}
		return samples, nil

	case "acc", "gyro":
		if len(m.Data) == 0 {
			return nil, fmt.Errorf("empty %s chunk", m.Type)
		}
		kind := KindAccel
		if m.Type == "gyro" {
			kind = KindGyro
		}
		samples := make([]Sample, 0, len(m.Data))
		for i, row := range m.Data {
			if len(row) != 3 {
				return nil, fmt.Errorf("%s row %d has %d axes, want 3", m.Type, i, len(row))
			}
			var v [3]float64
			copy(v[:], row)
			ts := m.T + float64(i)/float64(MotionRate)
			samples = append(samples, Sample{Kind: kind, Timestamp: ts, Vec: v})
		}
		return samples, nil

	case "info":
		// A mid-stream info message (bridge restart) carries no samples.
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown message type %q", m.Type)
	}
}
