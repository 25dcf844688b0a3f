package motion

import (
	"math"

	"github.com/auraloop/mindstate/internal/dsp"
)

// Posture statuses.
const (
	PostureUnknown  = "Unknown"
	PostureMoving   = "Moving"
	PostureStill    = "Still"
	PostureUnstable = "Unstable"
	PostureGood     = "Good"
	PostureForward  = "Forward tilt"
	PostureBackward = "Backward tilt"
	PostureSide     = "Side tilt"
	PostureSlight   = "Slight tilt"
)

// Posture is one readout. Pitch and roll are in degrees; positive pitch is
// head forward, positive roll is toward the right shoulder.
type Posture struct {
	Status string  `json:"status"`
	Pitch  float64 `json:"pitch"`
	Roll   float64 `json:"roll"`
}

type attitude struct {
	pitch, roll float64
}

// PostureEngine estimates head orientation from the gravity vector and
// smooths it over a sliding window. Reported status transitions are rate
// limited by a dwell lock, except for Moving which always reports
// immediately since orientation is meaningless mid-motion.
type PostureEngine struct {
	history []attitude

	stable     string
	changeTime float64
	minDwell   float64 // seconds
}

const postureWindow = 30

// NewPostureEngine builds an engine with the given dwell lock in seconds.
func NewPostureEngine(minDwell float64) *PostureEngine {
	return &PostureEngine{stable: PostureUnknown, minDwell: minDwell}
}

// Reset clears history and the dwell lock.
func (p *PostureEngine) Reset() {
	p.history = nil
	p.stable = PostureUnknown
	p.changeTime = 0
}

// Update feeds one motion reading. Either sensor may be nil.
func (p *PostureEngine) Update(gyro, accel *dsp.Vec3, timestamp float64) Posture {
	raw := p.classify(gyro, accel)
	if raw.Status == PostureMoving {
		p.stable = PostureMoving
		p.changeTime = timestamp
		return raw
	}
	if raw.Status != p.stable {
		if p.stable == PostureUnknown || timestamp-p.changeTime >= p.minDwell {
			p.stable = raw.Status
			p.changeTime = timestamp
		}
	}
	return Posture{Status: p.stable, Pitch: raw.Pitch, Roll: raw.Roll}
}

func (p *PostureEngine) classify(gyro, accel *dsp.Vec3) Posture {
	if gyro == nil && accel == nil {
		return Posture{Status: PostureUnknown}
	}

	// Any significant rotation means orientation cannot be trusted.
	if gyro != nil {
		mag := math.Sqrt(gyro.X*gyro.X + gyro.Y*gyro.Y + gyro.Z*gyro.Z)
		if mag > 30 {
			return Posture{Status: PostureMoving}
		}
	}

	if accel == nil {
		// Gyro only: movement state, no orientation.
		mag := math.Sqrt(gyro.X*gyro.X + gyro.Y*gyro.Y + gyro.Z*gyro.Z)
		if mag > 50 {
			return Posture{Status: PostureMoving}
		}
		return Posture{Status: PostureStill}
	}

	mag := math.Sqrt(accel.X*accel.X + accel.Y*accel.Y + accel.Z*accel.Z)
	if mag < 0.5 {
		return Posture{Status: PostureUnstable}
	}
	pitch := math.Asin(clamp(-accel.X/mag, -1, 1)) * 180 / math.Pi
	roll := math.Asin(clamp(accel.Y/mag, -1, 1)) * 180 / math.Pi

	p.history = append(p.history, attitude{pitch, roll})
	if len(p.history) > postureWindow {
		p.history = p.history[1:]
	}

	if len(p.history) > 15 {
		return classifySmoothed(p.history)
	}
	return classifyInstant(pitch, roll)
}

// classifySmoothed works from window averages with tighter thresholds than
// the single-reading path.
func classifySmoothed(history []attitude) Posture {
	var avgPitch, avgRoll float64
	for _, a := range history {
		avgPitch += a.pitch
		avgRoll += a.roll
	}
	n := float64(len(history))
	avgPitch /= n
	avgRoll /= n

	var varPitch, varRoll float64
	for _, a := range history {
		varPitch += (a.pitch - avgPitch) * (a.pitch - avgPitch)
		varRoll += (a.roll - avgRoll) * (a.roll - avgRoll)
	}
	if math.Sqrt(varPitch/n) > 10 || math.Sqrt(varRoll/n) > 10 {
		return Posture{Status: PostureUnstable, Pitch: avgPitch, Roll: avgRoll}
	}

	out := Posture{Pitch: avgPitch, Roll: avgRoll}
	switch {
	case math.Abs(avgPitch) < 10 && math.Abs(avgRoll) < 10:
		out.Status = PostureGood
	case avgPitch > 20:
		out.Status = PostureForward
	case avgPitch < -20:
		out.Status = PostureBackward
	case math.Abs(avgRoll) > 15:
		out.Status = PostureSide
	default:
		out.Status = PostureSlight
	}
	return out
}

func classifyInstant(pitch, roll float64) Posture {
	out := Posture{Pitch: pitch, Roll: roll}
	switch {
	case math.Abs(pitch) < 15 && math.Abs(roll) < 15:
		out.Status = PostureGood
	case pitch > 30:
		out.Status = PostureForward
	case pitch < -30:
		out.Status = PostureBackward
	case math.Abs(roll) > 20:
		out.Status = PostureSide
	default:
		out.Status = PostureSlight
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
