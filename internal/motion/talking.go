// Package motion interprets the inertial streams: rhythmic jaw movement for
// talking detection and the gravity vector for posture. Both detectors hold
// their reported state through a short dwell lock so single noisy readings
// cannot flap the output.
package motion

import (
	"math"

	"github.com/auraloop/mindstate/internal/dsp"
	"github.com/auraloop/mindstate/internal/headband"
)

// TalkingResult is one detector readout.
type TalkingResult struct {
	Talking    bool    `json:"is_talking"`
	Confidence float64 `json:"confidence"`
	Duration   float64 `json:"duration"`
	Reason     string  `json:"reason"`
}

// Detection reasons.
const (
	ReasonInsufficient = "insufficient_data"
	ReasonDetected     = "detected"
	ReasonNotDetected  = "not_detected"
	ReasonBreathing    = "breathing"
)

const (
	gyroVarianceRef = 5.0  // deg/s variance at full score
	rhythmRef       = 0.3  // share of power in the speech band at full score
	accVarianceRef  = 0.01 // g variance at full score
	breathThreshold = 0.85 // confidence needed when breathing dominates
)

// TalkingDetector scores jaw movement rhythm from the gyroscope with an
// accelerometer assist. Speech shows up as 2-5 Hz oscillation on the pitch
// axis; slow 0.2-0.5 Hz rocking during meditation is breathing and is
// discounted.
type TalkingDetector struct {
	rate int

	gyro  []dsp.Vec3
	accel []dsp.Vec3

	history []bool // recent raw detections, majority smoothed

	talking    bool
	confidence float64
	startTime  float64
	lockTime   float64

	threshold           float64
	thresholdMeditation float64
	minDwell            float64 // seconds
}

// NewTalkingDetector builds a detector over the motion stream. threshold and
// thresholdMeditation are the confidence levels required to report talking
// in each context; minDwell rate limits state changes.
func NewTalkingDetector(threshold, thresholdMeditation, minDwell float64) *TalkingDetector {
	return &TalkingDetector{
		rate:                headband.MotionRate,
		threshold:           threshold,
		thresholdMeditation: thresholdMeditation,
		minDwell:            minDwell,
	}
}

// Reset clears buffers and the reported state.
func (d *TalkingDetector) Reset() {
	d.gyro = nil
	d.accel = nil
	d.history = nil
	d.talking = false
	d.confidence = 0
	d.startTime = 0
	d.lockTime = 0
}

// Update feeds one motion reading and returns the current smoothed state.
// Either sensor may be nil when its stream is absent.
func (d *TalkingDetector) Update(gyro, accel *dsp.Vec3, timestamp float64, meditation bool) TalkingResult {
	if gyro != nil {
		d.gyro = appendBounded(d.gyro, *gyro, d.rate*3)
	}
	if accel != nil {
		d.accel = appendBounded(d.accel, *accel, d.rate*3)
	}
	if len(d.gyro) < d.rate {
		return TalkingResult{Reason: ReasonInsufficient}
	}

	raw, confidence, reason := d.detect(meditation)
	d.confidence = confidence

	d.history = append(d.history, raw)
	if len(d.history) > 10 {
		d.history = d.history[1:]
	}
	votes := 0
	for _, v := range d.history {
		if v {
			votes++
		}
	}
	smoothed := float64(votes) > float64(len(d.history))*0.6

	if smoothed != d.talking && timestamp-d.lockTime >= d.minDwell {
		if smoothed {
			d.startTime = timestamp
		}
		d.talking = smoothed
		d.lockTime = timestamp
	}

	var duration float64
	if d.talking {
		duration = timestamp - d.startTime
	}
	return TalkingResult{
		Talking:    d.talking,
		Confidence: confidence,
		Duration:   duration,
		Reason:     reason,
	}
}

func appendBounded(buf []dsp.Vec3, v dsp.Vec3, max int) []dsp.Vec3 {
	buf = append(buf, v)
	if len(buf) > max {
		buf = buf[1:]
	}
	return buf
}

// detect scores the current buffers without touching the smoothed state.
func (d *TalkingDetector) detect(meditation bool) (talking bool, confidence float64, reason string) {
	// The pitch axis carries jaw movement.
	gyroY := make([]float64, len(d.gyro))
	var mean float64
	for i, g := range d.gyro {
		gyroY[i] = g.Y
		mean += g.Y
	}
	mean /= float64(len(gyroY))
	var variance float64
	for _, v := range gyroY {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(gyroY))

	rhythm := d.rhythmScore(gyroY)

	breathing := false
	if meditation && len(gyroY) >= d.rate*2 {
		if d.breathingScore(gyroY) > 0.5 {
			breathing = true
			rhythm *= 0.3
		}
	}

	var accScore float64
	if len(d.accel) >= d.rate {
		var means, vars dsp.Vec3
		n := float64(len(d.accel))
		for _, a := range d.accel {
			means.X += a.X / n
			means.Y += a.Y / n
			means.Z += a.Z / n
		}
		for _, a := range d.accel {
			vars.X += (a.X - means.X) * (a.X - means.X) / n
			vars.Y += (a.Y - means.Y) * (a.Y - means.Y) / n
			vars.Z += (a.Z - means.Z) * (a.Z - means.Z) / n
		}
		accScore = math.Min(1, (vars.X+vars.Y+vars.Z)/3/accVarianceRef)
	}

	varianceScore := math.Min(1, variance/gyroVarianceRef)
	confidence = varianceScore*0.4 + rhythm*0.5 + accScore*0.1

	threshold := d.threshold
	if meditation {
		threshold = d.thresholdMeditation
	}
	if breathing {
		threshold = math.Max(threshold, breathThreshold)
	}

	talking = confidence > threshold
	switch {
	case breathing:
		reason = ReasonBreathing
	case talking:
		reason = ReasonDetected
	default:
		reason = ReasonNotDetected
	}
	return talking, confidence, reason
}

// rhythmScore is the share of spectral power in the 2-5 Hz syllable band,
// scaled so a typical speech share saturates at 1.
func (d *TalkingDetector) rhythmScore(signal []float64) float64 {
	freqs, psd := dsp.WelchPSD(signal, float64(d.rate))
	if freqs == nil {
		return 0
	}
	var speech, total float64
	for i, f := range freqs {
		total += psd[i]
		if f >= 2 && f <= 5 {
			speech += psd[i]
		}
	}
	if total <= 0 {
		return 0
	}
	return math.Min(1, speech/total/rhythmRef)
}

// breathingScore distinguishes slow 0.2-0.5 Hz rocking from speech rhythm.
func (d *TalkingDetector) breathingScore(signal []float64) float64 {
	freqs, psd := dsp.WelchPSD(signal, float64(d.rate))
	if freqs == nil {
		return 0
	}
	var breathing, speech, total float64
	for i, f := range freqs {
		switch {
		case f >= 0.2 && f <= 0.5:
			breathing += psd[i]
		case f >= 2 && f <= 5:
			speech += psd[i]
		}
		if f >= 0.1 && f <= 10 {
			total += psd[i]
		}
	}
	if total <= 0 {
		return 0
	}
	breathingRatio := breathing / total
	speechRatio := speech / total
	if speechRatio < 0.1 {
		return math.Min(1, breathingRatio*2)
	}
	return math.Max(0, breathingRatio-speechRatio)
}

// CorrectionFactor weights the biosignal down while talking, from full
// weight when silent to 0.2 at maximum confidence.
func (d *TalkingDetector) CorrectionFactor() float64 {
	if !d.talking {
		return 1
	}
	return math.Max(0.2, 1-d.confidence*0.8)
}
