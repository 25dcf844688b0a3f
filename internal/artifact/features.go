// Package artifact extracts physiological features from the buffered sensor
// windows. The outputs are continuous intensities in [0, 1] rather than
// binary reject flags: muscle tension, blinks, and movement carry meaning
// about the wearer and are surfaced to downstream consumers, while only
// genuinely unusable signal is marked as an artifact.
package artifact

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/auraloop/mindstate/internal/dsp"
	"github.com/auraloop/mindstate/internal/headband"
)

// Artifact kinds reported alongside the feature set.
const (
	KindClean       = "clean"
	KindPoorQuality = "poor_quality"
	KindMuscle      = "muscle"
	KindMotion      = "motion"
	KindEyeBlink    = "eye_blink"
)

// Report carries the extracted features for one processing tick. All
// intensities are clamped to [0, 1].
type Report struct {
	EMGIntensity      float64 `json:"emg_intensity"`
	ForeheadEMG       float64 `json:"forehead_emg"`
	BlinkIntensity    float64 `json:"blink_intensity"`
	MovementIntensity float64 `json:"movement_intensity"`
	DataQuality       float64 `json:"data_quality"`
	HasArtifact       bool    `json:"has_artifact"`
	Kind              string  `json:"artifact_type"`
}

// Engine computes feature reports from snapshot windows.
type Engine struct {
	rate          float64
	lineHz        float64
	clipThreshold float64 // microvolts, clipping penalty
	contactFloor  float64 // microvolts, poor contact penalty
}

func NewEngine(rate, lineHz, clipThreshold, contactFloor float64) *Engine {
	return &Engine{
		rate:          rate,
		lineHz:        lineHz,
		clipThreshold: clipThreshold,
		contactFloor:  contactFloor,
	}
}

// Extract computes the feature report for one window. During meditation the
// physiological intensities are still extracted but never escalate the
// artifact kind; only poor signal quality counts as an artifact.
func (e *Engine) Extract(snap dsp.Snapshot, meditation bool) Report {
	r := Report{
		EMGIntensity:      e.emgIntensity(snap.EEG),
		ForeheadEMG:       e.foreheadTension(snap.EEG),
		BlinkIntensity:    e.blinkIntensity(snap.EEG),
		MovementIntensity: e.movementIntensity(snap.Accel, snap.Gyro),
		DataQuality:       e.dataQuality(snap.EEG),
		Kind:              KindClean,
	}

	r.HasArtifact = r.DataQuality < 0.5
	switch {
	case r.DataQuality < 0.5:
		r.Kind = KindPoorQuality
	case meditation:
		// Tension and movement are behavioral data here, not artifacts.
	case r.EMGIntensity > 0.7:
		r.Kind = KindMuscle
	case r.MovementIntensity > 0.7:
		r.Kind = KindMotion
	case r.BlinkIntensity > 0.5:
		r.Kind = KindEyeBlink
	}
	return r
}

// crossChannelMean averages the trailing n samples across all channels into
// one signal. Returns nil when fewer than n samples are buffered.
func crossChannelMean(eeg [headband.EEGChannels][]float64, n int) []float64 {
	for ch := range eeg {
		if len(eeg[ch]) < n {
			return nil
		}
	}
	out := make([]float64, n)
	for ch := range eeg {
		tail := eeg[ch][len(eeg[ch])-n:]
		for i, v := range tail {
			out[i] += v
		}
	}
	for i := range out {
		out[i] /= headband.EEGChannels
	}
	return out
}

// emgIntensity maps the share of spectral power in the 30-100 Hz muscle band
// onto [0, 1], saturating at a 30% share.
func (e *Engine) emgIntensity(eeg [headband.EEGChannels][]float64) float64 {
	mean := crossChannelMean(eeg, 128)
	if mean == nil {
		return 0
	}
	freqs, psd := dsp.WelchPSD(mean, e.rate)
	if freqs == nil {
		return 0
	}
	df := freqs[1] - freqs[0]
	var emg, total float64
	for i, f := range freqs {
		p := psd[i] * df
		total += p
		if f >= 30 && f <= 100 {
			emg += p
		}
	}
	if total <= 0 {
		return 0
	}
	return math.Min(1, emg/total/0.3)
}

// foreheadTension is the mean absolute amplitude of the frontal pair over the
// last quarter second, normalized so 100 µV saturates the scale.
func (e *Engine) foreheadTension(eeg [headband.EEGChannels][]float64) float64 {
	const n = 64
	var sum float64
	var count int
	for _, ch := range []int{1, 2} {
		if len(eeg[ch]) < n {
			return 0
		}
		for _, v := range eeg[ch][len(eeg[ch])-n:] {
			sum += math.Abs(v)
			count++
		}
	}
	return math.Min(1, sum/float64(count)/100)
}

// blinkIntensity looks for the high amplitude frontal spike a blink leaves.
// Below 150 µV there is no blink; above, intensity grows from 0.5.
func (e *Engine) blinkIntensity(eeg [headband.EEGChannels][]float64) float64 {
	const n = 64
	var peak float64
	for _, ch := range []int{1, 2} {
		if len(eeg[ch]) < n {
			return 0
		}
		for _, v := range eeg[ch][len(eeg[ch])-n:] {
			if a := math.Abs(v); a > peak {
				peak = a
			}
		}
	}
	if peak <= 150 {
		return 0
	}
	return math.Min(1, (peak-150)/150+0.5)
}

// movementIntensity combines accelerometer magnitude variance over the last
// ten readings with the latest gyroscope rotation rate.
func (e *Engine) movementIntensity(accel, gyro []dsp.Vec3) float64 {
	var intensity float64
	if len(accel) > 10 {
		recent := accel[len(accel)-10:]
		mags := make([]float64, len(recent))
		for i, a := range recent {
			mags[i] = math.Sqrt(a.X*a.X + a.Y*a.Y + a.Z*a.Z)
		}
		intensity = math.Min(1, stat.PopVariance(mags, nil)/0.5)
	}
	if len(gyro) > 0 {
		g := gyro[len(gyro)-1]
		mag := math.Sqrt(g.X*g.X + g.Y*g.Y + g.Z*g.Z)
		if v := math.Min(1, mag/500); v > intensity {
			intensity = v
		}
	}
	return intensity
}

// dataQuality starts at 1 and deducts fixed penalties for clipping, poor
// electrode contact, and mains interference.
func (e *Engine) dataQuality(eeg [headband.EEGChannels][]float64) float64 {
	var maxAmp, meanAmp float64
	var count int
	for ch := range eeg {
		for _, v := range eeg[ch] {
			a := math.Abs(v)
			if a > maxAmp {
				maxAmp = a
			}
			meanAmp += a
			count++
		}
	}
	if count == 0 {
		return 0
	}
	meanAmp /= float64(count)

	quality := 1.0
	if maxAmp > e.clipThreshold {
		quality -= 0.5
	}
	if meanAmp < e.contactFloor {
		quality -= 0.3
	}
	if e.lineInterference(eeg) {
		quality -= 0.2
	}
	return math.Max(0, quality)
}

// lineInterference reports whether the PSD bin nearest the mains frequency
// carries more than twice the mean power of its ±5 Hz neighborhood.
func (e *Engine) lineInterference(eeg [headband.EEGChannels][]float64) bool {
	mean := crossChannelMean(eeg, 128)
	if mean == nil {
		return false
	}
	freqs, psd := dsp.WelchPSD(mean, e.rate)
	if freqs == nil {
		return false
	}
	lineIdx := 0
	for i, f := range freqs {
		if math.Abs(f-e.lineHz) < math.Abs(freqs[lineIdx]-e.lineHz) {
			lineIdx = i
		}
	}
	var neighborhood float64
	var n int
	for i, f := range freqs {
		if f >= e.lineHz-5 && f <= e.lineHz+5 {
			neighborhood += psd[i]
			n++
		}
	}
	if n == 0 || neighborhood == 0 {
		return false
	}
	return psd[lineIdx] > 2*neighborhood/float64(n)
}
