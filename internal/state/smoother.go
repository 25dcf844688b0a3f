package state

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/auraloop/mindstate/internal/dsp"
	"github.com/auraloop/mindstate/internal/timeutil"
)

type sample struct {
	powers   dsp.BandPowers
	quality  float64 // percent
	label    Label
	artifact bool
}

// Smoother holds a sliding window of per-tick classifications and exposes a
// stable output label. Changes require a 70% modal majority in the window
// and are rate limited by a minimum dwell time; degraded signal states take
// priority when no majority exists.
type Smoother struct {
	window   int
	minDwell time.Duration
	clock    timeutil.Clock

	samples []sample

	stable     Label
	changeTime time.Time
}

// NewSmoother builds a smoother over window ticks with the given dwell lock.
func NewSmoother(window int, minDwell time.Duration) *Smoother {
	return &Smoother{
		window:   window,
		minDwell: minDwell,
		clock:    timeutil.RealClock{},
		stable:   LabelUnknown,
	}
}

// Add appends one tick's classification. quality is in percent.
func (s *Smoother) Add(powers dsp.BandPowers, quality float64, label Label, hasArtifact bool) {
	s.samples = append(s.samples, sample{powers, quality, label, hasArtifact})
	if len(s.samples) > s.window {
		s.samples = s.samples[1:]
	}
}

// Reset clears the window and the dwell lock. Called on session epoch reset.
func (s *Smoother) Reset() {
	s.samples = nil
	s.stable = LabelUnknown
	s.changeTime = time.Time{}
}

// SmoothedBands averages band powers over the window. ok is false when the
// window is empty.
func (s *Smoother) SmoothedBands() (p dsp.BandPowers, ok bool) {
	if len(s.samples) == 0 {
		return dsp.BandPowers{}, false
	}
	for _, smp := range s.samples {
		p.Delta += smp.powers.Delta
		p.Theta += smp.powers.Theta
		p.Alpha += smp.powers.Alpha
		p.Beta += smp.powers.Beta
		p.Gamma += smp.powers.Gamma
	}
	n := float64(len(s.samples))
	p.Delta /= n
	p.Theta /= n
	p.Alpha /= n
	p.Beta /= n
	p.Gamma /= n
	return p, true
}

// SmoothedQuality averages signal quality over the window.
func (s *Smoother) SmoothedQuality() float64 {
	if len(s.samples) == 0 {
		return 0
	}
	var sum float64
	for _, smp := range s.samples {
		sum += smp.quality
	}
	return sum / float64(len(s.samples))
}

// ArtifactRatio is the fraction of window ticks flagged as artifacts.
func (s *Smoother) ArtifactRatio() float64 {
	if len(s.samples) == 0 {
		return 0
	}
	n := 0
	for _, smp := range s.samples {
		if smp.artifact {
			n++
		}
	}
	return float64(n) / float64(len(s.samples))
}

// Stable reports whether signal quality variance over the window is low
// enough to trust the output. Needs at least three samples.
func (s *Smoother) Stable() bool {
	if len(s.samples) < 3 {
		return false
	}
	qualities := make([]float64, len(s.samples))
	for i, smp := range s.samples {
		qualities[i] = smp.quality
	}
	return stat.PopStdDev(qualities, nil) < 10
}

// SmoothedLabel resolves the stable output label for the current window.
func (s *Smoother) SmoothedLabel() Label {
	if len(s.samples) == 0 {
		return LabelUnknown
	}

	counts := make(map[Label]int, len(s.samples))
	for _, smp := range s.samples {
		counts[smp.label]++
	}
	modal, modalCount := LabelUnknown, 0
	for label, n := range counts {
		if n > modalCount {
			modal, modalCount = label, n
		}
	}

	candidate := modal
	total := len(s.samples)
	if float64(modalCount)/float64(total) < 0.7 {
		// No clear majority; degraded signal labels win if frequent enough,
		// otherwise hold the current state.
		switch {
		case float64(counts[LabelArtifact]) > float64(total)*0.3:
			candidate = LabelArtifact
		case float64(counts[LabelLowConfidence]) > float64(total)*0.3:
			candidate = LabelLowConfidence
		case s.stable != LabelUnknown:
			return s.stable
		}
	}

	s.setStable(candidate)
	return s.stable
}

// setStable applies the dwell lock: once set, the stable label holds for at
// least minDwell before a different candidate can replace it.
func (s *Smoother) setStable(candidate Label) {
	now := s.clock.Now()
	if s.stable == LabelUnknown {
		s.stable = candidate
		s.changeTime = now
		return
	}
	if candidate == s.stable {
		return
	}
	if now.Sub(s.changeTime) >= s.minDwell {
		s.stable = candidate
		s.changeTime = now
	}
}
