// Package state turns spectral band powers into a cognitive state label and
// smooths the per-tick labels into a stable output stream.
package state

import "github.com/auraloop/mindstate/internal/dsp"

// Label is the classified cognitive state. Values are wire-stable strings.
type Label string

const (
	LabelUnknown            Label = "unknown"
	LabelMixed              Label = "mixed"
	LabelFocused            Label = "focused"
	LabelPeakFocus          Label = "peak_focus"
	LabelRelaxed            Label = "relaxed"
	LabelCreative           Label = "creative"
	LabelDrowsy             Label = "drowsy"
	LabelDeepMeditation     Label = "deep_meditation"
	LabelMeditative         Label = "meditative"
	LabelEnteringMeditation Label = "entering_meditation"
	LabelReturning          Label = "returning"
	LabelArtifact           Label = "artifact_detected"
	LabelLowConfidence      Label = "low_confidence"
)

// Classify maps relative band powers onto a state label. The rules are
// ordered threshold checks on percentages and ratios; identical input always
// yields the identical label. The meditation rule set reads the slow bands
// directly instead of the engagement ratios.
func Classify(p dsp.BandPowers, meditation bool) Label {
	if p.Sum() == 0 {
		return LabelUnknown
	}

	if meditation {
		switch {
		case p.Theta > 20 && p.Alpha > 25 && p.Beta < 15:
			return LabelDeepMeditation
		case p.Theta > 15 || p.Alpha > 30:
			return LabelMeditative
		case (p.Theta > 10 || p.Alpha > 20) && p.Beta < 20:
			return LabelEnteringMeditation
		case p.Beta > 20 && p.Alpha < 20:
			return LabelReturning
		case p.Alpha > p.Delta && p.Alpha > p.Beta:
			return LabelRelaxed
		case p.Theta > p.Delta && p.Theta > p.Beta:
			return LabelMeditative
		}
		return LabelMixed
	}

	betaAlpha := p.Beta / (p.Alpha + 1e-6)
	switch {
	// Dominant delta while awake is poor signal, not sleep.
	case p.Delta > 40:
		return LabelMixed
	case p.Beta > 30 && betaAlpha > 1.5:
		return LabelFocused
	case p.Gamma > 15 && p.Beta > 25:
		return LabelPeakFocus
	case p.Alpha > 30 && p.Beta < 20:
		return LabelRelaxed
	case p.Theta > 25 && p.Alpha > 20:
		return LabelCreative
	case p.Delta > 30 && p.Theta > 20:
		return LabelDrowsy
	}

	// No rule matched cleanly; prefer a specific lean over "mixed".
	switch {
	case p.Beta > 20 || p.Gamma > 10:
		return LabelFocused
	case p.Alpha > 20:
		return LabelRelaxed
	case p.Theta > 15:
		return LabelCreative
	case p.Delta < 30:
		return LabelRelaxed
	}
	return LabelMixed
}
