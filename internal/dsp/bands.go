package dsp

import (
	"math"

	"github.com/auraloop/mindstate/internal/headband"
)

// BandPowers holds relative power per canonical frequency band, expressed as
// percentages that sum to 100 whenever any power is present.
type BandPowers struct {
	Delta float64 `json:"delta"`
	Theta float64 `json:"theta"`
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
	Gamma float64 `json:"gamma"`
}

// Sum returns the total of the five bands.
func (p BandPowers) Sum() float64 {
	return p.Delta + p.Theta + p.Alpha + p.Beta + p.Gamma
}

var bandEdges = []struct {
	lo, hi float64
}{
	{0.5, 4}, // delta
	{4, 8},   // theta
	{8, 13},  // alpha
	{13, 30}, // beta
	{30, 50}, // gamma
}

// SpectralEngine conditions raw channels and computes relative band powers
// from a Welch PSD estimate.
type SpectralEngine struct {
	rate         float64
	badThreshold float64
	filter       *Filter
}

// NewSpectralEngine builds an engine for the given sample rate. badThreshold
// is the peak absolute amplitude, in microvolts, at or above which a channel
// is considered to have lost contact.
func NewSpectralEngine(rate, lineHz, badThreshold float64) *SpectralEngine {
	return &SpectralEngine{
		rate:         rate,
		badThreshold: badThreshold,
		filter:       NewBiosignalFilter(rate, lineHz),
	}
}

// BadChannels reports which channels look disconnected or railed, judged
// by the peak absolute amplitude over the window. The threshold comparison
// is inclusive: a channel peaking exactly at the threshold is flagged.
func (e *SpectralEngine) BadChannels(eeg [headband.EEGChannels][]float64) [headband.EEGChannels]bool {
	var bad [headband.EEGChannels]bool
	for ch := range eeg {
		if len(eeg[ch]) == 0 {
			bad[ch] = true
			continue
		}
		var peak float64
		for _, v := range eeg[ch] {
			if a := math.Abs(v); a > peak {
				peak = a
			}
		}
		if peak >= e.badThreshold {
			bad[ch] = true
		}
	}
	return bad
}

// ChannelBandPowers computes relative band powers for one channel window.
// Windows shorter than one second, or with no in-band power, return zeros.
func (e *SpectralEngine) ChannelBandPowers(signal []float64) BandPowers {
	if float64(len(signal)) < e.rate {
		return BandPowers{}
	}
	filtered := e.filter.Apply(signal)
	freqs, psd := WelchPSD(filtered, e.rate)
	if freqs == nil {
		return BandPowers{}
	}
	var raw [5]float64
	var total float64
	for i, b := range bandEdges {
		raw[i] = bandIntegral(freqs, psd, b.lo, b.hi)
		total += raw[i]
	}
	if total <= 0 {
		return BandPowers{}
	}
	// Normalizing by the sum of the band integrals themselves guarantees the
	// percentages total exactly 100 up to rounding.
	return BandPowers{
		Delta: raw[0] / total * 100,
		Theta: raw[1] / total * 100,
		Alpha: raw[2] / total * 100,
		Beta:  raw[3] / total * 100,
		Gamma: raw[4] / total * 100,
	}
}

// BandPowersFor averages per-channel band powers across channels that pass
// the contact check. If every channel is bad the average falls back to all
// channels so the pipeline keeps producing output under degraded contact.
func (e *SpectralEngine) BandPowersFor(eeg [headband.EEGChannels][]float64) (BandPowers, [headband.EEGChannels]bool) {
	bad := e.BadChannels(eeg)
	return e.AveragedBandPowers(eeg, bad), bad
}

// AveragedBandPowers averages per-channel band powers over channels not
// marked bad. Callers that clean channels before spectral analysis detect
// bad channels on the raw window and pass the mask in here.
func (e *SpectralEngine) AveragedBandPowers(eeg [headband.EEGChannels][]float64, bad [headband.EEGChannels]bool) BandPowers {
	useAll := true
	for _, b := range bad {
		if !b {
			useAll = false
			break
		}
	}

	var sum BandPowers
	n := 0
	for ch := range eeg {
		if !useAll && bad[ch] {
			continue
		}
		p := e.ChannelBandPowers(eeg[ch])
		if p.Sum() == 0 {
			// A flat channel contributes nothing; averaging it in would
			// break the sums-to-100 property for the rest.
			continue
		}
		sum.Delta += p.Delta
		sum.Theta += p.Theta
		sum.Alpha += p.Alpha
		sum.Beta += p.Beta
		sum.Gamma += p.Gamma
		n++
	}
	if n == 0 {
		return BandPowers{}
	}
	f := float64(n)
	sum.Delta /= f
	sum.Theta /= f
	sum.Alpha /= f
	sum.Beta /= f
	sum.Gamma /= f
	return sum
}
