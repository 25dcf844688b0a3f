package dsp

import (
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// WelchPSD estimates a one-sided power spectral density from a real signal
// using Hann-windowed segments with 50% overlap. Segment length is the
// largest power of two up to 256 that fits the input. Returned frequencies
// run from 0 to rate/2 and the density carries units of signal²/Hz.
func WelchPSD(signal []float64, rate float64) (freqs, psd []float64) {
	segLen := 256
	for segLen > len(signal) {
		segLen /= 2
	}
	if segLen < 8 {
		return nil, nil
	}
	hop := segLen / 2

	fft := fourier.NewFFT(segLen)
	nBins := segLen/2 + 1

	hann := make([]float64, segLen)
	for i := range hann {
		hann[i] = 1
	}
	hann = window.Hann(hann)
	var winPower float64
	for _, w := range hann {
		winPower += w * w
	}
	scale := 1 / (rate * winPower)

	psd = make([]float64, nBins)
	seg := make([]float64, segLen)
	nSegs := 0
	for start := 0; start+segLen <= len(signal); start += hop {
		copy(seg, signal[start:start+segLen])
		// Detrend by removing the segment mean before windowing.
		var mean float64
		for _, v := range seg {
			mean += v
		}
		mean /= float64(segLen)
		for i := range seg {
			seg[i] = (seg[i] - mean) * hann[i]
		}
		coeffs := fft.Coefficients(nil, seg)
		for k, c := range coeffs {
			p := (real(c)*real(c) + imag(c)*imag(c)) * scale
			// One-sided: interior bins carry both halves of the spectrum.
			if k != 0 && k != nBins-1 {
				p *= 2
			}
			psd[k] += p
		}
		nSegs++
	}
	if nSegs == 0 {
		return nil, nil
	}
	for k := range psd {
		psd[k] /= float64(nSegs)
	}

	freqs = make([]float64, nBins)
	df := rate / float64(segLen)
	for k := range freqs {
		freqs[k] = float64(k) * df
	}
	return freqs, psd
}

// bandIntegral integrates the PSD over [lo, hi) by the trapezoidal rule
// across the bins inside the band. A band holding a single bin degenerates
// to that bin times the spacing.
func bandIntegral(freqs, psd []float64, lo, hi float64) float64 {
	if len(freqs) < 2 {
		return 0
	}
	df := freqs[1] - freqs[0]
	first, last := -1, -1
	for i, f := range freqs {
		if f >= lo && f < hi {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return 0
	}
	if first == last {
		return psd[first] * df
	}
	var sum float64
	for i := first; i < last; i++ {
		sum += (psd[i] + psd[i+1]) / 2 * df
	}
	return sum
}
