package dsp

// FindPeaks returns indices of local maxima separated by at least minDistance
// samples and standing at least minProminence above their surrounding
// terrain. Prominence is measured against the higher of the two valley
// minima between a peak and its nearest higher neighbor on each side.
func FindPeaks(signal []float64, minDistance int, minProminence float64) []int {
	if len(signal) < 3 {
		return nil
	}

	var candidates []int
	for i := 1; i < len(signal)-1; i++ {
		if signal[i] > signal[i-1] && signal[i] >= signal[i+1] {
			candidates = append(candidates, i)
		}
	}

	var peaks []int
	for _, i := range candidates {
		if prominence(signal, i) < minProminence {
			continue
		}
		peaks = append(peaks, i)
	}

	if minDistance <= 1 || len(peaks) < 2 {
		return peaks
	}

	// Enforce spacing greedily, keeping the taller of any conflicting pair.
	kept := peaks[:0]
	for _, p := range peaks {
		if len(kept) == 0 || p-kept[len(kept)-1] >= minDistance {
			kept = append(kept, p)
			continue
		}
		if signal[p] > signal[kept[len(kept)-1]] {
			kept[len(kept)-1] = p
		}
	}
	return kept
}

func prominence(signal []float64, peak int) float64 {
	h := signal[peak]

	leftMin := h
	for i := peak - 1; i >= 0; i-- {
		if signal[i] > h {
			break
		}
		if signal[i] < leftMin {
			leftMin = signal[i]
		}
	}
	rightMin := h
	for i := peak + 1; i < len(signal); i++ {
		if signal[i] > h {
			break
		}
		if signal[i] < rightMin {
			rightMin = signal[i]
		}
	}

	base := leftMin
	if rightMin > base {
		base = rightMin
	}
	return h - base
}
