// Package separation implements blind source separation for the biosignal
// channels. A FastICA model is fitted once from an initial calibration
// window; afterwards each processing window is decomposed, components that
// look like blink or muscle activity are zeroed, and the channels are
// reconstructed from what remains.
package separation

import (
	"errors"
	"math"
	"math/rand"
	"sort"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/auraloop/mindstate/internal/headband"
	"github.com/auraloop/mindstate/internal/monitoring"
)

// State tracks the separator's calibration lifecycle.
type State int

const (
	StateUncalibrated State = iota
	StateFitting
	StateFitted
)

func (s State) String() string {
	switch s {
	case StateUncalibrated:
		return "uncalibrated"
	case StateFitting:
		return "fitting"
	case StateFitted:
		return "fitted"
	}
	return "unknown"
}

const (
	numComponents = headband.EEGChannels - 1
	maxIterations = 200
	tolerance     = 1e-4
)

var errFitDegenerate = errors.New("separation: calibration data is degenerate")

// Separator accumulates calibration data, fits the unmixing model, and
// cleans subsequent windows. Safe for use from a single goroutine per
// method set; the mutex guards state transitions against concurrent readers.
type Separator struct {
	mu     sync.Mutex
	state  State
	target int // calibration samples per channel

	calib [headband.EEGChannels][]float64

	kurtosisLimit float64 // excess kurtosis above this marks a blink component
	varianceRatio float64 // variance above ratio × median of others marks muscle

	mean   [headband.EEGChannels]float64
	unmix  *mat.Dense // numComponents × channels, sources = unmix · centered
	mixing *mat.Dense // channels × numComponents, reconstruction
}

// NewSeparator builds a separator that calibrates over calibrationSeconds of
// data at the given rate.
func NewSeparator(rate float64, calibrationSeconds int, kurtosisLimit, varianceRatio float64) *Separator {
	return &Separator{
		target:        int(rate) * calibrationSeconds,
		kurtosisLimit: kurtosisLimit,
		varianceRatio: varianceRatio,
	}
}

// State returns the current lifecycle state.
func (s *Separator) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Progress reports calibration completion in percent. Once fitted it stays
// at 100.
func (s *Separator) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateFitted {
		return 100
	}
	if s.target == 0 {
		return 0
	}
	p := float64(len(s.calib[0])) / float64(s.target) * 100
	if p > 100 {
		p = 100
	}
	return p
}

// Reset discards the model and all calibration data. Called on reconnect so
// a new placement of the device gets a fresh fit.
func (s *Separator) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateUncalibrated
	s.unmix = nil
	s.mixing = nil
	for ch := range s.calib {
		s.calib[ch] = nil
	}
}

// Observe feeds one window of channel data into the calibration buffer. When
// enough data has accumulated the model is fitted in place; a failed fit
// clears the buffer and returns the separator to the uncalibrated state so
// calibration restarts from scratch.
func (s *Separator) Observe(eeg [headband.EEGChannels][]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateFitted {
		return
	}
	s.state = StateFitting
	for ch := range eeg {
		s.calib[ch] = append(s.calib[ch], eeg[ch]...)
	}
	if len(s.calib[0]) < s.target {
		return
	}
	if err := s.fit(); err != nil {
		monitoring.Logf("separation: fit failed, restarting calibration: %v", err)
		s.state = StateUncalibrated
		for ch := range s.calib {
			s.calib[ch] = nil
		}
		return
	}
	s.state = StateFitted
	for ch := range s.calib {
		s.calib[ch] = nil
	}
	monitoring.Logf("separation: model fitted from %d seconds of calibration data", s.target/headband.EEGRate)
}

// fit runs whitening and the FastICA fixed-point iteration over the
// calibration buffer. Caller holds the lock.
func (s *Separator) fit() error {
	n := s.target
	const ch = headband.EEGChannels

	// Center.
	centered := mat.NewDense(ch, n, nil)
	for c := 0; c < ch; c++ {
		var mean float64
		for _, v := range s.calib[c][:n] {
			mean += v
		}
		mean /= float64(n)
		s.mean[c] = mean
		for i := 0; i < n; i++ {
			centered.Set(c, i, s.calib[c][i]-mean)
		}
	}

	// Whiten via the covariance eigendecomposition, keeping the strongest
	// components.
	cov := mat.NewSymDense(ch, nil)
	for a := 0; a < ch; a++ {
		for b := a; b < ch; b++ {
			var sum float64
			for i := 0; i < n; i++ {
				sum += centered.At(a, i) * centered.At(b, i)
			}
			cov.SetSym(a, b, sum/float64(n))
		}
	}
	var eig mat.EigenSym
	if !eig.Factorize(cov, true) {
		return errFitDegenerate
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	// Eigenvalues come back ascending; take the top numComponents.
	type pair struct {
		val float64
		idx int
	}
	pairs := make([]pair, ch)
	for i := range vals {
		pairs[i] = pair{vals[i], i}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].val > pairs[j].val })

	whiten := mat.NewDense(numComponents, ch, nil)   // D^-1/2 Eᵀ
	dewhiten := mat.NewDense(ch, numComponents, nil) // E D^1/2
	for k := 0; k < numComponents; k++ {
		if pairs[k].val < 1e-12 {
			return errFitDegenerate
		}
		scale := math.Sqrt(pairs[k].val)
		for c := 0; c < ch; c++ {
			v := vecs.At(c, pairs[k].idx)
			whiten.Set(k, c, v/scale)
			dewhiten.Set(c, k, v*scale)
		}
	}

	z := mat.NewDense(numComponents, n, nil)
	z.Mul(whiten, centered)

	w, err := fastICA(z, n)
	if err != nil {
		return err
	}

	s.unmix = mat.NewDense(numComponents, ch, nil)
	s.unmix.Mul(w, whiten)
	// W is orthogonal after symmetric decorrelation, so its transpose
	// inverts it and reconstruction is the dewhitening times Wᵀ.
	s.mixing = mat.NewDense(ch, numComponents, nil)
	s.mixing.Mul(dewhiten, w.T())
	return nil
}

// fastICA runs the tanh fixed-point iteration with symmetric decorrelation
// over whitened data z (numComponents × n). The seed is fixed so repeated
// fits over the same data yield the same model.
func fastICA(z *mat.Dense, n int) (*mat.Dense, error) {
	rng := rand.New(rand.NewSource(97))
	w := mat.NewDense(numComponents, numComponents, nil)
	for i := 0; i < numComponents; i++ {
		for j := 0; j < numComponents; j++ {
			w.Set(i, j, rng.NormFloat64())
		}
	}
	if err := symmetricDecorrelate(w); err != nil {
		return nil, err
	}

	wNext := mat.NewDense(numComponents, numComponents, nil)
	proj := mat.NewDense(numComponents, n, nil)
	for iter := 0; iter < maxIterations; iter++ {
		proj.Mul(w, z)

		// wNext = E[g(wz) zᵀ] − diag(E[g'(wz)]) w, with g = tanh.
		for i := 0; i < numComponents; i++ {
			var gPrimeMean float64
			row := make([]float64, numComponents)
			for t := 0; t < n; t++ {
				g := math.Tanh(proj.At(i, t))
				gPrimeMean += 1 - g*g
				for j := 0; j < numComponents; j++ {
					row[j] += g * z.At(j, t)
				}
			}
			gPrimeMean /= float64(n)
			for j := 0; j < numComponents; j++ {
				wNext.Set(i, j, row[j]/float64(n)-gPrimeMean*w.At(i, j))
			}
		}
		if err := symmetricDecorrelate(wNext); err != nil {
			return nil, err
		}

		// Convergence when each updated row is parallel to its predecessor.
		var change float64
		for i := 0; i < numComponents; i++ {
			var dot float64
			for j := 0; j < numComponents; j++ {
				dot += wNext.At(i, j) * w.At(i, j)
			}
			if d := math.Abs(math.Abs(dot) - 1); d > change {
				change = d
			}
		}
		w.Copy(wNext)
		if change < tolerance {
			return w, nil
		}
	}
	// Non-convergence after maxIterations still yields a usable orthogonal
	// basis; treat it as success the way reference implementations do.
	return w, nil
}

// symmetricDecorrelate replaces w with (w wᵀ)^(-1/2) w.
func symmetricDecorrelate(w *mat.Dense) error {
	wwT := mat.NewSymDense(numComponents, nil)
	for i := 0; i < numComponents; i++ {
		for j := i; j < numComponents; j++ {
			var sum float64
			for k := 0; k < numComponents; k++ {
				sum += w.At(i, k) * w.At(j, k)
			}
			wwT.SetSym(i, j, sum)
		}
	}
	var eig mat.EigenSym
	if !eig.Factorize(wwT, true) {
		return errFitDegenerate
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	invSqrt := mat.NewDense(numComponents, numComponents, nil)
	for i := 0; i < numComponents; i++ {
		for j := 0; j < numComponents; j++ {
			var sum float64
			for k := 0; k < numComponents; k++ {
				if vals[k] < 1e-12 {
					return errFitDegenerate
				}
				sum += vecs.At(i, k) * vecs.At(j, k) / math.Sqrt(vals[k])
			}
			invSqrt.Set(i, j, sum)
		}
	}
	var out mat.Dense
	out.Mul(invSqrt, w)
	w.Copy(&out)
	return nil
}

// Clean decomposes a window into sources, zeroes components whose statistics
// look like blink or muscle activity, and reconstructs the channels. Before
// the model is fitted the window passes through unchanged.
func (s *Separator) Clean(eeg [headband.EEGChannels][]float64) [headband.EEGChannels][]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateFitted {
		return eeg
	}
	n := len(eeg[0])
	for ch := range eeg {
		if len(eeg[ch]) != n || n == 0 {
			return eeg
		}
	}

	centered := mat.NewDense(headband.EEGChannels, n, nil)
	for c := range eeg {
		for i, v := range eeg[c] {
			centered.Set(c, i, v-s.mean[c])
		}
	}
	sources := mat.NewDense(numComponents, n, nil)
	sources.Mul(s.unmix, centered)

	excluded := s.excludedComponents(sources, n)
	for _, k := range excluded {
		for i := 0; i < n; i++ {
			sources.Set(k, i, 0)
		}
	}

	recon := mat.NewDense(headband.EEGChannels, n, nil)
	recon.Mul(s.mixing, sources)

	var out [headband.EEGChannels][]float64
	for c := range out {
		out[c] = make([]float64, n)
		for i := 0; i < n; i++ {
			out[c][i] = recon.At(c, i) + s.mean[c]
		}
	}
	return out
}

// excludedComponents flags components by excess kurtosis (blinks are spiky)
// or by variance dwarfing the median of the other components (muscle bursts).
// A strong common mode blink can trip the kurtosis limit on every component
// at once; at least one component is always retained so reconstruction keeps
// a signal basis instead of flatlining or passing the artifact through.
func (s *Separator) excludedComponents(sources *mat.Dense, n int) []int {
	var variances [numComponents]float64
	var kurtoses [numComponents]float64
	for k := 0; k < numComponents; k++ {
		var mean float64
		for i := 0; i < n; i++ {
			mean += sources.At(k, i)
		}
		mean /= float64(n)
		var m2, m4 float64
		for i := 0; i < n; i++ {
			d := sources.At(k, i) - mean
			m2 += d * d
			m4 += d * d * d * d
		}
		m2 /= float64(n)
		m4 /= float64(n)
		variances[k] = m2
		if m2 > 0 {
			kurtoses[k] = m4/(m2*m2) - 3
		}
	}

	var excluded []int
	for k := 0; k < numComponents; k++ {
		if kurtoses[k] > s.kurtosisLimit {
			excluded = append(excluded, k)
			continue
		}
		others := make([]float64, 0, numComponents-1)
		for j := 0; j < numComponents; j++ {
			if j != k {
				others = append(others, variances[j])
			}
		}
		if med := median(others); med > 0 && variances[k] > s.varianceRatio*med {
			excluded = append(excluded, k)
		}
	}
	if len(excluded) == numComponents {
		keep := 0
		for k := 1; k < numComponents; k++ {
			if kurtoses[k] < kurtoses[keep] {
				keep = k
			}
		}
		trimmed := excluded[:0]
		for _, k := range excluded {
			if k != keep {
				trimmed = append(trimmed, k)
			}
		}
		excluded = trimmed
	}
	return excluded
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
