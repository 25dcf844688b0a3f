// Package session owns one processing epoch: it routes decoded samples into
// the per-stream engines and assembles the once-per-second composite record
// that subscribers receive. A reconnect starts a fresh epoch with a new
// identifier and every engine reset, since electrode placement after
// re-wearing invalidates calibration and history.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/auraloop/mindstate/internal/artifact"
	"github.com/auraloop/mindstate/internal/config"
	"github.com/auraloop/mindstate/internal/dsp"
	"github.com/auraloop/mindstate/internal/headband"
	"github.com/auraloop/mindstate/internal/hrv"
	"github.com/auraloop/mindstate/internal/monitoring"
	"github.com/auraloop/mindstate/internal/motion"
	"github.com/auraloop/mindstate/internal/separation"
	"github.com/auraloop/mindstate/internal/state"
)

// Features mirrors the artifact engine's continuous intensities.
type Features struct {
	Muscle   float64 `json:"muscle"`
	Forehead float64 `json:"forehead"`
	Blink    float64 `json:"blink"`
	Movement float64 `json:"movement"`
	Quality  float64 `json:"quality"`
}

// SignalQuality summarizes the smoothing window.
type SignalQuality struct {
	Confidence    float64 `json:"confidence"` // percent
	Stable        bool    `json:"stable"`
	ArtifactRatio float64 `json:"artifact_ratio"`
}

// Calibration reports source-separation readiness.
type Calibration struct {
	Fitted   bool    `json:"fitted"`
	Progress float64 `json:"progress"`
}

// TalkingInfo is the talking detector's contribution to the record.
type TalkingInfo struct {
	Active     bool    `json:"active"`
	Confidence float64 `json:"confidence"`
	Duration   float64 `json:"duration"`
}

// Record is the composite output of one processing tick.
type Record struct {
	Type         string         `json:"type"`
	Timestamp    float64        `json:"timestamp"`
	SessionID    string         `json:"session_id"`
	BandPowers   dsp.BandPowers `json:"band_powers"`
	BrainState   state.Label    `json:"brain_state"`
	HasArtifact  bool           `json:"has_artifact"`
	ArtifactKind string         `json:"artifact_kind"`
	BadChannels  []int          `json:"bad_channels"`
	Features     Features       `json:"features"`
	Signal       SignalQuality  `json:"signal_quality"`
	Calibration  Calibration    `json:"calibration"`
	HeartRate    float64        `json:"heart_rate"`
	RMSSD        float64        `json:"hrv_rmssd"`
	SDNN         float64        `json:"hrv_sdnn"`
	HRVValid     bool           `json:"hrv_valid"`
	HRVCached    bool           `json:"hrv_cached"`
	HRVPartial   bool           `json:"hrv_partial"`
	Talking      TalkingInfo    `json:"talking"`
	Posture      motion.Posture `json:"posture"`
}

// Session wires the engines together for one epoch.
type Session struct {
	mu sync.Mutex

	id         string
	meditation bool

	buffer    *dsp.ChannelBuffer
	spectral  *dsp.SpectralEngine
	artifacts *artifact.Engine
	separator *separation.Separator
	smoother  *state.Smoother
	heart     *hrv.Engine
	talking   *motion.TalkingDetector
	posture   *motion.PostureEngine

	lastAccel   *dsp.Vec3
	lastGyro    *dsp.Vec3
	lastTalking motion.TalkingResult
	lastStamp   float64
}

// New builds a session with engines tuned from cfg.
func New(cfg *config.TuningConfig) *Session {
	return &Session{
		id:     uuid.NewString(),
		buffer: dsp.NewChannelBuffer(),
		spectral: dsp.NewSpectralEngine(
			headband.EEGRate,
			cfg.GetLineFrequencyHz(),
			cfg.GetBadChannelMicrovolts(),
		),
		artifacts: artifact.NewEngine(
			headband.EEGRate,
			cfg.GetLineFrequencyHz(),
			cfg.GetClippingMicrovolts(),
			cfg.GetPoorContactMicrovolts(),
		),
		separator: separation.NewSeparator(
			headband.EEGRate,
			cfg.GetCalibrationSeconds(),
			cfg.GetComponentKurtosisLimit(),
			cfg.GetComponentVarianceRatio(),
		),
		smoother: state.NewSmoother(cfg.GetSmootherWindowTicks(), cfg.GetMinDwell()),
		heart:    hrv.NewEngine(),
		talking: motion.NewTalkingDetector(
			cfg.GetTalkingConfidence(),
			cfg.GetTalkingConfidenceMeditation(),
			cfg.GetTalkingMinDwell().Seconds(),
		),
		posture: motion.NewPostureEngine(cfg.GetPostureMinDwell().Seconds()),
	}
}

// ID returns the current epoch identifier.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// SetMeditation switches the interpretation context.
func (s *Session) SetMeditation(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meditation = on
}

// Meditation reports the current interpretation context.
func (s *Session) Meditation() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meditation
}

// Reset starts a new epoch: fresh identifier, every engine cleared. Wired to
// the link's reconnect callback.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.id
	s.id = uuid.NewString()
	s.buffer.Reset()
	s.separator.Reset()
	s.smoother.Reset()
	s.heart.Reset()
	s.talking.Reset()
	s.posture.Reset()
	s.lastAccel = nil
	s.lastGyro = nil
	s.lastTalking = motion.TalkingResult{}
	s.lastStamp = 0
	monitoring.Logf("session: epoch %s reset, now %s", old, s.id)
}

// HandleSample routes one decoded sample. Intended as the link's SampleSink.
func (s *Session) HandleSample(smp headband.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if smp.Timestamp > s.lastStamp {
		s.lastStamp = smp.Timestamp
	}
	switch smp.Kind {
	case headband.KindEEG:
		s.buffer.Push(smp)
	case headband.KindPPG:
		s.heart.Push(smp)
	case headband.KindAccel:
		v := dsp.Vec3{X: smp.Vec[0], Y: smp.Vec[1], Z: smp.Vec[2]}
		s.buffer.Push(smp)
		s.lastAccel = &v
		s.lastTalking = s.talking.Update(nil, &v, smp.Timestamp, s.meditation)
	case headband.KindGyro:
		v := dsp.Vec3{X: smp.Vec[0], Y: smp.Vec[1], Z: smp.Vec[2]}
		s.buffer.Push(smp)
		s.lastGyro = &v
		s.lastTalking = s.talking.Update(&v, nil, smp.Timestamp, s.meditation)
	}
}

// Tick runs one pass of the processing pipeline. It returns false until a
// full second of biosignal is buffered.
func (s *Session) Tick(now time.Time) (*Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.buffer.FullBiosignal() {
		return nil, false
	}
	snap := s.buffer.Snapshot()

	s.separator.Observe(snap.EEG)
	cleaned := s.separator.Clean(snap.EEG)

	// Contact quality is judged on the raw window; source separation can
	// shrink a railed channel enough to hide it from the amplitude check.
	bad := s.spectral.BadChannels(snap.EEG)
	powers := s.spectral.AveragedBandPowers(cleaned, bad)
	report := s.artifacts.Extract(snap, s.meditation)

	var badList []int
	for ch, b := range bad {
		if b {
			badList = append(badList, ch)
		}
	}

	quality := report.DataQuality * 100
	hasArtifact := report.HasArtifact || len(badList) > 0

	// Per-tick label: meditation always classifies from band powers; the
	// conversational path demands a clean, confident window first.
	var label state.Label
	switch {
	case s.meditation:
		label = state.Classify(powers, true)
	case !hasArtifact && quality > 50:
		label = state.Classify(powers, false)
	case hasArtifact:
		label = state.LabelArtifact
	default:
		label = state.LabelLowConfidence
	}

	s.smoother.Add(powers, quality, label, hasArtifact)
	smoothedPowers, ok := s.smoother.SmoothedBands()
	if !ok {
		smoothedPowers = powers
	}
	smoothedLabel := s.smoother.SmoothedLabel()
	artifactRatio := s.smoother.ArtifactRatio()

	heart := s.heart.Metrics()

	stamp := s.lastStamp
	if stamp == 0 {
		stamp = float64(now.UnixNano()) / 1e9
	}
	posture := s.posture.Update(s.lastGyro, s.lastAccel, stamp)

	rec := &Record{
		Type:         "tick",
		Timestamp:    stamp,
		SessionID:    s.id,
		BandPowers:   smoothedPowers,
		BrainState:   smoothedLabel,
		HasArtifact:  artifactRatio > 0.5,
		ArtifactKind: report.Kind,
		BadChannels:  badList,
		Features: Features{
			Muscle:   report.EMGIntensity,
			Forehead: report.ForeheadEMG,
			Blink:    report.BlinkIntensity,
			Movement: report.MovementIntensity,
			Quality:  report.DataQuality,
		},
		Signal: SignalQuality{
			Confidence:    s.smoother.SmoothedQuality(),
			Stable:        s.smoother.Stable(),
			ArtifactRatio: artifactRatio,
		},
		Calibration: Calibration{
			Fitted:   s.separator.State() == separation.StateFitted,
			Progress: s.separator.Progress(),
		},
		HeartRate:  heart.HeartRate,
		RMSSD:      heart.RMSSD,
		SDNN:       heart.SDNN,
		HRVValid:   heart.Valid,
		HRVCached:  heart.Cached,
		HRVPartial: heart.Partial,
		Talking: TalkingInfo{
			Active:     s.lastTalking.Talking,
			Confidence: s.lastTalking.Confidence,
			Duration:   s.lastTalking.Duration,
		},
		Posture: posture,
	}
	return rec, true
}
