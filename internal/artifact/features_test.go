package artifact

import (
	"math"
	"testing"

	"github.com/auraloop/mindstate/internal/dsp"
	"github.com/auraloop/mindstate/internal/headband"
)

func cleanSnapshot() dsp.Snapshot {
	var snap dsp.Snapshot
	for ch := range snap.EEG {
		s := make([]float64, headband.EEGRate)
		for i := range s {
			s[i] = 20 * math.Sin(2*math.Pi*10*float64(i)/headband.EEGRate)
		}
		snap.EEG[ch] = s
	}
	for i := 0; i < 20; i++ {
		snap.Accel = append(snap.Accel, dsp.Vec3{Z: 1})
		snap.Gyro = append(snap.Gyro, dsp.Vec3{})
	}
	return snap
}

func newTestEngine() *Engine {
	return NewEngine(headband.EEGRate, 60, 500, 5)
}

func TestCleanSignalReport(t *testing.T) {
	r := newTestEngine().Extract(cleanSnapshot(), false)
	if r.HasArtifact {
		t.Fatalf("clean signal flagged as artifact: %+v", r)
	}
	if r.Kind != KindClean {
		t.Fatalf("kind = %q, want clean", r.Kind)
	}
	if r.DataQuality != 1 {
		t.Fatalf("quality = %v, want 1", r.DataQuality)
	}
	if r.BlinkIntensity != 0 {
		t.Fatalf("blink = %v for a 20 µV signal", r.BlinkIntensity)
	}
}

func TestFeaturesStayInRange(t *testing.T) {
	snap := cleanSnapshot()
	// Drive everything hard: huge frontal spikes, fast rotation, clipping.
	for ch := range snap.EEG {
		for i := range snap.EEG[ch] {
			snap.EEG[ch][i] *= 100
		}
	}
	snap.Gyro = append(snap.Gyro, dsp.Vec3{X: 5000})
	r := newTestEngine().Extract(snap, false)
	for name, v := range map[string]float64{
		"emg":      r.EMGIntensity,
		"forehead": r.ForeheadEMG,
		"blink":    r.BlinkIntensity,
		"movement": r.MovementIntensity,
		"quality":  r.DataQuality,
	} {
		if v < 0 || v > 1 {
			t.Fatalf("%s = %v, outside [0, 1]", name, v)
		}
	}
}

func TestBlinkSpikeDetected(t *testing.T) {
	snap := cleanSnapshot()
	// 300 µV spike in the middle of the trailing quarter second on AF7.
	snap.EEG[1][headband.EEGRate-32] = 300
	r := newTestEngine().Extract(snap, false)
	if r.BlinkIntensity <= 0.5 {
		t.Fatalf("blink intensity = %v for a 300 µV frontal spike", r.BlinkIntensity)
	}
	if r.Kind != KindEyeBlink {
		t.Fatalf("kind = %q, want eye_blink", r.Kind)
	}
}

func TestMeditationSuppressesBehavioralKinds(t *testing.T) {
	snap := cleanSnapshot()
	snap.EEG[1][headband.EEGRate-32] = 300
	r := newTestEngine().Extract(snap, true)
	if r.BlinkIntensity <= 0.5 {
		t.Fatalf("blink intensity = %v, the feature itself should still fire", r.BlinkIntensity)
	}
	if r.Kind != KindClean || r.HasArtifact {
		t.Fatalf("meditation context escalated a blink: %+v", r)
	}
}

func TestClippingDegradesQuality(t *testing.T) {
	snap := cleanSnapshot()
	snap.EEG[0][10] = 600
	r := newTestEngine().Extract(snap, false)
	if r.DataQuality > 0.5 {
		t.Fatalf("quality = %v after clipping, want <= 0.5", r.DataQuality)
	}
}

func TestPoorContactIsArtifact(t *testing.T) {
	var snap dsp.Snapshot
	for ch := range snap.EEG {
		s := make([]float64, headband.EEGRate)
		for i := range s {
			s[i] = 0.5 * math.Sin(2*math.Pi*10*float64(i)/headband.EEGRate)
		}
		snap.EEG[ch] = s
	}
	r := newTestEngine().Extract(snap, false)
	if r.DataQuality > 0.7 {
		t.Fatalf("quality = %v for a sub-microvolt signal", r.DataQuality)
	}
}

func TestMovementFromGyro(t *testing.T) {
	snap := cleanSnapshot()
	snap.Gyro = append(snap.Gyro, dsp.Vec3{X: 400, Y: 300})
	r := newTestEngine().Extract(snap, false)
	if r.MovementIntensity < 0.9 {
		t.Fatalf("movement = %v for a 500 deg/s rotation", r.MovementIntensity)
	}
}

func TestMuscleIntensityFromHighFrequency(t *testing.T) {
	var snap dsp.Snapshot
	for ch := range snap.EEG {
		s := make([]float64, headband.EEGRate)
		for i := range s {
			s[i] = 40 * math.Sin(2*math.Pi*60*float64(i)/headband.EEGRate)
		}
		snap.EEG[ch] = s
	}
	r := NewEngine(headband.EEGRate, 50, 500, 5).Extract(snap, false)
	if r.EMGIntensity < 0.9 {
		t.Fatalf("emg intensity = %v for a pure 60 Hz tone", r.EMGIntensity)
	}
}
