package motion

import (
	"math"
	"testing"

	"github.com/auraloop/mindstate/internal/dsp"
)

func TestMovingOverridesEverything(t *testing.T) {
	p := NewPostureEngine(10)
	g := dsp.Vec3{X: 25, Y: 25, Z: 25}
	a := dsp.Vec3{Z: 1}
	got := p.Update(&g, &a, 0)
	if got.Status != PostureMoving {
		t.Fatalf("status = %q with a fast rotation, want Moving", got.Status)
	}
}

func TestUprightIsGood(t *testing.T) {
	p := NewPostureEngine(10)
	g := dsp.Vec3{}
	a := dsp.Vec3{Z: 1}
	got := p.Update(&g, &a, 0)
	if got.Status != PostureGood {
		t.Fatalf("status = %q for an upright head, want Good", got.Status)
	}
	if math.Abs(got.Pitch) > 1 || math.Abs(got.Roll) > 1 {
		t.Fatalf("pitch/roll = %v/%v for pure gravity on z", got.Pitch, got.Roll)
	}
}

func TestForwardTiltAfterSmoothing(t *testing.T) {
	p := NewPostureEngine(0)
	g := dsp.Vec3{}
	// 30° forward: gravity rotates onto -x.
	a := dsp.Vec3{X: -0.5, Z: 0.866}
	var got Posture
	for i := 0; i < 20; i++ {
		got = p.Update(&g, &a, float64(i))
	}
	if got.Status != PostureForward {
		t.Fatalf("status = %q for a sustained 30° forward tilt, want Forward tilt", got.Status)
	}
	if math.Abs(got.Pitch-30) > 2 {
		t.Fatalf("pitch = %v, want about 30", got.Pitch)
	}
}

func TestSideTiltAfterSmoothing(t *testing.T) {
	p := NewPostureEngine(0)
	g := dsp.Vec3{}
	a := dsp.Vec3{Y: 0.342, Z: 0.94} // 20° roll
	var got Posture
	for i := 0; i < 20; i++ {
		got = p.Update(&g, &a, float64(i))
	}
	if got.Status != PostureSide {
		t.Fatalf("status = %q for a sustained 20° side tilt, want Side tilt", got.Status)
	}
}

func TestUnstableOnHighVariance(t *testing.T) {
	p := NewPostureEngine(0)
	g := dsp.Vec3{}
	var got Posture
	for i := 0; i < 20; i++ {
		// Alternate between upright and a strong forward tilt.
		a := dsp.Vec3{Z: 1}
		if i%2 == 0 {
			a = dsp.Vec3{X: -0.7, Z: 0.714}
		}
		got = p.Update(&g, &a, float64(i))
	}
	if got.Status != PostureUnstable {
		t.Fatalf("status = %q for an oscillating orientation, want Unstable", got.Status)
	}
}

func TestWeakGravityIsUnstable(t *testing.T) {
	p := NewPostureEngine(0)
	a := dsp.Vec3{Z: 0.2}
	got := p.Update(nil, &a, 0)
	if got.Status != PostureUnstable {
		t.Fatalf("status = %q for a 0.2 g vector, want Unstable", got.Status)
	}
}

func TestGyroOnlyFallback(t *testing.T) {
	p := NewPostureEngine(0)
	g := dsp.Vec3{X: 5}
	got := p.Update(&g, nil, 0)
	if got.Status != PostureStill {
		t.Fatalf("status = %q with a quiet gyro and no accelerometer, want Still", got.Status)
	}
}

func TestNoSensorsIsUnknown(t *testing.T) {
	p := NewPostureEngine(0)
	got := p.Update(nil, nil, 0)
	if got.Status != PostureUnknown {
		t.Fatalf("status = %q with no sensors, want Unknown", got.Status)
	}
}

func TestDwellLockHoldsStatus(t *testing.T) {
	p := NewPostureEngine(10)
	g := dsp.Vec3{}
	upright := dsp.Vec3{Z: 1}
	tilted := dsp.Vec3{X: -0.5, Z: 0.866}

	var got Posture
	for i := 0; i < 20; i++ {
		got = p.Update(&g, &upright, float64(i))
	}
	if got.Status != PostureGood {
		t.Fatalf("did not settle on Good: %q", got.Status)
	}
	// The tilt is real immediately, but the reported status holds until the
	// dwell expires.
	got = p.Update(&g, &tilted, 20)
	if got.Status != PostureGood {
		t.Fatalf("status = %q one reading after the tilt, want held Good", got.Status)
	}
	// Keep tilting until the old upright readings leave the window entirely.
	for i := 21; i < 55; i++ {
		got = p.Update(&g, &tilted, float64(i))
	}
	if got.Status != PostureForward {
		t.Fatalf("status = %q after the dwell expired, want Forward tilt", got.Status)
	}
}
