package motion

import (
	"math"
	"testing"

	"github.com/auraloop/mindstate/internal/dsp"
	"github.com/auraloop/mindstate/internal/headband"
)

func newTestDetector() *TalkingDetector {
	return NewTalkingDetector(0.6, 0.75, 0.5)
}

// feedGyro drives the detector with a pitch-axis oscillation at freq for
// seconds of simulated time and returns the last result.
func feedGyro(d *TalkingDetector, freq, amp, seconds float64, meditation bool) TalkingResult {
	var last TalkingResult
	n := int(seconds * headband.MotionRate)
	for i := 0; i < n; i++ {
		t := float64(i) / headband.MotionRate
		g := dsp.Vec3{Y: amp * math.Sin(2*math.Pi*freq*t)}
		a := dsp.Vec3{Z: 1}
		last = d.Update(&g, &a, t, meditation)
	}
	return last
}

func TestInsufficientDataReportsNothing(t *testing.T) {
	d := newTestDetector()
	g := dsp.Vec3{Y: 10}
	r := d.Update(&g, nil, 0, false)
	if r.Talking || r.Reason != ReasonInsufficient {
		t.Fatalf("result = %+v with one sample", r)
	}
}

func TestSpeechRhythmDetected(t *testing.T) {
	d := newTestDetector()
	// 3.5 Hz jaw oscillation at speech-typical amplitude.
	r := feedGyro(d, 3.5, 8, 5, false)
	if !r.Talking {
		t.Fatalf("result = %+v, want talking for a 3.5 Hz rhythm", r)
	}
	if r.Confidence <= 0.6 {
		t.Fatalf("confidence = %v, want above threshold", r.Confidence)
	}
	if r.Duration <= 0 {
		t.Fatalf("duration = %v while talking", r.Duration)
	}
}

func TestStillHeadIsNotTalking(t *testing.T) {
	d := newTestDetector()
	var last TalkingResult
	for i := 0; i < headband.MotionRate*5; i++ {
		t := float64(i) / headband.MotionRate
		g := dsp.Vec3{Y: 0.1 * math.Sin(2*math.Pi*0.3*t)}
		a := dsp.Vec3{Z: 1}
		last = d.Update(&g, &a, t, false)
	}
	if last.Talking {
		t.Fatalf("result = %+v for a near-still head", last)
	}
}

func TestBreathingDiscountedDuringMeditation(t *testing.T) {
	conv := newTestDetector()
	med := newTestDetector()
	// Slow 0.3 Hz rocking with enough amplitude that raw variance alone
	// would trip the conversational threshold.
	rConv := feedGyro(conv, 0.3, 12, 6, false)
	rMed := feedGyro(med, 0.3, 12, 6, true)
	if rMed.Talking {
		t.Fatalf("meditation result = %+v, breathing mistaken for speech", rMed)
	}
	if rMed.Confidence >= rConv.Confidence {
		t.Fatalf("meditation confidence %v not discounted below conversational %v",
			rMed.Confidence, rConv.Confidence)
	}
}

func TestDwellLockLimitsFlapping(t *testing.T) {
	d := newTestDetector()
	feedGyro(d, 3.5, 8, 5, false)
	if !d.talking {
		t.Fatalf("did not latch talking")
	}
	// Go silent; the speech content takes up to the full 3 second buffer to
	// flush, then the majority flips and the dwell lock admits one change.
	changes := 0
	prev := true
	for i := 0; i < headband.MotionRate*4; i++ {
		ts := 5 + float64(i)/headband.MotionRate
		g := dsp.Vec3{}
		r := d.Update(&g, nil, ts, false)
		if r.Talking != prev {
			changes++
			prev = r.Talking
		}
	}
	if changes > 2 {
		t.Fatalf("%d state changes in 4s of silence with a 0.5s dwell", changes)
	}
	if prev {
		t.Fatalf("still reporting talking after 4s of silence")
	}
}

func TestCorrectionFactor(t *testing.T) {
	d := newTestDetector()
	if f := d.CorrectionFactor(); f != 1 {
		t.Fatalf("silent correction factor = %v, want 1", f)
	}
	feedGyro(d, 3.5, 8, 5, false)
	if f := d.CorrectionFactor(); f >= 1 || f < 0.2 {
		t.Fatalf("talking correction factor = %v, want in [0.2, 1)", f)
	}
}

func TestResetClearsState(t *testing.T) {
	d := newTestDetector()
	feedGyro(d, 3.5, 8, 5, false)
	d.Reset()
	g := dsp.Vec3{Y: 10}
	r := d.Update(&g, nil, 100, false)
	if r.Talking || r.Reason != ReasonInsufficient {
		t.Fatalf("result = %+v after reset, want empty detector", r)
	}
}
