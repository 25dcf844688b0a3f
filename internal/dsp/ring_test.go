package dsp

import "testing"

func TestRingFloatWrap(t *testing.T) {
	r := NewRingFloat(4)
	if r.Full() {
		t.Fatalf("empty ring reported full")
	}
	for i := 0; i < 6; i++ {
		r.Push(float64(i))
	}
	if !r.Full() {
		t.Fatalf("ring not full after overfill")
	}
	got := r.Slice()
	want := []float64{2, 3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("slice length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("slice[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRingFloatSliceIsCopy(t *testing.T) {
	r := NewRingFloat(2)
	r.Push(1)
	s := r.Slice()
	r.Push(99)
	if s[0] != 1 {
		t.Fatalf("slice aliased ring storage")
	}
}

func TestRingFloatReset(t *testing.T) {
	r := NewRingFloat(3)
	r.Push(1)
	r.Push(2)
	r.Reset()
	if r.Len() != 0 {
		t.Fatalf("len after reset = %d, want 0", r.Len())
	}
	if got := r.Slice(); len(got) != 0 {
		t.Fatalf("slice after reset has %d entries", len(got))
	}
}

func TestRingVec3Order(t *testing.T) {
	r := NewRingVec3(2)
	r.Push(Vec3{1, 0, 0})
	r.Push(Vec3{2, 0, 0})
	r.Push(Vec3{3, 0, 0})
	got := r.Slice()
	if len(got) != 2 || got[0].X != 2 || got[1].X != 3 {
		t.Fatalf("slice = %+v, want oldest 2 then 3", got)
	}
}
