package dsp

import (
	"testing"

	"github.com/auraloop/mindstate/internal/headband"
)

func TestChannelBufferFillAndSnapshot(t *testing.T) {
	b := NewChannelBuffer()
	if b.FullBiosignal() {
		t.Fatalf("fresh buffer reported full")
	}

	rows := make([][headband.EEGChannels]float64, headband.EEGRate)
	for i := range rows {
		for ch := 0; ch < headband.EEGChannels; ch++ {
			rows[i][ch] = float64(i)
		}
	}
	b.Push(headband.Sample{Kind: headband.KindEEG, EEG: rows})
	if !b.FullBiosignal() {
		t.Fatalf("buffer not full after one second of samples")
	}

	b.Push(headband.Sample{Kind: headband.KindAccel, Vec: [3]float64{0, 0, 1}})
	b.Push(headband.Sample{Kind: headband.KindGyro, Vec: [3]float64{5, 0, 0}})

	snap := b.Snapshot()
	for ch := range snap.EEG {
		if len(snap.EEG[ch]) != headband.EEGRate {
			t.Fatalf("channel %d snapshot length = %d", ch, len(snap.EEG[ch]))
		}
		if snap.EEG[ch][0] != 0 || snap.EEG[ch][headband.EEGRate-1] != float64(headband.EEGRate-1) {
			t.Fatalf("channel %d snapshot out of order", ch)
		}
	}
	if len(snap.Accel) != 1 || snap.Accel[0].Z != 1 {
		t.Fatalf("accel snapshot = %+v", snap.Accel)
	}
	if len(snap.Gyro) != 1 || snap.Gyro[0].X != 5 {
		t.Fatalf("gyro snapshot = %+v", snap.Gyro)
	}
}

func TestChannelBufferIgnoresPulse(t *testing.T) {
	b := NewChannelBuffer()
	b.Push(headband.Sample{Kind: headband.KindPPG, PPG: [3]float64{1, 2, 3}})
	snap := b.Snapshot()
	if len(snap.EEG[0]) != 0 || len(snap.Accel) != 0 {
		t.Fatalf("pulse sample leaked into the buffer")
	}
}

func TestChannelBufferReset(t *testing.T) {
	b := NewChannelBuffer()
	rows := make([][headband.EEGChannels]float64, headband.EEGRate)
	b.Push(headband.Sample{Kind: headband.KindEEG, EEG: rows})
	b.Push(headband.Sample{Kind: headband.KindAccel, Vec: [3]float64{1, 1, 1}})
	b.Reset()
	if b.FullBiosignal() {
		t.Fatalf("buffer full after reset")
	}
	snap := b.Snapshot()
	if len(snap.EEG[0]) != 0 || len(snap.Accel) != 0 {
		t.Fatalf("reset left data behind: %+v", snap)
	}
}
