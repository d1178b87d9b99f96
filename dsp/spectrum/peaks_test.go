package spectrum

import (
	"math"
	"testing"
)

// bump writes a small triangular peak of the given height centered at bin.
func bump(mags []float64, bin int, height float64) {
	mags[bin-1] += height * 0.5
	mags[bin] += height
	mags[bin+1] += height * 0.5
}

func TestPickPeaksFindsStrongestFirst(t *testing.T) {
	mags := make([]float64, 256)
	bump(mags, 40, 1.0)
	bump(mags, 80, 0.6)
	bump(mags, 120, 0.3)

	peaks := PickPeaks(nil, mags, PeakOptions{
		LowBin: 1, HighBin: 254,
		MinHeightRatio:     0.15,
		MinProminenceRatio: 0.075,
		MinSpacingBins:     2,
		MaxPeaks:           8,
	})

	if len(peaks) != 3 {
		t.Fatalf("got %d peaks, want 3", len(peaks))
	}
	for i, wantBin := range []float64{40, 80, 120} {
		if math.Abs(peaks[i].Bin-wantBin) > 0.01 {
			t.Errorf("peak %d at bin %v, want %v", i, peaks[i].Bin, wantBin)
		}
	}
}

func TestPickPeaksHeightThreshold(t *testing.T) {
	mags := make([]float64, 128)
	bump(mags, 30, 1.0)
	bump(mags, 60, 0.1) // below 15% of the in-band max

	peaks := PickPeaks(nil, mags, PeakOptions{
		LowBin: 1, HighBin: 126,
		MinHeightRatio: 0.15,
		MaxPeaks:       8,
	})

	if len(peaks) != 1 {
		t.Fatalf("got %d peaks, want 1 (weak peak must be rejected)", len(peaks))
	}
}

func TestPickPeaksBandLimits(t *testing.T) {
	mags := make([]float64, 128)
	bump(mags, 10, 1.0)
	bump(mags, 100, 0.9)

	peaks := PickPeaks(nil, mags, PeakOptions{
		LowBin: 20, HighBin: 126,
		MinHeightRatio: 0.15,
		MaxPeaks:       8,
	})

	if len(peaks) != 1 || math.Abs(peaks[0].Bin-100) > 0.01 {
		t.Fatalf("peaks = %+v, want single peak at bin 100", peaks)
	}
}

func TestPickPeaksSpacing(t *testing.T) {
	mags := make([]float64, 128)
	bump(mags, 50, 1.0)
	bump(mags, 53, 0.8)

	peaks := PickPeaks(nil, mags, PeakOptions{
		LowBin: 1, HighBin: 126,
		MinHeightRatio: 0.15,
		MinSpacingBins: 5,
		MaxPeaks:       8,
	})

	if len(peaks) != 1 {
		t.Fatalf("got %d peaks, want 1 (close weaker peak must be dropped)", len(peaks))
	}
	if math.Abs(peaks[0].Bin-50) > 1 {
		t.Errorf("surviving peak at %v, want ~50", peaks[0].Bin)
	}
}

func TestPickPeaksParabolicRefinement(t *testing.T) {
	// An asymmetric peak: true maximum sits between bins 64 and 65.
	mags := make([]float64, 128)
	mags[63] = 0.5
	mags[64] = 1.0
	mags[65] = 0.9
	mags[66] = 0.2

	peaks := PickPeaks(nil, mags, PeakOptions{
		LowBin: 1, HighBin: 126,
		MinHeightRatio: 0.15,
		MaxPeaks:       1,
	})

	if len(peaks) != 1 {
		t.Fatalf("got %d peaks, want 1", len(peaks))
	}
	if peaks[0].Bin <= 64 || peaks[0].Bin >= 65 {
		t.Errorf("refined bin = %v, want in (64, 65)", peaks[0].Bin)
	}
}

func TestPickPeaksEmptySpectrum(t *testing.T) {
	mags := make([]float64, 64)

	peaks := PickPeaks(nil, mags, PeakOptions{LowBin: 1, HighBin: 62, MinHeightRatio: 0.15})
	if len(peaks) != 0 {
		t.Fatalf("got %d peaks from silence, want 0", len(peaks))
	}
}

func TestGoertzelDetectsTargetTone(t *testing.T) {
	const (
		sampleRate = 48000.0
		freq       = 440.0
		n          = 4800
	)

	g, err := NewGoertzel(freq, sampleRate)
	if err != nil {
		t.Fatalf("NewGoertzel: %v", err)
	}

	off, err := NewGoertzel(freq*1.5, sampleRate)
	if err != nil {
		t.Fatalf("NewGoertzel: %v", err)
	}

	block := make([]float64, n)
	for i := range block {
		block[i] = math.Sin(2 * math.Pi * freq * float64(i) / sampleRate)
	}

	g.ProcessBlock(block)
	off.ProcessBlock(block)

	if g.Power() < 100*off.Power() {
		t.Errorf("on-target power %v not dominant over off-target %v", g.Power(), off.Power())
	}
}

func TestGoertzelValidation(t *testing.T) {
	if _, err := NewGoertzel(30000, 48000); err == nil {
		t.Error("NewGoertzel accepted frequency above Nyquist")
	}
	if _, err := NewGoertzel(440, 0); err == nil {
		t.Error("NewGoertzel accepted zero sample rate")
	}

	g, err := NewGoertzel(440, 48000)
	if err != nil {
		t.Fatalf("NewGoertzel: %v", err)
	}
	if err := g.SetFrequency(-1); err == nil {
		t.Error("SetFrequency accepted negative frequency")
	}
}

func TestMagnitudeInto(t *testing.T) {
	in := []complex128{complex(3, 4), complex(0, 0), complex(-1, 0)}
	dst := make([]float64, 3)
	re := make([]float64, 3)
	im := make([]float64, 3)

	MagnitudeInto(dst, in, re, im)

	want := []float64{5, 0, 1}
	for i := range want {
		if math.Abs(dst[i]-want[i]) > 1e-12 {
			t.Errorf("dst[%d] = %v, want %v", i, dst[i], want[i])
		}
	}
}
