package interp

import (
	"math"
	"testing"
)

func TestLinear2Endpoints(t *testing.T) {
	if got := Linear2(0, 2, 4); got != 2 {
		t.Errorf("Linear2(0) = %v, want 2", got)
	}
	if got := Linear2(1, 2, 4); got != 4 {
		t.Errorf("Linear2(1) = %v, want 4", got)
	}
	if got := Linear2(0.25, 0, 8); got != 2 {
		t.Errorf("Linear2(0.25) = %v, want 2", got)
	}
}

func TestHermite4PassesThroughKnots(t *testing.T) {
	xm1, x0, x1, x2 := 0.1, 0.5, -0.2, 0.3

	if got := Hermite4(0, xm1, x0, x1, x2); math.Abs(got-x0) > 1e-12 {
		t.Errorf("Hermite4(0) = %v, want %v", got, x0)
	}
	if got := Hermite4(1, xm1, x0, x1, x2); math.Abs(got-x1) > 1e-12 {
		t.Errorf("Hermite4(1) = %v, want %v", got, x1)
	}
}

func TestHermite4ReconstructsLine(t *testing.T) {
	// On a straight line every interpolator must be exact.
	line := func(x float64) float64 { return 3*x - 1 }

	for _, frac := range []float64{0, 0.25, 0.5, 0.75, 1} {
		got := Hermite4(frac, line(-1), line(0), line(1), line(2))
		want := line(frac)
		if math.Abs(got-want) > 1e-12 {
			t.Errorf("Hermite4(%v) = %v, want %v", frac, got, want)
		}
	}
}
