package delay

import (
	"math"
	"testing"
)

func TestLineImpulsePlacement(t *testing.T) {
	const (
		sampleRate = 48000.0
		delaySec   = 0.25
	)

	l, err := NewLine(sampleRate, 2.0, WithDelaySeconds(delaySec))
	if err != nil {
		t.Fatalf("NewLine: %v", err)
	}

	want := int(delaySec * sampleRate)

	hit := -1
	for n := 0; n < want+10; n++ {
		x := 0.0
		if n == 0 {
			x = 1
		}

		y := l.Step(x)
		if y > 0.5 {
			hit = n
			break
		}
	}

	if hit < want-1 || hit > want+1 {
		t.Errorf("impulse surfaced at sample %d, want %d +/- 1", hit, want)
	}
}

func TestLineFeedbackDecaysGeometrically(t *testing.T) {
	const sampleRate = 1000.0

	l, err := NewLine(sampleRate, 1.0,
		WithDelaySeconds(0.1), WithFeedback(0.5))
	if err != nil {
		t.Fatalf("NewLine: %v", err)
	}

	delaySamples := 100

	var echoes []float64
	for n := 0; n < delaySamples*4+10; n++ {
		x := 0.0
		if n == 0 {
			x = 1
		}

		y := l.Step(x)
		if math.Abs(y) > 1e-6 {
			echoes = append(echoes, y)
		}
	}

	if len(echoes) < 3 {
		t.Fatalf("expected at least 3 echoes, got %d", len(echoes))
	}

	for i := 1; i < 3; i++ {
		ratio := echoes[i] / echoes[i-1]
		if math.Abs(ratio-0.5) > 0.05 {
			t.Errorf("echo %d ratio = %v, want ~0.5", i, ratio)
		}
	}
}

func TestLineSmoothTargetRampsGradually(t *testing.T) {
	const sampleRate = 1000.0

	l, err := NewLine(sampleRate, 1.0, WithDelaySeconds(0.25))
	if err != nil {
		t.Fatalf("NewLine: %v", err)
	}

	start := l.CurrentDelaySamples()

	if err := l.SetTargetDelaySeconds(0.01); err != nil {
		t.Fatalf("SetTargetDelaySeconds: %v", err)
	}

	for i := 0; i < 10; i++ {
		l.Step(0)
	}

	current := l.CurrentDelaySamples()
	if current >= start {
		t.Errorf("delay did not ramp: current=%v, start=%v", current, start)
	}
	if current <= 0.01*sampleRate {
		t.Errorf("delay jumped to target instead of ramping: current=%v", current)
	}

	// Converges after several time constants.
	for i := 0; i < 5000; i++ {
		l.Step(0)
	}

	want := 0.01 * sampleRate
	if math.Abs(l.CurrentDelaySamples()-want) > 0.5 {
		t.Errorf("delay did not converge: got %v, want %v", l.CurrentDelaySamples(), want)
	}
}

func TestLineMinimumDelayNeverReadsWriteCursor(t *testing.T) {
	const sampleRate = 48000.0

	l, err := NewLine(sampleRate, 2.0, WithDelaySeconds(0.001))
	if err != nil {
		t.Fatalf("NewLine: %v", err)
	}

	// With a 1 ms delay the tap must return history, never the sample being
	// written in the same step.
	for n := 0; n < 200; n++ {
		y := l.Step(1)
		if n == 0 && y != 0 {
			t.Fatalf("first step returned %v, want 0 (no self-read)", y)
		}
	}
}

func TestLineSnapSetDelaySkipsRamp(t *testing.T) {
	l, err := NewLine(1000, 1.0, WithDelaySeconds(0.25))
	if err != nil {
		t.Fatalf("NewLine: %v", err)
	}

	if err := l.SetDelaySeconds(0.05); err != nil {
		t.Fatalf("SetDelaySeconds: %v", err)
	}

	if got := l.CurrentDelaySamples(); got != 50 {
		t.Errorf("CurrentDelaySamples = %v, want 50", got)
	}
}

func TestLineResetClearsHistory(t *testing.T) {
	l, err := NewLine(1000, 1.0, WithDelaySeconds(0.05), WithFeedback(0.5))
	if err != nil {
		t.Fatalf("NewLine: %v", err)
	}

	for i := 0; i < 500; i++ {
		l.Step(0.7)
	}

	l.Reset()

	for i := 0; i < 49; i++ {
		if y := l.Step(0); y != 0 {
			t.Fatalf("step %d after Reset returned %v, want 0", i, y)
		}
	}
}

func TestLineRejectsBadConfig(t *testing.T) {
	if _, err := NewLine(0, 1.0); err == nil {
		t.Error("NewLine accepted zero sample rate")
	}
	if _, err := NewLine(48000, 1.0, WithFeedback(0.95)); err == nil {
		t.Error("NewLine accepted feedback > 0.9")
	}
	if _, err := NewLine(48000, 1.0, WithDelaySeconds(3)); err == nil {
		t.Error("NewLine accepted delay beyond capacity")
	}
	if _, err := NewLine(48000, 1.0, WithSmoothing(0.001)); err == nil {
		t.Error("NewLine accepted sub-20ms smoothing")
	}

	l, err := NewLine(48000, 1.0)
	if err != nil {
		t.Fatalf("NewLine: %v", err)
	}
	if err := l.SetTargetDelaySeconds(math.NaN()); err == nil {
		t.Error("SetTargetDelaySeconds accepted NaN")
	}
}

func TestLineLFOModulatesTap(t *testing.T) {
	l, err := NewLine(1000, 1.0,
		WithDelaySeconds(0.1), WithLFO(5, 10))
	if err != nil {
		t.Fatalf("NewLine: %v", err)
	}

	min, max := math.Inf(1), math.Inf(-1)
	for i := 0; i < 400; i++ {
		d := l.Advance()
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
		l.Write(0)
	}

	if max-min < 15 {
		t.Errorf("LFO swing = %v samples, want ~20", max-min)
	}
}
