package delay

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-guitarfx/dsp/core"
	"github.com/cwbudde/algo-guitarfx/dsp/interp"
)

const (
	defaultSmoothingSeconds = 0.02
	minSmoothingSeconds     = 0.02
	minDelaySeconds         = 0.001
	maxFeedback             = 0.9

	// headroomSamples keeps the fractional read window away from the write
	// cursor and the buffer end.
	headroomSamples = 4
)

// LineOption mutates construction-time parameters.
type LineOption func(*lineConfig) error

type lineConfig struct {
	delaySeconds     float64
	feedback         float64
	smoothingSeconds float64
	lfoRateHz        float64
	lfoDepthSamples  float64
}

// WithDelaySeconds sets the initial delay time in seconds.
func WithDelaySeconds(seconds float64) LineOption {
	return func(cfg *lineConfig) error {
		if seconds < minDelaySeconds || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
			return fmt.Errorf("delay time must be >= %g s: %f", minDelaySeconds, seconds)
		}
		cfg.delaySeconds = seconds
		return nil
	}
}

// WithFeedback sets feedback gain in [0, 0.9].
func WithFeedback(feedback float64) LineOption {
	return func(cfg *lineConfig) error {
		if feedback < 0 || feedback > maxFeedback || math.IsNaN(feedback) || math.IsInf(feedback, 0) {
			return fmt.Errorf("delay feedback must be in [0, %g]: %f", maxFeedback, feedback)
		}
		cfg.feedback = feedback
		return nil
	}
}

// WithSmoothing sets the delay-time smoothing time constant in seconds.
// Values below 20 ms are rejected; shorter constants produce audible pitch
// warble when the delay time changes.
func WithSmoothing(seconds float64) LineOption {
	return func(cfg *lineConfig) error {
		if seconds < minSmoothingSeconds || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
			return fmt.Errorf("delay smoothing must be >= %g s: %f", minSmoothingSeconds, seconds)
		}
		cfg.smoothingSeconds = seconds
		return nil
	}
}

// WithLFO sets delay-time modulation: rate in Hz and depth in samples.
func WithLFO(rateHz, depthSamples float64) LineOption {
	return func(cfg *lineConfig) error {
		if rateHz < 0 || math.IsNaN(rateHz) || math.IsInf(rateHz, 0) {
			return fmt.Errorf("delay lfo rate must be >= 0: %f", rateHz)
		}
		if depthSamples < 0 || math.IsNaN(depthSamples) || math.IsInf(depthSamples, 0) {
			return fmt.Errorf("delay lfo depth must be >= 0: %f", depthSamples)
		}
		cfg.lfoRateHz = rateHz
		cfg.lfoDepthSamples = depthSamples
		return nil
	}
}

// Line is a circular delay line with a smoothed, optionally LFO-modulated
// fractional-sample tap. The buffer is sized once at construction and never
// reallocated; reads are computed relative to the write cursor so they can
// never outrun it.
type Line struct {
	sampleRate float64
	buffer     []float64
	writePos   int

	targetDelay  float64 // samples
	currentDelay float64 // samples
	smoothCoeff  float64

	feedback float64

	lfoRateHz float64
	lfoDepth  float64
	lfoPhase  float64

	effectiveDelay float64
}

// NewLine creates a delay line able to hold up to maxDelaySeconds of signal.
func NewLine(sampleRate, maxDelaySeconds float64, opts ...LineOption) (*Line, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("delay sample rate must be > 0: %f", sampleRate)
	}
	if maxDelaySeconds < minDelaySeconds || math.IsNaN(maxDelaySeconds) || math.IsInf(maxDelaySeconds, 0) {
		return nil, fmt.Errorf("delay max time must be >= %g s: %f", minDelaySeconds, maxDelaySeconds)
	}

	cfg := lineConfig{
		delaySeconds:     maxDelaySeconds / 2,
		smoothingSeconds: defaultSmoothingSeconds,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if cfg.delaySeconds > maxDelaySeconds {
		return nil, fmt.Errorf("delay time %f s exceeds max %f s", cfg.delaySeconds, maxDelaySeconds)
	}

	size := int(math.Ceil(maxDelaySeconds*sampleRate)) + headroomSamples

	l := &Line{
		sampleRate:  sampleRate,
		buffer:      make([]float64, size),
		smoothCoeff: core.OnePoleCoeff(cfg.smoothingSeconds, sampleRate),
		feedback:    cfg.feedback,
		lfoRateHz:   cfg.lfoRateHz,
		lfoDepth:    cfg.lfoDepthSamples,
	}

	l.targetDelay = l.clampDelaySamples(cfg.delaySeconds * sampleRate)
	l.currentDelay = l.targetDelay
	l.effectiveDelay = l.targetDelay

	return l, nil
}

// SetTargetDelaySeconds requests a new delay time; the effective delay ramps
// toward it with the configured smoothing constant.
func (l *Line) SetTargetDelaySeconds(seconds float64) error {
	if seconds < minDelaySeconds || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return fmt.Errorf("delay time must be >= %g s: %f", minDelaySeconds, seconds)
	}

	samples := seconds * l.sampleRate
	if samples > l.maxDelaySamples() {
		return fmt.Errorf("delay time %f s exceeds line capacity %f s",
			seconds, l.maxDelaySamples()/l.sampleRate)
	}

	l.targetDelay = l.clampDelaySamples(samples)

	return nil
}

// SetDelaySeconds snaps the delay time without ramping. Intended for static
// configuration before streaming starts.
func (l *Line) SetDelaySeconds(seconds float64) error {
	if err := l.SetTargetDelaySeconds(seconds); err != nil {
		return err
	}

	l.currentDelay = l.targetDelay
	l.effectiveDelay = l.targetDelay

	return nil
}

// SetFeedback sets feedback gain in [0, 0.9]. Only [Step] applies it.
func (l *Line) SetFeedback(feedback float64) error {
	if feedback < 0 || feedback > maxFeedback || math.IsNaN(feedback) || math.IsInf(feedback, 0) {
		return fmt.Errorf("delay feedback must be in [0, %g]: %f", maxFeedback, feedback)
	}

	l.feedback = feedback

	return nil
}

// SetLFO updates modulation rate (Hz) and depth (samples).
func (l *Line) SetLFO(rateHz, depthSamples float64) error {
	if rateHz < 0 || math.IsNaN(rateHz) || math.IsInf(rateHz, 0) {
		return fmt.Errorf("delay lfo rate must be >= 0: %f", rateHz)
	}
	if depthSamples < 0 || math.IsNaN(depthSamples) || math.IsInf(depthSamples, 0) {
		return fmt.Errorf("delay lfo depth must be >= 0: %f", depthSamples)
	}

	l.lfoRateHz = rateHz
	l.lfoDepth = depthSamples

	return nil
}

// Advance moves the delay smoother and LFO forward one sample and returns
// the effective delay in samples. Call exactly once per processed sample,
// before tapping.
func (l *Line) Advance() float64 {
	l.currentDelay += l.smoothCoeff * (l.targetDelay - l.currentDelay)

	delay := l.currentDelay
	if l.lfoDepth > 0 && l.lfoRateHz > 0 {
		delay += l.lfoDepth * math.Sin(2*math.Pi*l.lfoPhase)

		l.lfoPhase += l.lfoRateHz / l.sampleRate
		if l.lfoPhase >= 1 {
			l.lfoPhase -= 1
		}
	}

	l.effectiveDelay = l.clampDelaySamples(delay)

	return l.effectiveDelay
}

// Tap reads the buffer at the current effective delay without writing.
// The read position sits behind the write cursor, so the value returned is
// always from a previous [Write].
func (l *Line) Tap() float64 {
	return l.readFractional(l.effectiveDelay)
}

// TapAt reads the buffer at an arbitrary delay in samples without writing.
func (l *Line) TapAt(delaySamples float64) float64 {
	return l.readFractional(l.clampDelaySamples(delaySamples))
}

// Write stores one sample and advances the write cursor.
func (l *Line) Write(x float64) {
	l.buffer[l.writePos] = core.FlushDenormals(x)

	l.writePos++
	if l.writePos >= len(l.buffer) {
		l.writePos = 0
	}
}

// Step advances the line one sample: smooth, tap, write input plus feedback,
// return the tapped value.
func (l *Line) Step(x float64) float64 {
	l.Advance()
	tapped := l.Tap()
	l.Write(x + l.feedback*tapped)

	return tapped
}

// Reset zeroes the buffer and modulation state. Configured delay times and
// gains are preserved.
func (l *Line) Reset() {
	for i := range l.buffer {
		l.buffer[i] = 0
	}
	l.writePos = 0
	l.lfoPhase = 0
	l.currentDelay = l.targetDelay
	l.effectiveDelay = l.targetDelay
}

// CurrentDelaySamples returns the smoothed delay in samples, excluding LFO.
func (l *Line) CurrentDelaySamples() float64 { return l.currentDelay }

// TargetDelaySamples returns the requested delay in samples.
func (l *Line) TargetDelaySamples() float64 { return l.targetDelay }

// Feedback returns the feedback gain.
func (l *Line) Feedback() float64 { return l.feedback }

// Len returns the internal buffer size in samples.
func (l *Line) Len() int { return len(l.buffer) }

func (l *Line) maxDelaySamples() float64 {
	return float64(len(l.buffer) - headroomSamples)
}

func (l *Line) clampDelaySamples(samples float64) float64 {
	return core.Clamp(samples, 1, l.maxDelaySamples())
}

func (l *Line) readFractional(delaySamples float64) float64 {
	size := len(l.buffer)

	pos := float64(l.writePos) - delaySamples
	for pos < 0 {
		pos += float64(size)
	}

	idx := int(pos)
	frac := pos - float64(idx)
	if idx >= size {
		idx -= size
	}

	next := idx + 1
	if next >= size {
		next = 0
	}

	return interp.Linear2(frac, l.buffer[idx], l.buffer[next])
}
