package effects

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-guitarfx/dsp/core"
	"github.com/cwbudde/algo-guitarfx/dsp/delay"
)

const (
	defaultStereoLeftDelay  = 0.3
	defaultStereoRightDelay = 0.6
	defaultStereoFeedback   = 0.4
	defaultStereoWetMix     = 0.7
	defaultStereoWidth      = 0.5
	defaultCrossFeedback    = 0.2

	maxStereoFeedback = 0.9
	maxCrossFeedback  = 0.5
	maxStereoDelaySec = 2.0

	// gainSmoothingSeconds ramps the six gain parameters so live changes
	// stay click-free.
	gainSmoothingSeconds = 0.005
)

// StereoDelayOption mutates construction-time parameters.
type StereoDelayOption func(*stereoDelayConfig) error

type stereoDelayConfig struct {
	maxDelaySec   float64
	leftDelaySec  float64
	rightDelaySec float64
	feedback      float64
	wetMix        float64
	dryMix        float64
	pingPong      bool
	stereoWidth   float64
	crossFeedback float64

	distortion        *Distortion
	feedbackIntensity float64
	distortionOnCross bool
}

func defaultStereoDelayConfig() stereoDelayConfig {
	return stereoDelayConfig{
		maxDelaySec:   maxStereoDelaySec,
		leftDelaySec:  defaultStereoLeftDelay,
		rightDelaySec: defaultStereoRightDelay,
		feedback:      defaultStereoFeedback,
		wetMix:        defaultStereoWetMix,
		dryMix:        1 - defaultStereoWetMix,
		stereoWidth:   defaultStereoWidth,
		crossFeedback: defaultCrossFeedback,
	}
}

// WithMaxDelay sizes both delay lines for up to maxSec seconds. The
// default matches the 2 s control-range ceiling; larger lines trade memory
// for headroom.
func WithMaxDelay(maxSec float64) StereoDelayOption {
	return func(cfg *stereoDelayConfig) error {
		if maxSec < 0.001 || math.IsNaN(maxSec) || math.IsInf(maxSec, 0) {
			return fmt.Errorf("stereo max delay must be >= 0.001 s: %f", maxSec)
		}
		cfg.maxDelaySec = maxSec
		return nil
	}
}

// WithDelayTimes sets left and right delay times in seconds.
func WithDelayTimes(leftSec, rightSec float64) StereoDelayOption {
	return func(cfg *stereoDelayConfig) error {
		for _, s := range []float64{leftSec, rightSec} {
			if s < 0.001 || s > maxStereoDelaySec || math.IsNaN(s) || math.IsInf(s, 0) {
				return fmt.Errorf("stereo delay time must be in [0.001, %g]: %f", maxStereoDelaySec, s)
			}
		}
		cfg.leftDelaySec = leftSec
		cfg.rightDelaySec = rightSec
		return nil
	}
}

// WithStereoFeedback sets per-channel feedback gain in [0, 0.9].
func WithStereoFeedback(feedback float64) StereoDelayOption {
	return func(cfg *stereoDelayConfig) error {
		if feedback < 0 || feedback > maxStereoFeedback || math.IsNaN(feedback) || math.IsInf(feedback, 0) {
			return fmt.Errorf("stereo feedback must be in [0, %g]: %f", maxStereoFeedback, feedback)
		}
		cfg.feedback = feedback
		return nil
	}
}

// WithMix sets wet and dry gains, each in [0, 1].
func WithMix(wet, dry float64) StereoDelayOption {
	return func(cfg *stereoDelayConfig) error {
		for _, m := range []float64{wet, dry} {
			if m < 0 || m > 1 || math.IsNaN(m) || math.IsInf(m, 0) {
				return fmt.Errorf("stereo mix must be in [0, 1]: %f", m)
			}
		}
		cfg.wetMix = wet
		cfg.dryMix = dry
		return nil
	}
}

// WithPingPong enables ping-pong routing: each tap feeds the other channel.
func WithPingPong(enabled bool) StereoDelayOption {
	return func(cfg *stereoDelayConfig) error {
		cfg.pingPong = enabled
		return nil
	}
}

// WithStereoWidth sets mid/side width enhancement in [0, 1].
func WithStereoWidth(width float64) StereoDelayOption {
	return func(cfg *stereoDelayConfig) error {
		if width < 0 || width > 1 || math.IsNaN(width) || math.IsInf(width, 0) {
			return fmt.Errorf("stereo width must be in [0, 1]: %f", width)
		}
		cfg.stereoWidth = width
		return nil
	}
}

// WithCrossFeedback sets the cross-channel feedback gain in [0, 0.5].
func WithCrossFeedback(gain float64) StereoDelayOption {
	return func(cfg *stereoDelayConfig) error {
		if gain < 0 || gain > maxCrossFeedback || math.IsNaN(gain) || math.IsInf(gain, 0) {
			return fmt.Errorf("cross feedback must be in [0, %g]: %f", maxCrossFeedback, gain)
		}
		cfg.crossFeedback = gain
		return nil
	}
}

// WithFeedbackDistortion inserts a distortion unit into the cross-feedback
// path, blended with the clean cross signal by intensity in [0, 1].
func WithFeedbackDistortion(d *Distortion, intensity float64) StereoDelayOption {
	return func(cfg *stereoDelayConfig) error {
		if d == nil {
			return fmt.Errorf("feedback distortion must not be nil")
		}
		if intensity < 0 || intensity > 1 || math.IsNaN(intensity) || math.IsInf(intensity, 0) {
			return fmt.Errorf("feedback intensity must be in [0, 1]: %f", intensity)
		}
		cfg.distortion = d
		cfg.feedbackIntensity = intensity
		cfg.distortionOnCross = true
		return nil
	}
}

// StereoDelay is a dual delay line with cross-feedback, ping-pong routing,
// mid/side width enhancement, and an optional distortion stage inside the
// cross-feedback path.
//
// Within one step the taps are read before anything is written, so the
// feedback cycle is purely temporal: the data flow of a single step is a DAG.
// Gain setters move targets; the audible values ramp toward them per sample.
type StereoDelay struct {
	sampleRate float64

	left  *delay.Line
	right *delay.Line

	feedback      smoothedGain
	wetMix        smoothedGain
	dryMix        smoothedGain
	stereoWidth   smoothedGain
	crossFeedback smoothedGain

	pingPong bool

	distortion        *Distortion
	distortionOn      bool
	feedbackIntensity smoothedGain

	smoothCoeff float64
}

// smoothedGain is a one-pole-followed parameter.
type smoothedGain struct {
	current float64
	target  float64
}

func (g *smoothedGain) snap(v float64) {
	g.current = v
	g.target = v
}

func (g *smoothedGain) advance(coeff float64) float64 {
	g.current += coeff * (g.target - g.current)
	return g.current
}

// NewStereoDelay creates a stereo delay. Both delay lines are sized once at
// construction (see [WithMaxDelay]) and never reallocated.
func NewStereoDelay(sampleRate float64, opts ...StereoDelayOption) (*StereoDelay, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("stereo delay sample rate must be > 0: %f", sampleRate)
	}

	cfg := defaultStereoDelayConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := validateLoopGain(cfg.feedback, cfg.crossFeedback); err != nil {
		return nil, err
	}

	left, err := delay.NewLine(sampleRate, cfg.maxDelaySec, delay.WithDelaySeconds(cfg.leftDelaySec))
	if err != nil {
		return nil, err
	}

	right, err := delay.NewLine(sampleRate, cfg.maxDelaySec, delay.WithDelaySeconds(cfg.rightDelaySec))
	if err != nil {
		return nil, err
	}

	s := &StereoDelay{
		sampleRate:   sampleRate,
		left:         left,
		right:        right,
		pingPong:     cfg.pingPong,
		distortion:   cfg.distortion,
		distortionOn: cfg.distortionOnCross,
		smoothCoeff:  core.OnePoleCoeff(gainSmoothingSeconds, sampleRate),
	}

	s.feedback.snap(cfg.feedback)
	s.wetMix.snap(cfg.wetMix)
	s.dryMix.snap(cfg.dryMix)
	s.stereoWidth.snap(cfg.stereoWidth)
	s.crossFeedback.snap(cfg.crossFeedback)
	s.feedbackIntensity.snap(cfg.feedbackIntensity)

	return s, nil
}

// validateLoopGain rejects combinations whose effective loop gain could
// reach 1 and turn the feedback network unstable.
func validateLoopGain(feedback, crossFeedback float64) error {
	if feedback+crossFeedback >= 1 {
		return fmt.Errorf("loop gain feedback+cross must be < 1: %f", feedback+crossFeedback)
	}
	return nil
}

// SetTargetDelayTimes requests new delay times; the lines ramp toward them.
func (s *StereoDelay) SetTargetDelayTimes(leftSec, rightSec float64) error {
	if err := s.left.SetTargetDelaySeconds(leftSec); err != nil {
		return err
	}
	return s.right.SetTargetDelaySeconds(rightSec)
}

// SetDelayTimes snaps delay times without ramping.
func (s *StereoDelay) SetDelayTimes(leftSec, rightSec float64) error {
	if err := s.left.SetDelaySeconds(leftSec); err != nil {
		return err
	}
	return s.right.SetDelaySeconds(rightSec)
}

// SetFeedback ramps the per-channel feedback gain toward a value in
// [0, 0.9].
func (s *StereoDelay) SetFeedback(feedback float64) error {
	if feedback < 0 || feedback > maxStereoFeedback || math.IsNaN(feedback) || math.IsInf(feedback, 0) {
		return fmt.Errorf("stereo feedback must be in [0, %g]: %f", maxStereoFeedback, feedback)
	}
	if err := validateLoopGain(feedback, s.crossFeedback.target); err != nil {
		return err
	}
	s.feedback.target = feedback
	return nil
}

// SetCrossFeedback ramps the cross-channel feedback gain toward a value in
// [0, 0.5].
func (s *StereoDelay) SetCrossFeedback(gain float64) error {
	if gain < 0 || gain > maxCrossFeedback || math.IsNaN(gain) || math.IsInf(gain, 0) {
		return fmt.Errorf("cross feedback must be in [0, %g]: %f", maxCrossFeedback, gain)
	}
	if err := validateLoopGain(s.feedback.target, gain); err != nil {
		return err
	}
	s.crossFeedback.target = gain
	return nil
}

// SetLoopGains updates feedback and cross-feedback together, validating the
// pair as one step so callers can move both without tripping the loop-gain
// check on the intermediate state.
func (s *StereoDelay) SetLoopGains(feedback, crossFeedback float64) error {
	if feedback < 0 || feedback > maxStereoFeedback || math.IsNaN(feedback) || math.IsInf(feedback, 0) {
		return fmt.Errorf("stereo feedback must be in [0, %g]: %f", maxStereoFeedback, feedback)
	}
	if crossFeedback < 0 || crossFeedback > maxCrossFeedback || math.IsNaN(crossFeedback) || math.IsInf(crossFeedback, 0) {
		return fmt.Errorf("cross feedback must be in [0, %g]: %f", maxCrossFeedback, crossFeedback)
	}
	if err := validateLoopGain(feedback, crossFeedback); err != nil {
		return err
	}
	s.feedback.target = feedback
	s.crossFeedback.target = crossFeedback
	return nil
}

// SetMix ramps wet and dry gains toward values in [0, 1].
func (s *StereoDelay) SetMix(wet, dry float64) error {
	for _, m := range []float64{wet, dry} {
		if m < 0 || m > 1 || math.IsNaN(m) || math.IsInf(m, 0) {
			return fmt.Errorf("stereo mix must be in [0, 1]: %f", m)
		}
	}
	s.wetMix.target = wet
	s.dryMix.target = dry
	return nil
}

// SetPingPong toggles ping-pong routing. Not smoothed.
func (s *StereoDelay) SetPingPong(enabled bool) { s.pingPong = enabled }

// SetStereoWidth ramps mid/side width enhancement toward a value in [0, 1].
func (s *StereoDelay) SetStereoWidth(width float64) error {
	if width < 0 || width > 1 || math.IsNaN(width) || math.IsInf(width, 0) {
		return fmt.Errorf("stereo width must be in [0, 1]: %f", width)
	}
	s.stereoWidth.target = width
	return nil
}

// SetFeedbackDistortion enables or disables the cross-path distortion stage.
func (s *StereoDelay) SetFeedbackDistortion(enabled bool) {
	s.distortionOn = enabled && s.distortion != nil
}

// SetFeedbackIntensity ramps the distorted/clean blend of the cross path.
func (s *StereoDelay) SetFeedbackIntensity(intensity float64) error {
	if intensity < 0 || intensity > 1 || math.IsNaN(intensity) || math.IsInf(intensity, 0) {
		return fmt.Errorf("feedback intensity must be in [0, 1]: %f", intensity)
	}
	s.feedbackIntensity.target = intensity
	return nil
}

// Distortion returns the embedded cross-path distortion unit, or nil.
func (s *StereoDelay) Distortion() *Distortion { return s.distortion }

// Feedback returns the current (smoothed) per-channel feedback gain.
func (s *StereoDelay) Feedback() float64 { return s.feedback.current }

// CrossFeedback returns the current (smoothed) cross-channel feedback gain.
func (s *StereoDelay) CrossFeedback() float64 { return s.crossFeedback.current }

// WetMix returns the current (smoothed) wet gain.
func (s *StereoDelay) WetMix() float64 { return s.wetMix.current }

// DryMix returns the current (smoothed) dry gain.
func (s *StereoDelay) DryMix() float64 { return s.dryMix.current }

// StereoWidth returns the current (smoothed) width enhancement.
func (s *StereoDelay) StereoWidth() float64 { return s.stereoWidth.current }

// FeedbackIntensity returns the current (smoothed) cross-path blend.
func (s *StereoDelay) FeedbackIntensity() float64 { return s.feedbackIntensity.current }

// Reset clears both delay lines and the distortion state, and snaps all
// gain ramps to their targets.
func (s *StereoDelay) Reset() {
	s.left.Reset()
	s.right.Reset()
	if s.distortion != nil {
		s.distortion.Reset()
	}

	s.feedback.snap(s.feedback.target)
	s.wetMix.snap(s.wetMix.target)
	s.dryMix.snap(s.dryMix.target)
	s.stereoWidth.snap(s.stereoWidth.target)
	s.crossFeedback.snap(s.crossFeedback.target)
	s.feedbackIntensity.snap(s.feedbackIntensity.target)
}

// ProcessSample advances the effect one frame.
func (s *StereoDelay) ProcessSample(inL, inR float64) (float64, float64) {
	coeff := s.smoothCoeff
	feedback := s.feedback.advance(coeff)
	wet := s.wetMix.advance(coeff)
	dry := s.dryMix.advance(coeff)
	width := s.stereoWidth.advance(coeff)
	cross := s.crossFeedback.advance(coeff)
	intensity := s.feedbackIntensity.advance(coeff)

	s.left.Advance()
	s.right.Advance()

	// Taps land on previous writes only: no self-inclusion within a step.
	tapL := s.left.Tap()
	tapR := s.right.Tap()

	crossL := tapR * cross
	crossR := tapL * cross

	if s.distortionOn {
		crossL = crossL*(1-intensity) + s.distortion.ProcessSample(crossL)*intensity
		crossR = crossR*(1-intensity) + s.distortion.ProcessSample(crossR)*intensity
	}

	if s.pingPong {
		s.left.Write(inL + tapR*feedback + crossL)
		s.right.Write(inR + tapL*feedback + crossR)
	} else {
		s.left.Write(inL + tapL*feedback + crossL)
		s.right.Write(inR + tapR*feedback + crossR)
	}

	mid := 0.5 * (tapL + tapR)
	side := 0.5 * (tapL - tapR) * (1 + width)

	outL := dry*inL + wet*(mid+side)
	outR := dry*inR + wet*(mid-side)

	return outL, outR
}

// ProcessBlock processes left and right in place. Both slices must have the
// same length.
func (s *StereoDelay) ProcessBlock(left, right []float64) {
	n := len(left)
	if len(right) < n {
		n = len(right)
	}

	for i := 0; i < n; i++ {
		left[i], right[i] = s.ProcessSample(left[i], right[i])
	}
}

// SampleRate returns the sample rate in Hz.
func (s *StereoDelay) SampleRate() float64 { return s.sampleRate }
