package effects

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-guitarfx/dsp/core"
)

const (
	defaultDistortionDrive = 0.5
	defaultDistortionMix   = 1.0
	defaultBitDepth        = 8
	defaultRateReduction   = 0.5

	minBitDepth = 1
	maxBitDepth = 16

	// distortionSmoothingSeconds ramps drive and mix to keep parameter
	// changes click-free.
	distortionSmoothingSeconds = 0.005
)

// DistortionKind selects the transfer function used by Distortion.
type DistortionKind int

const (
	DistortionNone DistortionKind = iota
	DistortionSoftClip
	DistortionHardClip
	DistortionTube
	DistortionFuzz
	DistortionBitCrush
	DistortionWaveshaper
)

// String returns the lowercase kind name.
func (k DistortionKind) String() string {
	switch k {
	case DistortionNone:
		return "none"
	case DistortionSoftClip:
		return "soft_clip"
	case DistortionHardClip:
		return "hard_clip"
	case DistortionTube:
		return "tube"
	case DistortionFuzz:
		return "fuzz"
	case DistortionBitCrush:
		return "bit_crush"
	case DistortionWaveshaper:
		return "waveshaper"
	default:
		return "unknown"
	}
}

// ParseDistortionKind maps a kind name to its enum value.
func ParseDistortionKind(name string) (DistortionKind, error) {
	switch name {
	case "none":
		return DistortionNone, nil
	case "soft_clip":
		return DistortionSoftClip, nil
	case "hard_clip":
		return DistortionHardClip, nil
	case "tube":
		return DistortionTube, nil
	case "fuzz":
		return DistortionFuzz, nil
	case "bit_crush":
		return DistortionBitCrush, nil
	case "waveshaper":
		return DistortionWaveshaper, nil
	default:
		return 0, fmt.Errorf("unknown distortion kind: %q", name)
	}
}

func validDistortionKind(k DistortionKind) bool {
	return k >= DistortionNone && k <= DistortionWaveshaper
}

// DistortionOption mutates construction-time parameters.
type DistortionOption func(*distortionConfig) error

type distortionConfig struct {
	kind          DistortionKind
	drive         float64
	mix           float64
	bitDepth      int
	rateReduction float64
}

func defaultDistortionConfig() distortionConfig {
	return distortionConfig{
		kind:          DistortionSoftClip,
		drive:         defaultDistortionDrive,
		mix:           defaultDistortionMix,
		bitDepth:      defaultBitDepth,
		rateReduction: defaultRateReduction,
	}
}

// WithDistortionKind selects the transfer function.
func WithDistortionKind(kind DistortionKind) DistortionOption {
	return func(cfg *distortionConfig) error {
		if !validDistortionKind(kind) {
			return fmt.Errorf("distortion kind is invalid: %d", kind)
		}
		cfg.kind = kind
		return nil
	}
}

// WithDistortionDrive sets drive in [0, 1].
func WithDistortionDrive(drive float64) DistortionOption {
	return func(cfg *distortionConfig) error {
		if drive < 0 || drive > 1 || math.IsNaN(drive) || math.IsInf(drive, 0) {
			return fmt.Errorf("distortion drive must be in [0, 1]: %f", drive)
		}
		cfg.drive = drive
		return nil
	}
}

// WithDistortionMix sets dry/wet mix in [0, 1].
func WithDistortionMix(mix float64) DistortionOption {
	return func(cfg *distortionConfig) error {
		if mix < 0 || mix > 1 || math.IsNaN(mix) || math.IsInf(mix, 0) {
			return fmt.Errorf("distortion mix must be in [0, 1]: %f", mix)
		}
		cfg.mix = mix
		return nil
	}
}

// WithBitCrush sets bit-crush depth in [1, 16] bits and the sample-hold
// rate-reduction factor in (0, 1].
func WithBitCrush(bitDepth int, rateReduction float64) DistortionOption {
	return func(cfg *distortionConfig) error {
		if bitDepth < minBitDepth || bitDepth > maxBitDepth {
			return fmt.Errorf("bit depth must be in [%d, %d]: %d", minBitDepth, maxBitDepth, bitDepth)
		}
		if rateReduction <= 0 || rateReduction > 1 || math.IsNaN(rateReduction) {
			return fmt.Errorf("rate reduction must be in (0, 1]: %f", rateReduction)
		}
		cfg.bitDepth = bitDepth
		cfg.rateReduction = rateReduction
		return nil
	}
}

// Distortion is a waveshaper with six transfer functions plus bypass.
// Drive and mix changes ramp through one-pole followers so live tweaks stay
// click-free. The only other state is the bit-crush sample-and-hold
// register, so one instance must not be shared between channels when
// bit-crushing.
type Distortion struct {
	sampleRate float64

	kind DistortionKind

	drive       float64
	driveTarget float64
	mix         float64
	mixTarget   float64
	smoothCoeff float64

	bitDepth      int
	rateReduction float64

	holdValue float64
	holdPhase float64
}

// NewDistortion creates a distortion unit with validated options.
func NewDistortion(sampleRate float64, opts ...DistortionOption) (*Distortion, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("distortion sample rate must be > 0: %f", sampleRate)
	}

	cfg := defaultDistortionConfig()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	return &Distortion{
		sampleRate:    sampleRate,
		kind:          cfg.kind,
		drive:         cfg.drive,
		driveTarget:   cfg.drive,
		mix:           cfg.mix,
		mixTarget:     cfg.mix,
		smoothCoeff:   core.OnePoleCoeff(distortionSmoothingSeconds, sampleRate),
		bitDepth:      cfg.bitDepth,
		rateReduction: cfg.rateReduction,
	}, nil
}

// SetKind sets the transfer function. Not smoothed.
func (d *Distortion) SetKind(kind DistortionKind) error {
	if !validDistortionKind(kind) {
		return fmt.Errorf("distortion kind is invalid: %d", kind)
	}
	d.kind = kind
	return nil
}

// SetDrive ramps drive toward a new value in [0, 1].
func (d *Distortion) SetDrive(drive float64) error {
	if drive < 0 || drive > 1 || math.IsNaN(drive) || math.IsInf(drive, 0) {
		return fmt.Errorf("distortion drive must be in [0, 1]: %f", drive)
	}
	d.driveTarget = drive
	return nil
}

// SetMix ramps dry/wet mix toward a new value in [0, 1].
func (d *Distortion) SetMix(mix float64) error {
	if mix < 0 || mix > 1 || math.IsNaN(mix) || math.IsInf(mix, 0) {
		return fmt.Errorf("distortion mix must be in [0, 1]: %f", mix)
	}
	d.mixTarget = mix
	return nil
}

// SetBitCrush sets bit depth and rate reduction for the bit-crush kind.
func (d *Distortion) SetBitCrush(bitDepth int, rateReduction float64) error {
	if bitDepth < minBitDepth || bitDepth > maxBitDepth {
		return fmt.Errorf("bit depth must be in [%d, %d]: %d", minBitDepth, maxBitDepth, bitDepth)
	}
	if rateReduction <= 0 || rateReduction > 1 || math.IsNaN(rateReduction) {
		return fmt.Errorf("rate reduction must be in (0, 1]: %f", rateReduction)
	}
	d.bitDepth = bitDepth
	d.rateReduction = rateReduction
	return nil
}

// Kind returns the active transfer function.
func (d *Distortion) Kind() DistortionKind { return d.kind }

// Drive returns the current (smoothed) drive.
func (d *Distortion) Drive() float64 { return d.drive }

// Mix returns the current (smoothed) dry/wet mix.
func (d *Distortion) Mix() float64 { return d.mix }

// SampleRate returns the sample rate in Hz.
func (d *Distortion) SampleRate() float64 { return d.sampleRate }

// Reset clears the sample-and-hold register and snaps parameter ramps.
func (d *Distortion) Reset() {
	d.holdValue = 0
	d.holdPhase = 0
	d.drive = d.driveTarget
	d.mix = d.mixTarget
}

// ProcessSample applies the configured distortion to one sample.
func (d *Distortion) ProcessSample(input float64) float64 {
	d.drive += d.smoothCoeff * (d.driveTarget - d.drive)
	d.mix += d.smoothCoeff * (d.mixTarget - d.mix)

	if d.kind == DistortionNone {
		return input
	}

	wet := d.shape(input)
	if !core.IsFinite(wet) {
		wet = 0
	}

	// Guard the blended result as well: a non-finite input times a zero
	// dry weight still yields NaN under IEEE-754.
	out := input*(1-d.mix) + wet*d.mix
	if !core.IsFinite(out) {
		out = 0
	}

	return out
}

// ProcessInPlace applies distortion to buf in place.
func (d *Distortion) ProcessInPlace(buf []float64) {
	for i := range buf {
		buf[i] = d.ProcessSample(buf[i])
	}
}

func (d *Distortion) shape(s float64) float64 {
	switch d.kind {
	case DistortionSoftClip:
		g := 1 + 10*d.drive
		return math.Tanh(s*g) / g
	case DistortionHardClip:
		threshold := 1 - d.drive
		return core.Clamp(s, -threshold, threshold)
	case DistortionTube:
		kPos := 1 + 5*d.drive
		if s > 0 {
			return core.ClampUnit(s / (1 + s/kPos))
		}
		return core.ClampUnit(s / (1 + math.Abs(s)/(2*kPos)))
	case DistortionFuzz:
		g := 1 + 20*d.drive
		var y float64
		if s > 0 {
			y = math.Tanh(s * g)
		} else {
			y = core.ClampUnit(0.5 * s * g)
		}
		return core.ClampUnit(y + 0.3*y*y)
	case DistortionBitCrush:
		return d.bitCrush(s)
	case DistortionWaveshaper:
		return core.ClampUnit(s + 0.3*(1+8*d.drive)*s*s*s)
	default:
		return s
	}
}

// bitCrush quantizes to the configured depth and holds the quantized value
// across samples. The hold accumulator latches a new value every
// 1/rateReduction samples, a deterministic stand-in for random decimation.
func (d *Distortion) bitCrush(s float64) float64 {
	levels := math.Pow(2, float64(d.bitDepth)) - 1
	quantized := math.Round(s*levels) / levels

	d.holdPhase += d.rateReduction
	if d.holdPhase >= 1 {
		d.holdPhase -= 1
		d.holdValue = quantized
	}

	return d.holdValue
}
