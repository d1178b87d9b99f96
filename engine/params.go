package engine

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/cwbudde/algo-guitarfx/dsp/arp"
	"github.com/cwbudde/algo-guitarfx/dsp/effects"
	"github.com/cwbudde/algo-guitarfx/dsp/synth"
)

// Parameter domains from the control interface contract.
const (
	minDelayParamSeconds = 0.001
	maxDelayParamSeconds = 2.0
	maxFeedbackParam     = 0.9
	maxCrossParam        = 0.5
	minBPMParam          = 20.0
	maxBPMParam          = 300.0
	minArpDuration       = 0.5
	maxArpDuration       = 10.0
	minHoldParam         = 0.05
	maxHoldParam         = 2.0
	maxOutputGain        = 2.0
)

// atomicFloat is a single-writer/single-reader float cell.
type atomicFloat struct {
	bits atomic.Uint64
}

func (f *atomicFloat) store(v float64) { f.bits.Store(math.Float64bits(v)) }
func (f *atomicFloat) load() float64   { return math.Float64frombits(f.bits.Load()) }

// Params is the thread-safe parameter bus between control collaborators and
// the DSP thread. Writers publish validated target values; the engine reads
// every cell once per block and ramps the audible ones through one-pole
// smoothers.
//
// Every setter validates its domain and returns a [*ConfigError] on a value
// outside it; the cell is left unchanged in that case.
type Params struct {
	leftDelaySeconds  atomicFloat
	rightDelaySeconds atomicFloat
	feedback          atomicFloat
	wetMix            atomicFloat
	dryMix            atomicFloat
	stereoWidth       atomicFloat
	crossFeedback     atomicFloat

	pingPong          atomic.Bool
	delayEnabled      atomic.Bool
	distortionEnabled atomic.Bool

	distortionKind    atomic.Int32
	distortionDrive   atomicFloat
	distortionMix     atomicFloat
	feedbackIntensity atomicFloat

	arpEnabled  atomic.Bool
	tempoBPM    atomicFloat
	pattern     atomic.Int32
	synthKind   atomic.Int32
	arpDuration atomicFloat

	minChordConfidence atomicFloat
	chordHoldSeconds   atomicFloat

	outputGain atomicFloat
}

// NewParams returns a bus loaded with the engine defaults.
func NewParams() *Params {
	p := &Params{}

	p.leftDelaySeconds.store(0.3)
	p.rightDelaySeconds.store(0.6)
	p.feedback.store(0.4)
	p.wetMix.store(0.5)
	p.dryMix.store(1.0)
	p.stereoWidth.store(0.5)
	p.crossFeedback.store(0.2)

	p.delayEnabled.Store(true)

	p.distortionKind.Store(int32(effects.DistortionSoftClip))
	p.distortionDrive.store(0.3)
	p.distortionMix.store(0.7)
	p.feedbackIntensity.store(0.5)

	p.tempoBPM.store(120)
	p.pattern.Store(int32(arp.PatternUp))
	p.synthKind.Store(int32(synth.WaveSaw))
	p.arpDuration.store(2.0)

	p.minChordConfidence.store(0.6)
	p.chordHoldSeconds.store(0.5)

	p.outputGain.store(1.0)

	return p
}

func validateRange(field string, v, lo, hi float64) error {
	if v < lo || v > hi || math.IsNaN(v) || math.IsInf(v, 0) {
		return &ConfigError{
			Field:  field,
			Value:  v,
			Reason: fmt.Sprintf("must be in [%g, %g]", lo, hi),
		}
	}
	return nil
}

// SetLeftDelaySeconds sets the left delay time target in [0.001, 2] s.
func (p *Params) SetLeftDelaySeconds(v float64) error {
	if err := validateRange("left_delay_s", v, minDelayParamSeconds, maxDelayParamSeconds); err != nil {
		return err
	}
	p.leftDelaySeconds.store(v)
	return nil
}

// SetRightDelaySeconds sets the right delay time target in [0.001, 2] s.
func (p *Params) SetRightDelaySeconds(v float64) error {
	if err := validateRange("right_delay_s", v, minDelayParamSeconds, maxDelayParamSeconds); err != nil {
		return err
	}
	p.rightDelaySeconds.store(v)
	return nil
}

// SetFeedback sets delay feedback in [0, 0.9].
func (p *Params) SetFeedback(v float64) error {
	if err := validateRange("feedback", v, 0, maxFeedbackParam); err != nil {
		return err
	}
	p.feedback.store(v)
	return nil
}

// SetWetMix sets the wet gain in [0, 1].
func (p *Params) SetWetMix(v float64) error {
	if err := validateRange("wet_mix", v, 0, 1); err != nil {
		return err
	}
	p.wetMix.store(v)
	return nil
}

// SetDryMix sets the dry gain in [0, 1].
func (p *Params) SetDryMix(v float64) error {
	if err := validateRange("dry_mix", v, 0, 1); err != nil {
		return err
	}
	p.dryMix.store(v)
	return nil
}

// SetPingPong toggles ping-pong delay routing.
func (p *Params) SetPingPong(on bool) { p.pingPong.Store(on) }

// SetDelayEnabled toggles the stereo delay in the chain.
func (p *Params) SetDelayEnabled(on bool) { p.delayEnabled.Store(on) }

// SetStereoWidth sets mid/side width in [0, 1].
func (p *Params) SetStereoWidth(v float64) error {
	if err := validateRange("stereo_width", v, 0, 1); err != nil {
		return err
	}
	p.stereoWidth.store(v)
	return nil
}

// SetCrossFeedback sets cross-channel feedback in [0, 0.5].
func (p *Params) SetCrossFeedback(v float64) error {
	if err := validateRange("cross_feedback", v, 0, maxCrossParam); err != nil {
		return err
	}
	p.crossFeedback.store(v)
	return nil
}

// SetDistortionEnabled toggles the cross-feedback distortion stage.
func (p *Params) SetDistortionEnabled(on bool) { p.distortionEnabled.Store(on) }

// SetDistortionKind selects the distortion transfer function.
func (p *Params) SetDistortionKind(kind effects.DistortionKind) error {
	if kind < effects.DistortionNone || kind > effects.DistortionWaveshaper {
		return &ConfigError{Field: "distortion_kind", Value: kind, Reason: "unknown kind"}
	}
	p.distortionKind.Store(int32(kind))
	return nil
}

// SetDistortionDrive sets distortion drive in [0, 1].
func (p *Params) SetDistortionDrive(v float64) error {
	if err := validateRange("distortion_drive", v, 0, 1); err != nil {
		return err
	}
	p.distortionDrive.store(v)
	return nil
}

// SetDistortionMix sets distortion dry/wet mix in [0, 1].
func (p *Params) SetDistortionMix(v float64) error {
	if err := validateRange("distortion_mix", v, 0, 1); err != nil {
		return err
	}
	p.distortionMix.store(v)
	return nil
}

// SetFeedbackIntensity sets the distorted/clean cross-path blend in [0, 1].
func (p *Params) SetFeedbackIntensity(v float64) error {
	if err := validateRange("distortion_feedback_intensity", v, 0, 1); err != nil {
		return err
	}
	p.feedbackIntensity.store(v)
	return nil
}

// SetArpEnabled toggles the arpeggiator.
func (p *Params) SetArpEnabled(on bool) { p.arpEnabled.Store(on) }

// SetTempoBPM sets the arp tempo in [20, 300] bpm.
func (p *Params) SetTempoBPM(v float64) error {
	if err := validateRange("bpm", v, minBPMParam, maxBPMParam); err != nil {
		return err
	}
	p.tempoBPM.store(v)
	return nil
}

// SetPattern selects the arpeggio pattern.
func (p *Params) SetPattern(pattern arp.Pattern) error {
	if !pattern.Valid() {
		return &ConfigError{Field: "pattern", Value: pattern, Reason: "unknown pattern"}
	}
	p.pattern.Store(int32(pattern))
	return nil
}

// SetSynthKind selects the waveform for new voices.
func (p *Params) SetSynthKind(w synth.Waveform) error {
	if !w.Valid() {
		return &ConfigError{Field: "synth_kind", Value: w, Reason: "unknown waveform"}
	}
	p.synthKind.Store(int32(w))
	return nil
}

// SetArpDurationSeconds sets the arp timeline length in [0.5, 10] s.
func (p *Params) SetArpDurationSeconds(v float64) error {
	if err := validateRange("arp_duration_s", v, minArpDuration, maxArpDuration); err != nil {
		return err
	}
	p.arpDuration.store(v)
	return nil
}

// SetMinChordConfidence sets the detector validity threshold in [0, 1].
func (p *Params) SetMinChordConfidence(v float64) error {
	if err := validateRange("min_chord_confidence", v, 0, 1); err != nil {
		return err
	}
	p.minChordConfidence.store(v)
	return nil
}

// SetChordHoldSeconds sets the detector hysteresis in [0.05, 2] s.
func (p *Params) SetChordHoldSeconds(v float64) error {
	if err := validateRange("chord_hold_time_s", v, minHoldParam, maxHoldParam); err != nil {
		return err
	}
	p.chordHoldSeconds.store(v)
	return nil
}

// SetOutputGain sets the output gain in [0, 2].
func (p *Params) SetOutputGain(v float64) error {
	if err := validateRange("output_gain", v, 0, maxOutputGain); err != nil {
		return err
	}
	p.outputGain.store(v)
	return nil
}

// AudibleParams is the post-smoothing readout of the values the DSP is
// actually using.
type AudibleParams struct {
	LeftDelaySeconds  float64
	RightDelaySeconds float64
	Feedback          float64
	WetMix            float64
	DryMix            float64
	StereoWidth       float64
	CrossFeedback     float64
	DistortionDrive   float64
	DistortionMix     float64
	FeedbackIntensity float64
	OutputGain        float64

	PingPong          bool
	DelayEnabled      bool
	DistortionEnabled bool
	ArpEnabled        bool

	DistortionKind effects.DistortionKind
	Pattern        arp.Pattern
	SynthKind      synth.Waveform
	TempoBPM       float64
	ArpDuration    float64
}
