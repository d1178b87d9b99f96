package synth

import (
	"fmt"
	"math"
)

// envelopeStage is the current ADSR stage.
type envelopeStage int

const (
	stageIdle envelopeStage = iota
	stageAttack
	stageDecay
	stageSustain
	stageRelease
)

const (
	minEnvelopeTime = 0.001

	// attackOvershoot makes the exponential attack reach 1.0 in roughly
	// the configured time instead of approaching it forever.
	attackOvershoot = 1.1

	// silenceFloor ends the release stage.
	silenceFloor = 1e-4
)

// ADSR is an exponential-approach attack/decay/sustain/release envelope.
// Stage times are independent of the note duration; release starts whenever
// Release is called.
type ADSR struct {
	sampleRate float64

	attack  float64
	decay   float64
	sustain float64
	release float64

	attackCoeff  float64
	decayCoeff   float64
	releaseCoeff float64

	stage envelopeStage
	value float64
}

// NewADSR creates an envelope with the given stage parameters. Times are in
// seconds (minimum 1 ms); sustain is a level in [0, 1].
func NewADSR(sampleRate, attack, decay, sustain, release float64) (*ADSR, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("adsr sample rate must be > 0: %f", sampleRate)
	}
	if sustain < 0 || sustain > 1 || math.IsNaN(sustain) {
		return nil, fmt.Errorf("adsr sustain must be in [0, 1]: %f", sustain)
	}
	for _, v := range []float64{attack, decay, release} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("adsr stage times must be >= 0: %f", v)
		}
	}

	e := &ADSR{
		sampleRate: sampleRate,
		attack:     math.Max(minEnvelopeTime, attack),
		decay:      math.Max(minEnvelopeTime, decay),
		sustain:    sustain,
		release:    math.Max(minEnvelopeTime, release),
	}
	e.updateCoefficients()

	return e, nil
}

// Configure replaces all stage parameters at once, keeping the current
// stage and level so it is safe mid-note.
func (e *ADSR) Configure(attack, decay, sustain, release float64) {
	e.attack = math.Max(minEnvelopeTime, attack)
	e.decay = math.Max(minEnvelopeTime, decay)
	if sustain < 0 {
		sustain = 0
	}
	if sustain > 1 {
		sustain = 1
	}
	e.sustain = sustain
	e.release = math.Max(minEnvelopeTime, release)
	e.updateCoefficients()
}

func (e *ADSR) updateCoefficients() {
	e.attackCoeff = stageCoeff(e.attack, e.sampleRate)
	e.decayCoeff = stageCoeff(e.decay, e.sampleRate)
	e.releaseCoeff = stageCoeff(e.release, e.sampleRate)
}

// stageCoeff sizes a one-pole step so the stage spans roughly its nominal
// time (the curve covers ~5 time constants before it is inaudibly close).
func stageCoeff(seconds, sampleRate float64) float64 {
	return 1 - math.Exp(-5/(seconds*sampleRate))
}

// Trigger starts (or retriggers) the envelope from its current level.
func (e *ADSR) Trigger() {
	e.stage = stageAttack
}

// Release moves to the release stage from wherever the envelope is.
func (e *ADSR) Release() {
	if e.stage != stageIdle {
		e.stage = stageRelease
	}
}

// Reset snaps the envelope to idle silence.
func (e *ADSR) Reset() {
	e.stage = stageIdle
	e.value = 0
}

// IsActive reports whether the envelope still produces signal.
func (e *ADSR) IsActive() bool {
	return e.stage != stageIdle
}

// Released reports whether the envelope is in its release tail.
func (e *ADSR) Released() bool {
	return e.stage == stageRelease
}

// Process advances one sample and returns the envelope level in [0, 1].
func (e *ADSR) Process() float64 {
	switch e.stage {
	case stageAttack:
		e.value += e.attackCoeff * (attackOvershoot - e.value)
		if e.value >= 1 {
			e.value = 1
			e.stage = stageDecay
		}
	case stageDecay:
		e.value += e.decayCoeff * (e.sustain - e.value)
		if e.value-e.sustain < silenceFloor {
			e.stage = stageSustain
		}
	case stageSustain:
		e.value = e.sustain
		if e.value <= silenceFloor {
			e.stage = stageIdle
			e.value = 0
		}
	case stageRelease:
		e.value += e.releaseCoeff * (0 - e.value)
		if e.value <= silenceFloor {
			e.value = 0
			e.stage = stageIdle
		}
	case stageIdle:
		return 0
	}

	return e.value
}
