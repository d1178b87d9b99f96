package synth

import (
	"math"

	"github.com/cwbudde/algo-guitarfx/dsp/chord"
)

const (
	// fmModulatorRatio and fmIndex define the two-operator FM patch: a
	// slightly inharmonic modulator for a bell-like bite.
	fmModulatorRatio = 2.1
	fmIndex          = 3.0

	// padDetuneCents spreads the pad's saw layers.
	padDetuneCents = 7.0
)

// Voice renders one active note. Voices are pool-owned values; all state is
// reset on NoteOn so a recycled voice carries nothing over.
type Voice struct {
	sampleRate float64

	note     chord.PitchClass
	octave   int
	waveform Waveform

	frequency float64
	phaseInc  float64

	phase     float64
	modPhase  float64
	subPhase  float64
	padUp     float64
	padDown   float64
	padDetune float64

	env  *ADSR
	gain float64

	lowpass  onePoleLP
	resonant svfLP

	noiseState uint64

	active   bool
	released bool
	age      int64

	// remaining counts samples until the scheduled note-off; negative
	// means no scheduled off (the pool releases explicitly).
	remaining int64

	// startDelay holds the voice silent for a sample-accurate onset
	// within the block that triggered it.
	startDelay int64
}

func newVoice(sampleRate float64) (*Voice, error) {
	env, err := NewADSR(sampleRate, 0.05, 0.1, 0.7, 0.2)
	if err != nil {
		return nil, err
	}

	return &Voice{
		sampleRate: sampleRate,
		env:        env,
		noiseState: 0x9e3779b97f4a7c15,
	}, nil
}

// NoteOn starts the voice at the given pitch. durationSamples > 0 schedules
// an automatic release after that many samples; delaySamples holds the
// onset back for a sample-accurate start inside the current block.
func (v *Voice) NoteOn(class chord.PitchClass, octave int, velocity float64, waveform Waveform, durationSamples, delaySamples int64) {
	v.note = class
	v.octave = octave
	v.waveform = waveform

	v.frequency = chord.Note{Class: class, Octave: octave}.Frequency()
	v.phaseInc = v.frequency / v.sampleRate

	v.phase = 0
	v.modPhase = 0
	v.subPhase = 0
	v.padUp = 0
	v.padDown = 0

	if velocity < 0 {
		velocity = 0
	}
	if velocity > 1 {
		velocity = 1
	}
	v.gain = velocity

	attack, decay, sustain, release := envelopeDefaults(waveform)
	v.env.Configure(attack, decay, sustain, release)
	v.env.Reset()
	v.env.Trigger()

	v.lowpass.reset()
	v.resonant.reset()

	switch waveform {
	case WavePluck:
		v.lowpass.setCutoff(4*v.frequency, v.sampleRate)
	case WaveLead:
		v.resonant.configure(4*v.frequency, 0.7, v.sampleRate)
	case WavePad:
		v.lowpass.setCutoff(6*v.frequency, v.sampleRate)
		v.padDetune = math.Pow(2, padDetuneCents/1200)
	}

	v.active = true
	v.released = false
	v.age = 0
	v.remaining = durationSamples
	if durationSamples <= 0 {
		v.remaining = -1
	}
	v.startDelay = delaySamples
	if delaySamples < 0 {
		v.startDelay = 0
	}
}

// Release starts the envelope release tail.
func (v *Voice) Release() {
	if !v.active || v.released {
		return
	}
	v.released = true
	v.env.Release()
}

// Stop silences the voice immediately.
func (v *Voice) Stop() {
	v.active = false
	v.released = false
	v.env.Reset()
}

// IsActive reports whether the voice still produces signal.
func (v *Voice) IsActive() bool { return v.active }

// IsReleased reports whether the voice is in its release tail.
func (v *Voice) IsReleased() bool { return v.released }

// Age returns how many samples the voice has been sounding.
func (v *Voice) Age() int64 { return v.age }

// Process renders one mono sample.
func (v *Voice) Process() float64 {
	if !v.active {
		return 0
	}

	if v.startDelay > 0 {
		v.startDelay--
		return 0
	}

	if v.remaining > 0 {
		v.remaining--
		if v.remaining == 0 {
			v.Release()
		}
	}

	level := v.env.Process()
	if !v.env.IsActive() {
		v.active = false
		return 0
	}

	sample := v.oscillate()
	v.age++

	return sample * level * v.gain
}

func (v *Voice) oscillate() float64 {
	var sample float64

	switch v.waveform {
	case WaveSine:
		sample = math.Sin(2 * math.Pi * v.phase)
	case WaveSquare:
		sample = squareFromPhase(v.phase)
	case WaveSaw:
		sample = sawFromPhase(v.phase)
	case WaveTriangle:
		sample = triangleFromPhase(v.phase)
	case WaveFM:
		mod := math.Sin(2 * math.Pi * v.modPhase)
		sample = math.Sin(2*math.Pi*v.phase + fmIndex*mod)
		v.modPhase = wrapPhase(v.modPhase + v.phaseInc*fmModulatorRatio)
	case WavePluck:
		sample = v.lowpass.process(v.nextNoise())
	case WavePad:
		sample = 0.5*sawFromPhase(v.phase) +
			0.3*sawFromPhase(v.padUp) +
			0.3*sawFromPhase(v.padDown)
		sample = v.lowpass.process(sample)
		v.padUp = wrapPhase(v.padUp + v.phaseInc*v.padDetune)
		v.padDown = wrapPhase(v.padDown + v.phaseInc/v.padDetune)
	case WaveLead:
		raw := sawFromPhase(v.phase) + 0.3*squareFromPhase(v.phase)
		sample = v.resonant.process(raw)
	case WaveBass:
		sub := math.Sin(2 * math.Pi * v.subPhase)
		sample = math.Sin(2*math.Pi*v.phase) + 0.3*squareFromPhase(v.phase) + 0.4*sub
		v.subPhase = wrapPhase(v.subPhase + v.phaseInc/2)
	default:
		sample = math.Sin(2 * math.Pi * v.phase)
	}

	v.phase = wrapPhase(v.phase + v.phaseInc)

	return sample
}

// nextNoise is a xorshift64* generator: allocation-free white noise for the
// pluck burst, independent of the global rand state.
func (v *Voice) nextNoise() float64 {
	x := v.noiseState
	x ^= x >> 12
	x ^= x << 25
	x ^= x >> 27
	v.noiseState = x

	return float64(x*0x2545f4914f6cdd1d>>11)/float64(1<<53)*2 - 1
}

func wrapPhase(p float64) float64 {
	if p >= 1 {
		p -= math.Floor(p)
	}
	return p
}

func sawFromPhase(p float64) float64 {
	return 2*p - 1
}

func squareFromPhase(p float64) float64 {
	if p < 0.5 {
		return 1
	}
	return -1
}

func triangleFromPhase(p float64) float64 {
	return 4*math.Abs(p-0.5) - 1
}
