// Package synth renders arpeggio notes into audio: per-voice oscillators
// with ADSR envelopes, summed by a bounded polyphonic pool.
package synth

import "fmt"

// Waveform selects the oscillator algorithm of a voice.
type Waveform int

// Supported waveforms.
const (
	WaveSine Waveform = iota
	WaveSquare
	WaveSaw
	WaveTriangle
	WaveFM
	WavePluck
	WavePad
	WaveLead
	WaveBass
)

var waveformNames = map[Waveform]string{
	WaveSine:     "sine",
	WaveSquare:   "square",
	WaveSaw:      "saw",
	WaveTriangle: "triangle",
	WaveFM:       "fm",
	WavePluck:    "pluck",
	WavePad:      "pad",
	WaveLead:     "lead",
	WaveBass:     "bass",
}

// String returns the lowercase waveform name.
func (w Waveform) String() string {
	if name, ok := waveformNames[w]; ok {
		return name
	}
	return "unknown"
}

// ParseWaveform maps a waveform name to its enum value.
func ParseWaveform(name string) (Waveform, error) {
	for w, n := range waveformNames {
		if n == name {
			return w, nil
		}
	}
	return 0, fmt.Errorf("unknown waveform: %q", name)
}

// Valid reports whether w is one of the defined waveforms.
func (w Waveform) Valid() bool {
	_, ok := waveformNames[w]
	return ok
}

// envelopeDefaults returns per-waveform ADSR times (seconds) and sustain
// level. Percussive kinds get fast attacks and short releases; pads get the
// opposite.
func envelopeDefaults(w Waveform) (attack, decay, sustain, release float64) {
	switch w {
	case WavePluck:
		return 0.002, 0.08, 0.25, 0.15
	case WavePad:
		return 0.10, 0.15, 0.75, 0.30
	case WaveLead:
		return 0.01, 0.08, 0.80, 0.10
	case WaveBass:
		return 0.05, 0.10, 0.80, 0.40
	case WaveFM:
		return 0.01, 0.12, 0.65, 0.20
	default: // sine, square, saw, triangle
		return 0.05, 0.10, 0.70, 0.20
	}
}
