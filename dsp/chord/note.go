package chord

import (
	"fmt"
	"math"
)

// PitchClass is a note identity modulo octave, numbered from C = 0.
type PitchClass int

// The twelve pitch classes.
const (
	C PitchClass = iota
	CSharp
	D
	DSharp
	E
	F
	FSharp
	G
	GSharp
	A
	ASharp
	B
)

var pitchClassNames = [12]string{
	"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B",
}

// String returns the sharp-spelled name of the pitch class.
func (p PitchClass) String() string {
	if p < 0 || p > B {
		return "?"
	}
	return pitchClassNames[p]
}

// ParsePitchClass maps a sharp-spelled name to its pitch class.
func ParsePitchClass(name string) (PitchClass, error) {
	for i, n := range pitchClassNames {
		if n == name {
			return PitchClass(i), nil
		}
	}
	return 0, fmt.Errorf("unknown pitch class: %q", name)
}

// Transpose returns the pitch class shifted by semitones (may be negative).
func (p PitchClass) Transpose(semitones int) PitchClass {
	v := (int(p) + semitones) % 12
	if v < 0 {
		v += 12
	}
	return PitchClass(v)
}

// refA4 is the equal-temperament tuning reference.
const refA4 = 440.0

// Note is a pitch class placed in a concrete octave (scientific pitch
// notation: A with octave 4 is the 440 Hz reference, C4 is middle C).
type Note struct {
	Class  PitchClass
	Octave int
}

// String returns e.g. "C4" or "F#2".
func (n Note) String() string {
	return fmt.Sprintf("%s%d", n.Class, n.Octave)
}

// midiNumber returns the MIDI note number (C4 = 60, A4 = 69).
func (n Note) midiNumber() int {
	return (n.Octave+1)*12 + int(n.Class)
}

// Frequency returns the equal-temperament frequency in Hz, A4 = 440.
func (n Note) Frequency() float64 {
	return refA4 * math.Pow(2, float64(n.midiNumber()-69)/12)
}

// NoteFromFrequency maps a frequency to the nearest equal-temperament note
// and the deviation from it in cents. Non-positive frequencies yield an
// error.
func NoteFromFrequency(freq float64) (Note, float64, error) {
	if freq <= 0 || math.IsNaN(freq) || math.IsInf(freq, 0) {
		return Note{}, 0, fmt.Errorf("frequency must be > 0: %v", freq)
	}

	exact := 69 + 12*math.Log2(freq/refA4)
	midi := int(math.Round(exact))
	if midi < 0 {
		midi = 0
	}

	n := Note{
		Class:  PitchClass(midi % 12),
		Octave: midi/12 - 1,
	}

	cents := 1200 * math.Log2(freq/n.Frequency())

	return n, cents, nil
}

// DetectedNote is one spectral peak resolved to a note.
type DetectedNote struct {
	Note
	// Strength is the peak magnitude in the analysis spectrum.
	Strength float64
	// Cents is the deviation from the equal-temperament pitch.
	Cents float64
}
