package chord

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/cwbudde/algo-guitarfx/dsp/spectrum"
)

// guitarStrings lists the standard-tuning open strings, low to high.
var guitarStrings = [6]Note{
	{Class: E, Octave: 2},
	{Class: A, Octave: 2},
	{Class: D, Octave: 3},
	{Class: G, Octave: 3},
	{Class: B, Octave: 3},
	{Class: E, Octave: 4},
}

const (
	// tunerProbeCents is the detune of the side probes used to estimate
	// how far the played string is from pitch.
	tunerProbeCents = 25.0

	tunerWindowSeconds = 0.1

	// tunerMinPower gates readings so silence does not produce noise.
	tunerMinPower = 1e-4
)

// StringReading is a tuner result for one guitar string.
type StringReading struct {
	// OpenString is the matched open-string note, e.g. E2.
	OpenString Note
	// Cents is the estimated deviation from pitch, negative = flat.
	Cents float64
	// Level is the detected power at the string fundamental.
	Level float64
}

// Tuner estimates which open guitar string is sounding and how far off
// pitch it is. It runs three Goertzel probes per string (center and +/-25
// cents) and fits a parabola over their powers, which is far cheaper than a
// full FFT at tuning resolution.
type Tuner struct {
	sampleRate    float64
	windowSamples int
	processed     int

	probes [6][3]*spectrum.Goertzel

	current atomic.Pointer[StringReading]
}

// NewTuner creates a tuner for the given sample rate.
func NewTuner(sampleRate float64) (*Tuner, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("tuner sample rate must be > 0: %f", sampleRate)
	}

	t := &Tuner{
		sampleRate:    sampleRate,
		windowSamples: int(sampleRate * tunerWindowSeconds),
	}

	detune := math.Pow(2, tunerProbeCents/1200)

	for i, s := range guitarStrings {
		f := s.Frequency()
		for j, probeFreq := range [3]float64{f / detune, f, f * detune} {
			g, err := spectrum.NewGoertzel(probeFreq, sampleRate)
			if err != nil {
				return nil, err
			}
			t.probes[i][j] = g
		}
	}

	return t, nil
}

// ProcessBlock feeds input samples; a fresh reading is published every
// 100 ms window.
func (t *Tuner) ProcessBlock(samples []float64) {
	for i := range t.probes {
		for j := range t.probes[i] {
			t.probes[i][j].ProcessBlock(samples)
		}
	}

	t.processed += len(samples)
	if t.processed < t.windowSamples {
		return
	}
	t.processed = 0

	t.publish()

	for i := range t.probes {
		for j := range t.probes[i] {
			t.probes[i][j].Reset()
		}
	}
}

// Reading returns the latest reading; ok is false before the first window
// completes or when the input is too quiet to call.
func (t *Tuner) Reading() (StringReading, bool) {
	r := t.current.Load()
	if r == nil {
		return StringReading{}, false
	}
	return *r, true
}

// Reset drops probe state and the published reading.
func (t *Tuner) Reset() {
	for i := range t.probes {
		for j := range t.probes[i] {
			t.probes[i][j].Reset()
		}
	}
	t.processed = 0
	t.current.Store(nil)
}

func (t *Tuner) publish() {
	bestString := -1
	bestPower := 0.0

	var powers [6][3]float64
	for i := range t.probes {
		for j := range t.probes[i] {
			powers[i][j] = t.probes[i][j].Power()
		}
		if powers[i][1] > bestPower {
			bestPower = powers[i][1]
			bestString = i
		}
	}

	norm := float64(t.windowSamples) * float64(t.windowSamples)
	if bestString < 0 || bestPower/norm < tunerMinPower {
		t.current.Store(nil)
		return
	}

	low, center, high := powers[bestString][0], powers[bestString][1], powers[bestString][2]

	cents := 0.0
	if denom := low - 2*center + high; denom != 0 {
		delta := 0.5 * (low - high) / denom
		cents = delta * tunerProbeCents
		if cents > tunerProbeCents {
			cents = tunerProbeCents
		}
		if cents < -tunerProbeCents {
			cents = -tunerProbeCents
		}
	}

	reading := StringReading{
		OpenString: guitarStrings[bestString],
		Cents:  cents,
		Level:  bestPower / norm,
	}
	t.current.Store(&reading)
}
