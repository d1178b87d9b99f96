package arp

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/cwbudde/algo-guitarfx/dsp/chord"
)

const (
	minTempoBPM = 20.0
	maxTempoBPM = 300.0
	minDuration = 0.5
	maxDuration = 10.0

	defaultOctave = 4
)

// Note is one scheduled arpeggio note.
type Note struct {
	Class  chord.PitchClass
	Octave int
	// Start is seconds from the beginning of the arpeggio.
	Start float64
	// Duration is the note length in seconds.
	Duration float64
	// Velocity is the note strength in [0, 1].
	Velocity float64
}

// Generate expands a chord's pitch classes into a note timeline for the
// given pattern. Start times are non-decreasing; generation stops once the
// cursor reaches duration. An empty class list yields an empty timeline.
//
// Patterns with random elements draw from rng; pass a seeded source to make
// the result reproducible. rng may be nil for the deterministic patterns.
func Generate(classes []chord.PitchClass, pattern Pattern, tempoBPM, duration float64, rng *rand.Rand) ([]Note, error) {
	if !pattern.Valid() {
		return nil, fmt.Errorf("arp pattern is invalid: %d", pattern)
	}
	if tempoBPM < minTempoBPM || tempoBPM > maxTempoBPM || math.IsNaN(tempoBPM) {
		return nil, fmt.Errorf("arp tempo must be in [%g, %g] bpm: %f", minTempoBPM, maxTempoBPM, tempoBPM)
	}
	if duration < minDuration || duration > maxDuration || math.IsNaN(duration) {
		return nil, fmt.Errorf("arp duration must be in [%g, %g] s: %f", minDuration, maxDuration, duration)
	}

	if len(classes) == 0 {
		return nil, nil
	}

	if needsRand(pattern) && rng == nil {
		return nil, fmt.Errorf("arp pattern %s requires a random source", pattern)
	}

	sorted := append([]chord.PitchClass(nil), classes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	g := generator{
		classes:  sorted,
		tempoBPM: tempoBPM,
		duration: duration,
		rng:      rng,
	}

	var notes []Note
	switch pattern {
	case PatternUp:
		notes = g.walk(g.classes, 2, flatVelocity(0.8))
	case PatternDown:
		notes = g.walk(reversed(g.classes), 2, flatVelocity(0.8))
	case PatternUpDown:
		notes = g.walk(upDown(g.classes), 2, flatVelocity(0.8))
	case PatternDownUp:
		notes = g.walk(downUp(g.classes), 2, flatVelocity(0.8))
	case PatternRandom:
		notes = g.random()
	case PatternOctaveUp:
		notes = g.octaves([]int{3, 4, 5}, g.classes)
	case PatternOctaveDown:
		notes = g.octaves([]int{5, 4, 3}, reversed(g.classes))
	case PatternTrance16th:
		notes = g.walk(g.classes, 4, emphasisVelocity([]float64{1.0, 0.6, 0.8, 0.7}, 0.8))
	case PatternDubstepChop:
		notes = g.dubstepChop()
	case PatternAmbientFlow:
		notes = g.ambientFlow()
	case PatternRockEighth:
		notes = g.rockEighth()
	default:
		return nil, fmt.Errorf("arp pattern is invalid: %d", pattern)
	}

	return clampToDuration(notes, duration), nil
}

// clampToDuration enforces the timeline contract: no note starts at or past
// the end, and no note rings beyond it.
func clampToDuration(notes []Note, duration float64) []Note {
	kept := notes[:0]
	for _, n := range notes {
		if n.Start >= duration {
			continue
		}
		if n.Start+n.Duration > duration {
			n.Duration = duration - n.Start
		}
		kept = append(kept, n)
	}
	return kept
}

func needsRand(p Pattern) bool {
	switch p {
	case PatternRandom, PatternDubstepChop, PatternAmbientFlow:
		return true
	default:
		return false
	}
}

type generator struct {
	classes  []chord.PitchClass
	tempoBPM float64
	duration float64
	rng      *rand.Rand
}

// beatDuration returns the step length for a subdivision of the beat:
// 2 for eighth notes, 4 for sixteenths.
func (g *generator) beatDuration(subdivision float64) float64 {
	return 60 / (g.tempoBPM * subdivision)
}

// walk emits the sequence cyclically at the given subdivision until the
// cursor reaches the configured duration.
func (g *generator) walk(sequence []chord.PitchClass, subdivision float64, velocity func(step int) float64) []Note {
	dur := g.beatDuration(subdivision)

	var notes []Note
	t := 0.0
	for step := 0; t < g.duration; step++ {
		notes = append(notes, Note{
			Class:    sequence[step%len(sequence)],
			Octave:   defaultOctave,
			Start:    t,
			Duration: dur,
			Velocity: velocity(step),
		})
		t += dur
	}

	return notes
}

func (g *generator) random() []Note {
	dur := g.beatDuration(2)

	// Uniform without replacement: a bag refilled when empty.
	bag := make([]chord.PitchClass, 0, len(g.classes))

	var notes []Note
	for t := 0.0; t < g.duration; t += dur {
		if len(bag) == 0 {
			bag = append(bag, g.classes...)
			g.rng.Shuffle(len(bag), func(i, j int) { bag[i], bag[j] = bag[j], bag[i] })
		}

		pick := bag[len(bag)-1]
		bag = bag[:len(bag)-1]

		notes = append(notes, Note{
			Class:    pick,
			Octave:   defaultOctave,
			Start:    t,
			Duration: dur,
			Velocity: 0.6 + 0.3*g.rng.Float64(),
		})
	}

	return notes
}

func (g *generator) octaves(octaveCycle []int, sequence []chord.PitchClass) []Note {
	dur := g.beatDuration(4)

	var notes []Note
	t := 0.0
	for t < g.duration {
		for _, octave := range octaveCycle {
			for _, class := range sequence {
				if t >= g.duration {
					return notes
				}

				velocity := 0.7 + float64(octave-3)*0.1

				notes = append(notes, Note{
					Class:    class,
					Octave:   octave,
					Start:    t,
					Duration: dur,
					Velocity: velocity,
				})
				t += dur
			}
		}
	}

	return notes
}

// dubstepChop follows a long-short-rest-long beat grid; the third slot emits
// silence and the sounding slots are shortened for the chopped articulation.
func (g *generator) dubstepChop() []Note {
	beat := 60 / g.tempoBPM
	grid := []float64{0.5, 0.25, 0.25, 0.5}

	var notes []Note
	t := 0.0
	for t < g.duration {
		for i, fraction := range grid {
			if t >= g.duration {
				break
			}

			slot := beat * fraction

			if i != 2 {
				velocity := 0.7
				if i == 0 {
					velocity = 0.9
				}

				notes = append(notes, Note{
					Class:    g.classes[g.rng.Intn(len(g.classes))],
					Octave:   3 + g.rng.Intn(3),
					Start:    t,
					Duration: slot * 0.8,
					Velocity: velocity,
				})
			}

			t += slot
		}
	}

	return notes
}

// ambientFlow emits long overlapping notes with loose timing and level.
func (g *generator) ambientFlow() []Note {
	dur := g.beatDuration(0.5)

	var notes []Note
	t := 0.0
	for t < g.duration {
		for _, class := range g.classes {
			if t >= g.duration {
				break
			}

			start := t + (g.rng.Float64()*0.2 - 0.1)
			if start < 0 {
				start = 0
			}

			notes = append(notes, Note{
				Class:    class,
				Octave:   3 + g.rng.Intn(3),
				Start:    start,
				Duration: dur * (0.8 + 0.7*g.rng.Float64()),
				Velocity: 0.3 + 0.3*g.rng.Float64(),
			})

			t += dur * 0.75
		}
	}

	sort.Slice(notes, func(i, j int) bool { return notes[i].Start < notes[j].Start })

	return notes
}

func (g *generator) rockEighth() []Note {
	dur := g.beatDuration(2)
	emphasis := []float64{1.0, 0.7, 0.9, 0.7}

	var notes []Note
	t := 0.0
	for step := 0; t < g.duration; step++ {
		notes = append(notes, Note{
			Class:    g.classes[step%len(g.classes)],
			Octave:   defaultOctave,
			Start:    t,
			Duration: dur * 0.9,
			Velocity: emphasis[step%len(emphasis)] * 0.8,
		})
		t += dur
	}

	return notes
}

func flatVelocity(v float64) func(int) float64 {
	return func(int) float64 { return v }
}

func emphasisVelocity(emphasis []float64, scale float64) func(int) float64 {
	return func(step int) float64 {
		return emphasis[step%len(emphasis)] * scale
	}
}

func reversed(classes []chord.PitchClass) []chord.PitchClass {
	out := make([]chord.PitchClass, len(classes))
	for i, c := range classes {
		out[len(classes)-1-i] = c
	}
	return out
}

// upDown walks up then back down without repeating the endpoints.
func upDown(classes []chord.PitchClass) []chord.PitchClass {
	if len(classes) <= 2 {
		return classes
	}

	out := append([]chord.PitchClass(nil), classes...)
	for i := len(classes) - 2; i >= 1; i-- {
		out = append(out, classes[i])
	}
	return out
}

// downUp walks down then back up without repeating the endpoints.
func downUp(classes []chord.PitchClass) []chord.PitchClass {
	return upDown(reversed(classes))
}
