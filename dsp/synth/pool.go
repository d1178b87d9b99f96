package synth

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/cwbudde/algo-guitarfx/dsp/chord"
)

const (
	// MinVoices is the smallest allowed pool size.
	MinVoices = 32

	// limiterCeiling is the block peak above which the mixed output is
	// normalized.
	limiterCeiling = 0.99
)

// Pool is a bounded polyphonic voice pool with a stereo mixer.
//
// All voices are allocated at construction; NoteOn recycles the oldest
// released voice when none is free and reports exhaustion when even that
// fails. The mixer normalizes any block whose peak exceeds the ceiling, a
// soft substitute for a look-ahead limiter.
type Pool struct {
	sampleRate float64
	voices     []*Voice

	exhausted atomic.Int64
}

// NewPool allocates a pool of size voices (minimum 32).
func NewPool(sampleRate float64, size int) (*Pool, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("voice pool sample rate must be > 0: %f", sampleRate)
	}
	if size < MinVoices {
		return nil, fmt.Errorf("voice pool size must be >= %d: %d", MinVoices, size)
	}

	voices := make([]*Voice, size)
	for i := range voices {
		v, err := newVoice(sampleRate)
		if err != nil {
			return nil, err
		}
		voices[i] = v
	}

	return &Pool{
		sampleRate: sampleRate,
		voices:     voices,
	}, nil
}

// NoteOn starts a note, stealing the oldest released voice if the pool is
// fully busy. delaySamples offsets the onset within the next mixed block
// for sample-accurate scheduling. It returns false and counts the event
// when no voice can be claimed.
func (p *Pool) NoteOn(class chord.PitchClass, octave int, velocity float64, waveform Waveform, durationSamples, delaySamples int64) bool {
	v := p.claim()
	if v == nil {
		p.exhausted.Add(1)
		return false
	}

	v.NoteOn(class, octave, velocity, waveform, durationSamples, delaySamples)

	return true
}

// claim returns a free voice, or the oldest released one, or nil.
func (p *Pool) claim() *Voice {
	var oldestReleased *Voice

	for _, v := range p.voices {
		if !v.IsActive() {
			return v
		}
		if v.IsReleased() {
			if oldestReleased == nil || v.Age() > oldestReleased.Age() {
				oldestReleased = v
			}
		}
	}

	return oldestReleased
}

// ReleaseAll moves every sounding voice into its release tail.
func (p *Pool) ReleaseAll() {
	for _, v := range p.voices {
		v.Release()
	}
}

// StopAll silences every voice immediately.
func (p *Pool) StopAll() {
	for _, v := range p.voices {
		v.Stop()
	}
}

// ActiveCount returns the number of sounding voices.
func (p *Pool) ActiveCount() int {
	n := 0
	for _, v := range p.voices {
		if v.IsActive() {
			n++
		}
	}
	return n
}

// Exhausted returns how many NoteOn calls found no voice.
func (p *Pool) Exhausted() int64 { return p.exhausted.Load() }

// MixBlock sums all active voices into left and right (overwriting them)
// and returns the block peak after limiting. Both slices must have the same
// length.
func (p *Pool) MixBlock(left, right []float64) float64 {
	n := len(left)
	if len(right) < n {
		n = len(right)
	}

	for i := 0; i < n; i++ {
		left[i] = 0
	}

	for _, v := range p.voices {
		if !v.IsActive() {
			continue
		}
		for i := 0; i < n; i++ {
			left[i] += v.Process()
		}
	}

	peak := 0.0
	for i := 0; i < n; i++ {
		if a := math.Abs(left[i]); a > peak {
			peak = a
		}
	}

	if peak > limiterCeiling {
		scale := limiterCeiling / peak
		for i := 0; i < n; i++ {
			left[i] *= scale
		}
		peak = limiterCeiling
	}

	copy(right[:n], left[:n])

	return peak
}
