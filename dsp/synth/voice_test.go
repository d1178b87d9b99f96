package synth

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-guitarfx/dsp/chord"
)

func TestVoiceProducesSoundThenFadesOut(t *testing.T) {
	const sampleRate = 48000.0

	for w := WaveSine; w <= WaveBass; w++ {
		t.Run(w.String(), func(t *testing.T) {
			v, err := newVoice(sampleRate)
			if err != nil {
				t.Fatalf("newVoice: %v", err)
			}

			// Quarter second note with a scheduled off.
			v.NoteOn(chord.A, 4, 0.8, w, int64(0.25*sampleRate), 0)

			energy := 0.0
			for i := 0; i < int(0.25*sampleRate); i++ {
				s := v.Process()
				if math.IsNaN(s) || math.IsInf(s, 0) {
					t.Fatalf("sample %d is not finite: %v", i, s)
				}
				energy += s * s
			}
			if energy == 0 {
				t.Fatal("voice produced silence during the note")
			}

			// After the scheduled off plus a generous release window the
			// voice must deactivate.
			for i := 0; i < int(sampleRate) && v.IsActive(); i++ {
				v.Process()
			}
			if v.IsActive() {
				t.Error("voice still active long after scheduled note-off")
			}
		})
	}
}

func TestVoiceFrequencyTracksPitch(t *testing.T) {
	const sampleRate = 48000.0

	v, err := newVoice(sampleRate)
	if err != nil {
		t.Fatalf("newVoice: %v", err)
	}

	v.NoteOn(chord.A, 4, 1, WaveSine, 0, 0)

	// Count zero crossings over one second: a 440 Hz sine has ~880.
	crossings := 0
	prev := v.Process()
	for i := 1; i < int(sampleRate); i++ {
		s := v.Process()
		if (prev < 0 && s >= 0) || (prev > 0 && s <= 0) {
			crossings++
		}
		prev = s
	}

	if crossings < 850 || crossings > 910 {
		t.Errorf("zero crossings = %d, want ~880 for A4", crossings)
	}
}

func TestVoiceVelocityScalesOutput(t *testing.T) {
	const sampleRate = 8000.0

	render := func(velocity float64) float64 {
		v, err := newVoice(sampleRate)
		if err != nil {
			t.Fatalf("newVoice: %v", err)
		}
		v.NoteOn(chord.C, 4, velocity, WaveSine, 0, 0)

		peak := 0.0
		for i := 0; i < 4000; i++ {
			if a := math.Abs(v.Process()); a > peak {
				peak = a
			}
		}
		return peak
	}

	loud := render(1.0)
	quiet := render(0.25)

	if quiet >= loud {
		t.Errorf("velocity scaling broken: quiet=%v loud=%v", quiet, loud)
	}
	if math.Abs(quiet/loud-0.25) > 0.05 {
		t.Errorf("velocity ratio = %v, want ~0.25", quiet/loud)
	}
}

func TestVoiceRecycleCarriesNoState(t *testing.T) {
	const sampleRate = 8000.0

	v, err := newVoice(sampleRate)
	if err != nil {
		t.Fatalf("newVoice: %v", err)
	}

	v.NoteOn(chord.C, 4, 1, WaveLead, 0, 0)
	for i := 0; i < 8000; i++ {
		v.Process()
	}
	v.Stop()

	// Recycled as a sine: the lead filter state must not bleed in.
	v.NoteOn(chord.A, 4, 1, WaveSine, 0, 0)

	first := v.Process()
	if math.Abs(first) > 0.2 {
		t.Errorf("first sample after recycle = %v, want near 0 (fresh attack)", first)
	}
	if v.Age() != 1 {
		t.Errorf("age after one sample = %d, want 1", v.Age())
	}
}
