package host

import "math"

// ToneSource returns an InputSource producing a sum of sines at the given
// frequencies, scaled so the mix peaks near amplitude. Useful for driving
// the chord detector on playback-only hosts.
func ToneSource(freqs []float64, sampleRate int, amplitude float64) InputSource {
	phases := make([]float64, len(freqs))

	return func(in []float64, frames int) {
		if len(freqs) == 0 {
			return
		}

		scale := amplitude / float64(len(freqs))
		for i := 0; i < frames; i++ {
			s := 0.0
			for j, f := range freqs {
				s += math.Sin(2 * math.Pi * phases[j])
				phases[j] += f / float64(sampleRate)
				if phases[j] >= 1 {
					phases[j] -= 1
				}
			}
			s *= scale

			in[2*i] = s
			in[2*i+1] = s
		}
	}
}
