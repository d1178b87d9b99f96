package spectrum

import (
	"github.com/cwbudde/algo-vecmath"
)

// Magnitude returns |X[k]| for each complex spectrum bin.
//
// Scratch-free convenience; streaming callers should hold re/im scratch and
// use [MagnitudeFromParts] instead.
func Magnitude(in []complex128) []float64 {
	if len(in) == 0 {
		return nil
	}

	out := make([]float64, len(in))
	re := make([]float64, len(in))
	im := make([]float64, len(in))

	MagnitudeInto(out, in, re, im)

	return out
}

// MagnitudeInto computes |X[k]| into dst using caller-owned re/im scratch.
// All slices must have the same length as in. This is the allocation-free
// path used once per analysis frame.
func MagnitudeInto(dst []float64, in []complex128, re, im []float64) {
	for i, c := range in {
		re[i] = real(c)
		im[i] = imag(c)
	}

	vecmath.Magnitude(dst, re, im)
}

// MagnitudeFromParts computes |X[k]| = sqrt(re[k]^2 + im[k]^2) into dst.
func MagnitudeFromParts(dst, re, im []float64) {
	vecmath.Magnitude(dst, re, im)
}

// BinFrequency returns the center frequency of FFT bin k.
func BinFrequency(k, fftSize int, sampleRate float64) float64 {
	return float64(k) * sampleRate / float64(fftSize)
}

// FrequencyBin returns the fractional FFT bin of a frequency.
func FrequencyBin(freq float64, fftSize int, sampleRate float64) float64 {
	return freq * float64(fftSize) / sampleRate
}
