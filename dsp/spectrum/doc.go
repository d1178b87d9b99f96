// Package spectrum provides the frequency-domain helpers behind the chord
// detector and tuner: magnitude computation over FFT bins, single-bin
// Goertzel analysis, and in-band spectral peak picking.
package spectrum
