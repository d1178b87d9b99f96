// Package host abstracts the audio backend that drives the engine: a fixed
// sample rate and block size, and a periodic callback exchanging interleaved
// stereo blocks.
package host

// Callback processes one block: read frames from in, write frames to out.
// Both are interleaved stereo ([L0 R0 L1 R1 ...], 2*frames samples). The
// callback must complete in less than frames/sampleRate seconds.
type Callback func(in, out []float64, frames int)

// InputSource fills in with frames stereo frames of input signal. Hosts
// without a capture path (playback-only backends) use it to synthesize the
// input bus; a nil source means silence.
type InputSource func(in []float64, frames int)

// Host delivers a periodic audio callback at a fixed rate and block size.
type Host interface {
	// SampleRate returns the session sample rate in Hz.
	SampleRate() int
	// BlockSize returns the frames-per-callback block size.
	BlockSize() int
	// Start begins delivering callbacks. It fails if already started.
	Start(cb Callback) error
	// Stop ceases callbacks and releases the device.
	Stop() error
}
