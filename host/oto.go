package host

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/ebitengine/oto/v3"
)

const bytesPerFrame = 8 // stereo float32 little-endian

// pullReader adapts a block callback to the byte-oriented io.Reader the oto
// player pulls from. Each Read renders whole blocks and converts float64
// frames to float32 LE, carrying partial-block remainders between calls.
type pullReader struct {
	blockSize int
	source    InputSource
	cb        Callback

	in  []float64
	out []float64

	// pcm holds one encoded block; stash is the not-yet-consumed tail of
	// it carried between Read calls.
	pcm   []byte
	stash []byte
}

func newPullReader(blockSize int, source InputSource, cb Callback) *pullReader {
	return &pullReader{
		blockSize: blockSize,
		source:    source,
		cb:        cb,
		in:        make([]float64, 2*blockSize),
		out:       make([]float64, 2*blockSize),
		pcm:       make([]byte, blockSize*bytesPerFrame),
	}
}

// Read renders as many whole blocks as fit into p, carrying any remainder
// over to the next call.
func (r *pullReader) Read(p []byte) (int, error) {
	n := 0

	// Serve leftover bytes from the previous block first.
	if len(r.stash) > 0 {
		c := copy(p, r.stash)
		r.stash = r.stash[c:]
		n += c
		if n == len(p) {
			return n, nil
		}
	}

	for n < len(p) {
		r.renderBlock()
		r.encodeBlock()

		c := copy(p[n:], r.pcm)
		n += c
		if c < len(r.pcm) {
			r.stash = r.pcm[c:]
			break
		}
	}

	return n, nil
}

func (r *pullReader) renderBlock() {
	for i := range r.in {
		r.in[i] = 0
	}
	if r.source != nil {
		r.source(r.in, r.blockSize)
	}

	r.cb(r.in, r.out, r.blockSize)
}

// encodeBlock converts the rendered block to float32 little-endian bytes.
func (r *pullReader) encodeBlock() {
	for i := 0; i < 2*r.blockSize; i++ {
		binary.LittleEndian.PutUint32(r.pcm[4*i:], math.Float32bits(float32(r.out[i])))
	}
}

// OtoHost is a playback-only audio host on top of the oto context.
//
// Input capture is out of scope for this backend: the input bus is fed by
// an optional InputSource (test tone, silence).
type OtoHost struct {
	sampleRate int
	blockSize  int
	source     InputSource

	ctx *oto.Context

	mu      sync.Mutex
	player  *oto.Player
	started bool
}

// NewOtoHost opens an oto context at the given rate and block size.
func NewOtoHost(sampleRate, blockSize int, source InputSource) (*OtoHost, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("oto host sample rate must be > 0: %d", sampleRate)
	}
	if blockSize <= 0 {
		return nil, fmt.Errorf("oto host block size must be > 0: %d", blockSize)
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
	})
	if err != nil {
		return nil, fmt.Errorf("oto context: %w", err)
	}
	<-ready

	return &OtoHost{
		sampleRate: sampleRate,
		blockSize:  blockSize,
		source:     source,
		ctx:        ctx,
	}, nil
}

// SampleRate returns the session sample rate in Hz.
func (h *OtoHost) SampleRate() int { return h.sampleRate }

// BlockSize returns the frames-per-callback block size.
func (h *OtoHost) BlockSize() int { return h.blockSize }

// Start begins playback, pulling blocks through the callback.
func (h *OtoHost) Start(cb Callback) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return fmt.Errorf("oto host already started")
	}
	if cb == nil {
		return fmt.Errorf("oto host callback must not be nil")
	}

	h.player = h.ctx.NewPlayer(newPullReader(h.blockSize, h.source, cb))
	h.player.Play()
	h.started = true

	return nil
}

// Stop ceases playback.
func (h *OtoHost) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		return nil
	}

	err := h.player.Close()
	h.player = nil
	h.started = false

	return err
}
