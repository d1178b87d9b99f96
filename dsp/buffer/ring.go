package buffer

import (
	"fmt"
	"sync/atomic"
)

// Ring is a lock-free single-producer single-consumer sample ring.
//
// The producer (audio callback) calls Push; the consumer (analysis worker)
// calls Pop. Neither side blocks or allocates. When the ring is full, Push
// drops the excess samples and counts them; the consumer is expected to
// drain fast enough that this only happens under overrun.
type Ring struct {
	buf  []float64
	mask int64

	write atomic.Int64 // total samples pushed
	read  atomic.Int64 // total samples popped

	dropped atomic.Int64
}

// NewRing creates a ring holding at least capacity samples. The internal
// size is rounded up to a power of two.
func NewRing(capacity int) (*Ring, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("ring capacity must be > 0: %d", capacity)
	}

	size := 1
	for size < capacity {
		size <<= 1
	}

	return &Ring{
		buf:  make([]float64, size),
		mask: int64(size - 1),
	}, nil
}

// Cap returns the ring capacity in samples.
func (r *Ring) Cap() int { return len(r.buf) }

// Len returns the number of samples currently buffered.
func (r *Ring) Len() int {
	return int(r.write.Load() - r.read.Load())
}

// Dropped returns the total number of samples discarded because the ring
// was full.
func (r *Ring) Dropped() int64 { return r.dropped.Load() }

// Push appends src and returns the number of samples accepted.
// Producer side only.
func (r *Ring) Push(src []float64) int {
	w := r.write.Load()
	free := int64(len(r.buf)) - (w - r.read.Load())

	n := int64(len(src))
	if n > free {
		r.dropped.Add(n - free)
		n = free
	}

	for i := int64(0); i < n; i++ {
		r.buf[(w+i)&r.mask] = src[i]
	}

	r.write.Store(w + n)

	return int(n)
}

// Pop moves up to len(dst) samples into dst and returns the count moved.
// Consumer side only.
func (r *Ring) Pop(dst []float64) int {
	rd := r.read.Load()
	avail := r.write.Load() - rd

	n := int64(len(dst))
	if n > avail {
		n = avail
	}

	for i := int64(0); i < n; i++ {
		dst[i] = r.buf[(rd+i)&r.mask]
	}

	r.read.Store(rd + n)

	return int(n)
}
