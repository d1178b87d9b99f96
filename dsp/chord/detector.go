package chord

import (
	"fmt"
	"math"
	"sync/atomic"

	algofft "github.com/cwbudde/algo-fft"
	"github.com/cwbudde/algo-guitarfx/dsp/spectrum"
	"github.com/cwbudde/algo-guitarfx/dsp/window"
)

const (
	defaultMinConfidence = 0.6
	defaultHoldSeconds   = 0.5
	defaultLowHz         = 80.0
	defaultHighHz        = 2000.0

	// analysisSpanSeconds picks the FFT size: the smallest power of two
	// covering roughly this much signal.
	analysisSpanSeconds = 0.085

	maxDetectedNotes = 8
	maxCentsOff      = 50.0

	peakHeightRatio     = 0.15
	peakProminenceRatio = peakHeightRatio / 2
	peakSpacingBins     = 2
)

// atomicFloat is a lock-free float64 cell for parameters written by control
// threads and read inside analysis.
type atomicFloat struct {
	bits atomic.Uint64
}

func (f *atomicFloat) store(v float64) { f.bits.Store(math.Float64bits(v)) }
func (f *atomicFloat) load() float64   { return math.Float64frombits(f.bits.Load()) }

// DetectorOption mutates construction-time parameters.
type DetectorOption func(*detectorConfig) error

type detectorConfig struct {
	fftSize       int
	minConfidence float64
	holdSeconds   float64
	lowHz, highHz float64
}

// WithFFTSize overrides the analysis FFT size. Must be a power of two.
func WithFFTSize(n int) DetectorOption {
	return func(cfg *detectorConfig) error {
		if n < 256 || n&(n-1) != 0 {
			return fmt.Errorf("detector fft size must be a power of two >= 256: %d", n)
		}
		cfg.fftSize = n
		return nil
	}
}

// WithMinConfidence sets the validity threshold in [0, 1].
func WithMinConfidence(c float64) DetectorOption {
	return func(cfg *detectorConfig) error {
		if c < 0 || c > 1 || math.IsNaN(c) {
			return fmt.Errorf("detector min confidence must be in [0, 1]: %f", c)
		}
		cfg.minConfidence = c
		return nil
	}
}

// WithHoldTime sets the hysteresis hold time in seconds, [0.05, 2].
func WithHoldTime(seconds float64) DetectorOption {
	return func(cfg *detectorConfig) error {
		if seconds < 0.05 || seconds > 2 || math.IsNaN(seconds) {
			return fmt.Errorf("detector hold time must be in [0.05, 2] s: %f", seconds)
		}
		cfg.holdSeconds = seconds
		return nil
	}
}

// WithBand restricts peak picking to [lowHz, highHz].
func WithBand(lowHz, highHz float64) DetectorOption {
	return func(cfg *detectorConfig) error {
		if lowHz <= 0 || highHz <= lowHz {
			return fmt.Errorf("detector band must satisfy 0 < low < high: [%f, %f]", lowHz, highHz)
		}
		cfg.lowHz = lowHz
		cfg.highHz = highHz
		return nil
	}
}

// Detector extracts the pitch classes present in the input stream and
// stabilizes the best chord hypothesis with temporal hysteresis.
//
// Feed it with ProcessBlock from whichever goroutine owns the input mirror;
// read the latched result from any goroutine with Latched. Analysis runs
// once per stride (half the FFT size), so a block no longer than the stride
// costs at most one FFT.
type Detector struct {
	sampleRate float64
	fftSize    int
	stride     int

	ring          []float64
	writePos      int
	filled        int
	sinceAnalysis int

	windowCoeffs []float64
	// magNorm scales raw FFT magnitudes to window-compensated amplitudes
	// so DetectedNote.Strength is comparable across FFT sizes.
	magNorm float64

	plan   *algofft.Plan[complex128]
	fftIn  []complex128
	fftOut []complex128
	re     []float64
	im     []float64
	mags   []float64
	frame  []float64

	peaks []spectrum.Peak
	notes []DetectedNote

	minConfidence atomicFloat
	holdSeconds   atomicFloat
	lowHz, highHz float64

	clock int64 // samples since start

	candidate      Chord
	candidateSince float64
	hasCandidate   bool

	latched atomic.Pointer[Chord]

	analyses atomic.Int64
}

// NewDetector creates a chord detector for the given sample rate.
func NewDetector(sampleRate float64, opts ...DetectorOption) (*Detector, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("detector sample rate must be > 0: %f", sampleRate)
	}

	cfg := detectorConfig{
		minConfidence: defaultMinConfidence,
		holdSeconds:   defaultHoldSeconds,
		lowHz:         defaultLowHz,
		highHz:        defaultHighHz,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if cfg.fftSize == 0 {
		cfg.fftSize = analysisFFTSize(sampleRate)
	}

	plan, err := algofft.NewPlan64(cfg.fftSize)
	if err != nil {
		return nil, fmt.Errorf("detector fft plan: %w", err)
	}

	coeffs := window.Generate(window.TypeHann, cfg.fftSize, window.WithPeriodic())

	bins := cfg.fftSize/2 + 1

	d := &Detector{
		sampleRate:   sampleRate,
		fftSize:      cfg.fftSize,
		stride:       cfg.fftSize / 2,
		ring:         make([]float64, cfg.fftSize),
		windowCoeffs: coeffs,
		magNorm:      2 / (float64(cfg.fftSize) * window.CoherentGain(coeffs)),
		plan:         plan,
		fftIn:        make([]complex128, cfg.fftSize),
		fftOut:       make([]complex128, cfg.fftSize),
		re:           make([]float64, bins),
		im:           make([]float64, bins),
		mags:         make([]float64, bins),
		frame:        make([]float64, cfg.fftSize),
		peaks:        make([]spectrum.Peak, 0, maxDetectedNotes*2),
		notes:        make([]DetectedNote, 0, maxDetectedNotes),
		lowHz:        cfg.lowHz,
		highHz:       cfg.highHz,
	}

	d.minConfidence.store(cfg.minConfidence)
	d.holdSeconds.store(cfg.holdSeconds)

	return d, nil
}

// analysisFFTSize returns the smallest power of two spanning
// analysisSpanSeconds at the sample rate (4096 at 48 kHz).
func analysisFFTSize(sampleRate float64) int {
	span := sampleRate * analysisSpanSeconds

	n := 256
	for float64(n) < span {
		n <<= 1
	}

	return n
}

// SetMinConfidence updates the validity threshold. Safe from any goroutine.
func (d *Detector) SetMinConfidence(c float64) error {
	if c < 0 || c > 1 || math.IsNaN(c) {
		return fmt.Errorf("detector min confidence must be in [0, 1]: %f", c)
	}
	d.minConfidence.store(c)
	return nil
}

// SetHoldTime updates the hysteresis hold time. Safe from any goroutine.
func (d *Detector) SetHoldTime(seconds float64) error {
	if seconds < 0.05 || seconds > 2 || math.IsNaN(seconds) {
		return fmt.Errorf("detector hold time must be in [0.05, 2] s: %f", seconds)
	}
	d.holdSeconds.store(seconds)
	return nil
}

// FFTSize returns the analysis FFT size in samples.
func (d *Detector) FFTSize() int { return d.fftSize }

// Analyses returns how many analysis frames have run.
func (d *Detector) Analyses() int64 { return d.analyses.Load() }

// Latched returns the chord currently visible to downstream consumers.
// Before anything has latched it returns an invalid chord.
func (d *Detector) Latched() Chord {
	if c := d.latched.Load(); c != nil {
		return *c
	}
	return Chord{}
}

// Reset clears the analysis buffer, the hysteresis state, and the latched
// chord. The sample clock keeps running.
func (d *Detector) Reset() {
	for i := range d.ring {
		d.ring[i] = 0
	}
	d.writePos = 0
	d.filled = 0
	d.sinceAnalysis = 0
	d.hasCandidate = false
	d.latched.Store(nil)
}

// ProcessBlock appends input samples and runs any due analysis frames.
func (d *Detector) ProcessBlock(samples []float64) {
	for _, x := range samples {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			x = 0
		}

		d.ring[d.writePos] = x
		d.writePos++
		if d.writePos >= d.fftSize {
			d.writePos = 0
		}

		if d.filled < d.fftSize {
			d.filled++
		}

		d.sinceAnalysis++
		d.clock++

		if d.filled >= d.fftSize && d.sinceAnalysis >= d.stride {
			d.sinceAnalysis = 0
			d.analyze()
		}
	}
}

func (d *Detector) analyze() {
	d.analyses.Add(1)

	// Unroll the ring into time order and window it.
	read := d.writePos
	for i := 0; i < d.fftSize; i++ {
		d.frame[i] = d.ring[read]
		read++
		if read >= d.fftSize {
			read = 0
		}
	}
	window.ApplyCoeffs(d.frame, d.windowCoeffs)

	for i, s := range d.frame {
		d.fftIn[i] = complex(s, 0)
	}

	if err := d.plan.Forward(d.fftOut, d.fftIn); err != nil {
		return
	}

	bins := len(d.mags)
	for k := 0; k < bins; k++ {
		d.re[k] = real(d.fftOut[k])
		d.im[k] = imag(d.fftOut[k])
	}
	spectrum.MagnitudeFromParts(d.mags, d.re, d.im)
	for k := range d.mags {
		d.mags[k] *= d.magNorm
	}

	d.peaks = spectrum.PickPeaks(d.peaks, d.mags, spectrum.PeakOptions{
		LowBin:             int(spectrum.FrequencyBin(d.lowHz, d.fftSize, d.sampleRate)),
		HighBin:            int(spectrum.FrequencyBin(d.highHz, d.fftSize, d.sampleRate)) + 1,
		MinHeightRatio:     peakHeightRatio,
		MinProminenceRatio: peakProminenceRatio,
		MinSpacingBins:     peakSpacingBins,
		MaxPeaks:           maxDetectedNotes,
	})

	d.notes = d.resolveNotes(d.peaks, d.notes[:0])

	now := float64(d.clock) / d.sampleRate

	best := Chord{Time: now}
	if len(d.notes) > 0 {
		classes := make([]PitchClass, 0, maxDetectedNotes)
		seen := [12]bool{}
		for _, n := range d.notes {
			if !seen[n.Class] {
				seen[n.Class] = true
				classes = append(classes, n.Class)
			}
		}

		root, quality, score := Match(classes)
		best = Chord{
			Root:       root,
			Quality:    quality,
			Classes:    classes,
			Confidence: score,
			Time:       now,
			Valid:      score >= d.minConfidence.load(),
		}
	}

	d.updateHysteresis(best, now)
}

// resolveNotes maps refined peaks to equal-temperament notes, discards
// badly mistuned peaks, and keeps only the strongest instance per pitch
// class.
func (d *Detector) resolveNotes(peaks []spectrum.Peak, dst []DetectedNote) []DetectedNote {
	var strongest [12]DetectedNote
	var present [12]bool

	for _, p := range peaks {
		freq := p.Bin * d.sampleRate / float64(d.fftSize)

		note, cents, err := NoteFromFrequency(freq)
		if err != nil || math.Abs(cents) > maxCentsOff {
			continue
		}

		if !present[note.Class] || p.Height > strongest[note.Class].Strength {
			present[note.Class] = true
			strongest[note.Class] = DetectedNote{
				Note:     note,
				Strength: p.Height,
				Cents:    cents,
			}
		}
	}

	for pc := 0; pc < 12; pc++ {
		if present[pc] {
			dst = append(dst, strongest[pc])
		}
	}

	return dst
}

// updateHysteresis advances the latch state machine: a hypothesis must stay
// the best for holdSeconds of continuous analyses before it becomes visible.
func (d *Detector) updateHysteresis(best Chord, now float64) {
	if !d.hasCandidate || !best.SameShape(d.candidate) {
		d.candidate = best
		d.candidateSince = now
		d.hasCandidate = true
		return
	}

	d.candidate = best

	latched := d.latched.Load()
	if latched != nil && best.SameShape(*latched) {
		return
	}

	if now-d.candidateSince >= d.holdSeconds.load() {
		c := best
		d.latched.Store(&c)
	}
}
