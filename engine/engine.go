package engine

import (
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/cwbudde/algo-guitarfx/dsp/arp"
	"github.com/cwbudde/algo-guitarfx/dsp/buffer"
	"github.com/cwbudde/algo-guitarfx/dsp/chord"
	"github.com/cwbudde/algo-guitarfx/dsp/core"
	"github.com/cwbudde/algo-guitarfx/dsp/effects"
	"github.com/cwbudde/algo-guitarfx/dsp/synth"
)

const (
	minBlockSize = 128
	maxBlockSize = 8192

	defaultMaxDelaySeconds = 2.0
	maxMaxDelaySeconds     = 10.0

	defaultVoiceCount = 32
	maxVoiceCount     = 256

	// outputGainSmoothing ramps the output gain so level changes stay
	// click-free.
	outputGainSmoothing = 0.005

	// maxLoopGain is the ceiling applied to feedback + cross-feedback on
	// the audio path; requested gains beyond it are scaled down together.
	maxLoopGain = 0.98

	// saturationKnee is where the output guard starts compressing.
	saturationKnee = 0.95

	// mirrorRingBlocks sizes the detector input mirror relative to the
	// block size.
	mirrorRingBlocks = 16

	cpuLoadSmoothing = 0.9
)

var validSampleRates = map[int]bool{
	44100:  true,
	48000:  true,
	96000:  true,
	192000: true,
}

// Config is the one-shot configuration snapshot consumed by New.
type Config struct {
	// SampleRate must be one of 44100, 48000, 96000, 192000.
	SampleRate int
	// BlockSize is the host block size: a power of two in [128, 8192].
	BlockSize int
	// MaxDelaySeconds sizes the delay lines (default 2, maximum 10).
	MaxDelaySeconds float64
	// Voices sizes the polyphony pool (default 32, maximum 256).
	Voices int
	// DetectorWorker moves chord analysis onto a background goroutine fed
	// through a lock-free input mirror. When false, analysis runs inline
	// on the audio thread (bounded: one FFT per stride).
	DetectorWorker bool
	// Seed drives the stylistic arp patterns' randomness (default 1).
	Seed int64
}

func (c *Config) applyDefaults() {
	if c.MaxDelaySeconds == 0 {
		c.MaxDelaySeconds = defaultMaxDelaySeconds
	}
	if c.Voices == 0 {
		c.Voices = defaultVoiceCount
	}
	if c.Seed == 0 {
		c.Seed = 1
	}
}

func (c Config) validate() error {
	if !validSampleRates[c.SampleRate] {
		return &ConfigError{Field: "sample_rate", Value: c.SampleRate,
			Reason: "must be one of 44100, 48000, 96000, 192000"}
	}
	if c.BlockSize > maxBlockSize {
		return &ResourceError{Resource: "block_size", Requested: c.BlockSize, Limit: maxBlockSize}
	}
	if c.BlockSize < minBlockSize || c.BlockSize&(c.BlockSize-1) != 0 {
		return &ConfigError{Field: "block_size", Value: c.BlockSize,
			Reason: "must be a power of two in [128, 8192]"}
	}
	if c.MaxDelaySeconds < 0 || math.IsNaN(c.MaxDelaySeconds) {
		return &ConfigError{Field: "max_delay_seconds", Value: c.MaxDelaySeconds,
			Reason: "must be > 0"}
	}
	if c.MaxDelaySeconds > maxMaxDelaySeconds {
		return &ResourceError{Resource: "delay_buffer_seconds",
			Requested: int(c.MaxDelaySeconds), Limit: int(maxMaxDelaySeconds)}
	}
	if c.Voices < defaultVoiceCount {
		return &ConfigError{Field: "voices", Value: c.Voices, Reason: "must be >= 32"}
	}
	if c.Voices > maxVoiceCount {
		return &ResourceError{Resource: "voices", Requested: c.Voices, Limit: maxVoiceCount}
	}
	return nil
}

// smoother ramps one audible parameter toward its target.
type smoother struct {
	current float64
	target  float64
}

func (s *smoother) advance(coeff float64) float64 {
	s.current += coeff * (s.target - s.current)
	return s.current
}

func (s *smoother) snap(v float64) {
	s.current = v
	s.target = v
}

// Status is the read-only snapshot exposed to control collaborators.
type Status struct {
	Running      bool
	Chord        chord.Chord
	ActiveVoices int
	InputPeak    float64
	OutputPeak   float64
	// CPULoad is the fraction of the block time budget the last callback
	// consumed, smoothed.
	CPULoad float64
	// Anomalies counts recovered runtime faults (non-finite samples).
	Anomalies int64
	// VoiceExhausted counts note-ons dropped for lack of a voice.
	VoiceExhausted int64
	// DetectorDrops counts input-mirror samples lost to overrun.
	DetectorDrops int64

	Tuner   chord.StringReading
	TunerOK bool
}

// Engine owns every buffer and pool of the DSP core. All long-lived memory
// is allocated in New; the Process path allocates only when the arpeggio
// timeline regenerates (bounded by the note count, and explicitly permitted
// on the audio thread).
type Engine struct {
	cfg    Config
	params *Params

	stereoDelay *effects.StereoDelay
	detector    *chord.Detector
	tuner       *chord.Tuner
	mirror      *buffer.Ring
	pool        *synth.Pool
	rng         *rand.Rand

	running       atomic.Bool
	resetPending  atomic.Bool
	detectorReset atomic.Bool

	stopWorker chan struct{}
	workerDone chan struct{}

	inL, inR       []float64
	synthL, synthR []float64
	mono           []float64
	workerScratch  []float64

	outGain      smoother
	outGainCoeff float64

	timeline        []arp.Note
	timelineSamples int64
	arpCursor       int64
	nextNote        int
	lastChord       chord.Chord
	lastPattern     arp.Pattern
	lastBPM         float64
	lastArpDuration float64
	timelineValid   bool

	inPeak  atomicFloat
	outPeak atomicFloat
	cpuLoad atomicFloat

	activeVoices atomic.Int32
	anomalies    atomic.Int64
}

// New builds an engine from a validated configuration snapshot. All
// long-lived buffers (delay lines, input mirror, voice pool, analysis
// buffer) are allocated here and never reallocated while streaming.
func New(cfg Config) (*Engine, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	params := NewParams()
	sampleRate := float64(cfg.SampleRate)

	dist, err := effects.NewDistortion(sampleRate,
		effects.WithDistortionKind(effects.DistortionKind(params.distortionKind.Load())),
		effects.WithDistortionDrive(params.distortionDrive.load()),
		effects.WithDistortionMix(params.distortionMix.load()),
	)
	if err != nil {
		return nil, err
	}

	stereoDelay, err := effects.NewStereoDelay(sampleRate,
		effects.WithMaxDelay(cfg.MaxDelaySeconds),
		effects.WithDelayTimes(params.leftDelaySeconds.load(), params.rightDelaySeconds.load()),
		effects.WithStereoFeedback(params.feedback.load()),
		effects.WithCrossFeedback(params.crossFeedback.load()),
		effects.WithStereoWidth(params.stereoWidth.load()),
		effects.WithMix(params.wetMix.load(), params.dryMix.load()),
		effects.WithFeedbackDistortion(dist, params.feedbackIntensity.load()),
	)
	if err != nil {
		return nil, err
	}
	stereoDelay.SetFeedbackDistortion(false)

	detector, err := chord.NewDetector(sampleRate,
		chord.WithMinConfidence(params.minChordConfidence.load()),
		chord.WithHoldTime(params.chordHoldSeconds.load()),
	)
	if err != nil {
		return nil, err
	}

	tuner, err := chord.NewTuner(sampleRate)
	if err != nil {
		return nil, err
	}

	mirror, err := buffer.NewRing(cfg.BlockSize * mirrorRingBlocks)
	if err != nil {
		return nil, err
	}

	pool, err := synth.NewPool(sampleRate, cfg.Voices)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:           cfg,
		params:        params,
		stereoDelay:   stereoDelay,
		detector:      detector,
		tuner:         tuner,
		mirror:        mirror,
		pool:          pool,
		rng:           rand.New(rand.NewSource(cfg.Seed)),
		inL:           make([]float64, cfg.BlockSize),
		inR:           make([]float64, cfg.BlockSize),
		synthL:        make([]float64, cfg.BlockSize),
		synthR:        make([]float64, cfg.BlockSize),
		mono:          make([]float64, cfg.BlockSize),
		workerScratch: make([]float64, cfg.BlockSize),
	}

	e.outGainCoeff = core.OnePoleCoeff(outputGainSmoothing, sampleRate)
	e.outGain.snap(params.outputGain.load())

	return e, nil
}

// Params returns the control-side parameter handle.
func (e *Engine) Params() *Params { return e.params }

// Config returns the configuration snapshot the engine was built with.
func (e *Engine) Config() Config { return e.cfg }

// Start arms the pipeline. It fails with a LifecycleError wrapping
// ErrAlreadyRunning when the engine is already started.
func (e *Engine) Start() error {
	if !e.running.CompareAndSwap(false, true) {
		return &LifecycleError{Op: "start", Err: ErrAlreadyRunning}
	}

	if e.cfg.DetectorWorker {
		e.stopWorker = make(chan struct{})
		e.workerDone = make(chan struct{})
		go e.runWorker(e.stopWorker, e.workerDone)
	}

	return nil
}

// Stop disarms the pipeline. Stopping an engine that is not running is a
// no-op; pending effect state is preserved unless Reset is also called.
func (e *Engine) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}

	if e.workerDone != nil {
		close(e.stopWorker)
		<-e.workerDone
		e.stopWorker = nil
		e.workerDone = nil
	}
}

// Running reports whether the engine is armed.
func (e *Engine) Running() bool { return e.running.Load() }

// Reset schedules a full state wipe: delay buffers, voices, detector, and
// arp cursor are cleared at the start of the next processed block. Safe
// from any goroutine at any time, and idempotent.
func (e *Engine) Reset() {
	e.resetPending.Store(true)
}

func (e *Engine) applyReset() {
	e.stereoDelay.Reset()
	e.pool.StopAll()

	// In worker mode the detector and tuner belong to the worker
	// goroutine; hand the reset over instead of touching them here.
	if e.cfg.DetectorWorker && e.running.Load() {
		e.detectorReset.Store(true)
	} else {
		e.detector.Reset()
		e.tuner.Reset()
	}

	e.timeline = nil
	e.timelineValid = false
	e.arpCursor = 0
	e.nextNote = 0
	e.lastChord = chord.Chord{}
	e.outGain.snap(e.params.outputGain.load())
}

// Status returns the current status snapshot. Safe from any goroutine.
func (e *Engine) Status() Status {
	reading, ok := e.tuner.Reading()

	return Status{
		Running:        e.running.Load(),
		Chord:          e.detector.Latched(),
		ActiveVoices:   int(e.activeVoices.Load()),
		InputPeak:      e.inPeak.load(),
		OutputPeak:     e.outPeak.load(),
		CPULoad:        e.cpuLoad.load(),
		Anomalies:      e.anomalies.Load(),
		VoiceExhausted: e.pool.Exhausted(),
		DetectorDrops:  e.mirror.Dropped(),
		Tuner:          reading,
		TunerOK:        ok,
	}
}

// Audible returns the post-smoothing values the DSP is currently using.
func (e *Engine) Audible() AudibleParams {
	p := e.params
	sd := e.stereoDelay
	dist := sd.Distortion()
	return AudibleParams{
		LeftDelaySeconds:  p.leftDelaySeconds.load(),
		RightDelaySeconds: p.rightDelaySeconds.load(),
		Feedback:          sd.Feedback(),
		WetMix:            sd.WetMix(),
		DryMix:            sd.DryMix(),
		StereoWidth:       sd.StereoWidth(),
		CrossFeedback:     sd.CrossFeedback(),
		DistortionDrive:   dist.Drive(),
		DistortionMix:     dist.Mix(),
		FeedbackIntensity: sd.FeedbackIntensity(),
		OutputGain:        e.outGain.current,
		PingPong:          p.pingPong.Load(),
		DelayEnabled:      p.delayEnabled.Load(),
		DistortionEnabled: p.distortionEnabled.Load(),
		ArpEnabled:        p.arpEnabled.Load(),
		DistortionKind:    effects.DistortionKind(p.distortionKind.Load()),
		Pattern:           arp.Pattern(p.pattern.Load()),
		SynthKind:         synth.Waveform(p.synthKind.Load()),
		TempoBPM:          p.tempoBPM.load(),
		ArpDuration:       p.arpDuration.load(),
	}
}

// Process renders one block. in and out are interleaved stereo frames; a
// mono in (frame count matching out but single channel) is duplicated.
// The routine is total: it never returns an error and always fills out.
func (e *Engine) Process(in, out []float64) {
	started := time.Now()

	frames := len(out) / 2
	if frames > e.cfg.BlockSize {
		frames = e.cfg.BlockSize
	}

	if !e.running.Load() {
		for i := range out {
			out[i] = 0
		}
		return
	}

	if e.resetPending.Swap(false) {
		e.applyReset()
	}

	e.splitInput(in, frames)
	e.drainParams()

	p := e.params
	arpOn := p.arpEnabled.Load()
	if arpOn {
		e.maintainTimeline()
		e.scheduleNotes(frames)
	} else if e.timelineValid {
		e.timeline = nil
		e.timelineValid = false
		e.pool.ReleaseAll()
	}

	e.pool.MixBlock(e.synthL[:frames], e.synthR[:frames])
	e.activeVoices.Store(int32(e.pool.ActiveCount()))

	delayOn := p.delayEnabled.Load()

	outPeak := 0.0
	for i := 0; i < frames; i++ {
		preL := e.inL[i] + e.synthL[i]
		preR := e.inR[i] + e.synthR[i]

		var l, r float64
		if delayOn {
			l, r = e.stereoDelay.ProcessSample(preL, preR)
		} else {
			l, r = preL, preR
		}

		outGain := e.outGain.advance(e.outGainCoeff)
		l = core.SoftSaturate(l*outGain, saturationKnee)
		r = core.SoftSaturate(r*outGain, saturationKnee)

		if !core.IsFinite(l) {
			l = 0
			e.anomalies.Add(1)
		}
		if !core.IsFinite(r) {
			r = 0
			e.anomalies.Add(1)
		}

		out[2*i] = l
		out[2*i+1] = r

		if a := math.Abs(l); a > outPeak {
			outPeak = a
		}
		if a := math.Abs(r); a > outPeak {
			outPeak = a
		}
	}

	// Zero any frames beyond the configured block size.
	for i := 2 * frames; i < len(out); i++ {
		out[i] = 0
	}

	e.feedAnalysis(frames)

	e.outPeak.store(outPeak)

	budget := float64(frames) / float64(e.cfg.SampleRate)
	load := time.Since(started).Seconds() / budget
	e.cpuLoad.store(cpuLoadSmoothing*e.cpuLoad.load() + (1-cpuLoadSmoothing)*load)
}

// splitInput deinterleaves the host input into inL/inR, duplicating mono
// and guarding non-finite samples.
func (e *Engine) splitInput(in []float64, frames int) {
	inPeak := 0.0

	for i := 0; i < frames; i++ {
		var l, r float64

		switch {
		case len(in) >= 2*frames:
			l, r = in[2*i], in[2*i+1]
		case len(in) >= frames:
			l = in[i]
			r = l
		}

		if !core.IsFinite(l) {
			l = 0
			e.anomalies.Add(1)
		}
		if !core.IsFinite(r) {
			r = 0
			e.anomalies.Add(1)
		}

		e.inL[i] = l
		e.inR[i] = r
		e.mono[i] = 0.5 * (l + r)

		if a := math.Abs(l); a > inPeak {
			inPeak = a
		}
		if a := math.Abs(r); a > inPeak {
			inPeak = a
		}
	}

	e.inPeak.store(inPeak)
}

// drainParams pushes the bus targets into the effect units once per block.
// The units ramp toward them per sample, so this is pure target handoff.
func (e *Engine) drainParams() {
	p := e.params

	feedback := p.feedback.load()
	cross := p.crossFeedback.load()

	// Enforce the loop-gain ceiling: both gains are individually valid,
	// but their sum must stay below 1 for the network to remain BIBO
	// stable. Scale the pair rather than reject, so boundary settings
	// like feedback 0.9 + cross 0.5 stay usable.
	if sum := feedback + cross; sum > maxLoopGain {
		scale := maxLoopGain / sum
		feedback *= scale
		cross *= scale
	}

	sd := e.stereoDelay
	_ = sd.SetLoopGains(feedback, cross)
	_ = sd.SetMix(p.wetMix.load(), p.dryMix.load())
	_ = sd.SetStereoWidth(p.stereoWidth.load())
	_ = sd.SetTargetDelayTimes(p.leftDelaySeconds.load(), p.rightDelaySeconds.load())
	sd.SetPingPong(p.pingPong.Load())

	dist := sd.Distortion()
	_ = dist.SetKind(effects.DistortionKind(p.distortionKind.Load()))
	_ = dist.SetDrive(p.distortionDrive.load())
	_ = dist.SetMix(p.distortionMix.load())
	sd.SetFeedbackDistortion(p.distortionEnabled.Load())
	_ = sd.SetFeedbackIntensity(p.feedbackIntensity.load())

	_ = e.detector.SetMinConfidence(p.minChordConfidence.load())
	_ = e.detector.SetHoldTime(p.chordHoldSeconds.load())

	e.outGain.target = p.outputGain.load()
}

// maintainTimeline regenerates the arp timeline whenever the latched chord
// or any of tempo, pattern, duration changes. Regeneration resets the play
// cursor and releases outstanding voices.
func (e *Engine) maintainTimeline() {
	p := e.params

	latched := e.detector.Latched()
	pattern := arp.Pattern(p.pattern.Load())
	bpm := p.tempoBPM.load()
	duration := p.arpDuration.load()

	if e.timelineValid &&
		latched.SameShape(e.lastChord) &&
		pattern == e.lastPattern &&
		bpm == e.lastBPM &&
		duration == e.lastArpDuration {
		return
	}

	e.lastChord = latched
	e.lastPattern = pattern
	e.lastBPM = bpm
	e.lastArpDuration = duration
	e.arpCursor = 0
	e.nextNote = 0
	e.pool.ReleaseAll()
	e.timelineValid = true

	if !latched.Valid {
		e.timeline = nil
		return
	}

	notes, err := arp.Generate(latched.Classes, pattern, bpm, duration, e.rng)
	if err != nil {
		e.timeline = nil
		return
	}

	e.timeline = notes
	e.timelineSamples = int64(duration * float64(e.cfg.SampleRate))
}

// scheduleNotes fires note-ons whose start time falls inside this block and
// loops the timeline when the cursor passes its end.
func (e *Engine) scheduleNotes(frames int) {
	if len(e.timeline) == 0 {
		return
	}

	sampleRate := float64(e.cfg.SampleRate)
	waveform := synth.Waveform(e.params.synthKind.Load())
	blockEnd := e.arpCursor + int64(frames)

	for {
		for e.nextNote < len(e.timeline) {
			n := e.timeline[e.nextNote]
			startSample := int64(n.Start * sampleRate)
			if startSample >= blockEnd {
				break
			}

			durSamples := int64(n.Duration * sampleRate)
			if durSamples < 1 {
				durSamples = 1
			}

			onset := startSample - e.arpCursor
			if onset < 0 {
				onset = 0
			}

			e.pool.NoteOn(n.Class, n.Octave, n.Velocity, waveform, durSamples, onset)
			e.nextNote++
		}

		if blockEnd < e.timelineSamples || e.timelineSamples <= 0 {
			break
		}

		// Wrap: the timeline loops until the chord or settings change.
		blockEnd -= e.timelineSamples
		e.arpCursor -= e.timelineSamples
		e.nextNote = 0
	}

	e.arpCursor += int64(frames)
}

// feedAnalysis hands the block's mono mix to the detector and tuner, either
// inline or through the lock-free mirror when a worker is configured.
func (e *Engine) feedAnalysis(frames int) {
	if e.cfg.DetectorWorker {
		e.mirror.Push(e.mono[:frames])
		return
	}

	e.detector.ProcessBlock(e.mono[:frames])
	e.tuner.ProcessBlock(e.mono[:frames])
}

// runWorker drains the input mirror into the detector and tuner off the
// audio thread.
func (e *Engine) runWorker(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		default:
		}

		if e.detectorReset.Swap(false) {
			e.detector.Reset()
			e.tuner.Reset()
		}

		n := e.mirror.Pop(e.workerScratch)
		if n == 0 {
			time.Sleep(time.Millisecond)
			continue
		}

		e.detector.ProcessBlock(e.workerScratch[:n])
		e.tuner.ProcessBlock(e.workerScratch[:n])
	}
}
