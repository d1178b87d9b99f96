package engine

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/cwbudde/algo-guitarfx/dsp/arp"
	"github.com/cwbudde/algo-guitarfx/dsp/chord"
)

func testConfig() Config {
	return Config{SampleRate: 48000, BlockSize: 512}
}

func newRunningEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()

	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(e.Stop)

	return e
}

// bypassEffects turns off everything that would color the signal.
func bypassEffects(p *Params) {
	p.SetDelayEnabled(false)
	p.SetArpEnabled(false)
	p.SetDistortionEnabled(false)
}

func TestEngineLifecycle(t *testing.T) {
	e, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	err = e.Start()
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start error = %v, want ErrAlreadyRunning", err)
	}

	var lifecycle *LifecycleError
	if !errors.As(err, &lifecycle) {
		t.Errorf("second Start error type = %T, want *LifecycleError", err)
	}

	e.Stop()
	e.Stop() // idempotent

	if err := e.Start(); err != nil {
		t.Errorf("restart after Stop: %v", err)
	}
	e.Stop()
}

func TestEngineConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"bad sample rate", Config{SampleRate: 22050, BlockSize: 512}},
		{"non power-of-two block", Config{SampleRate: 48000, BlockSize: 500}},
		{"block too small", Config{SampleRate: 48000, BlockSize: 64}},
		{"too many voices", Config{SampleRate: 48000, BlockSize: 512, Voices: 1024}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Errorf("New(%+v) accepted invalid config", tt.cfg)
			}
		})
	}

	// Oversized blocks are a resource refusal, not a config complaint.
	_, err := New(Config{SampleRate: 48000, BlockSize: 16384})
	var resource *ResourceError
	if !errors.As(err, &resource) {
		t.Errorf("oversized block error = %T (%v), want *ResourceError", err, err)
	}
}

func TestEngineSilentWhenStopped(t *testing.T) {
	e, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	in := make([]float64, 1024)
	out := make([]float64, 1024)
	for i := range in {
		in[i] = 0.5
		out[i] = 0.25
	}

	e.Process(in, out)

	for i, s := range out {
		if s != 0 {
			t.Fatalf("out[%d] = %v before Start, want 0", i, s)
		}
	}
}

func TestEngineDryPassthrough(t *testing.T) {
	e := newRunningEngine(t, testConfig())
	bypassEffects(e.Params())

	in := make([]float64, 1024)
	out := make([]float64, 1024)
	pattern := []float64{0.5, -0.5, 0.25, -0.25}
	for i := 0; i < 512; i++ {
		in[2*i] = pattern[i%4]
		in[2*i+1] = pattern[i%4]
	}

	e.Process(in, out)

	for i := range out {
		if math.Abs(out[i]-in[i]) > 1e-12 {
			t.Fatalf("out[%d] = %v, want %v (dry passthrough)", i, out[i], in[i])
		}
	}
}

func TestEngineWetZeroEqualsInput(t *testing.T) {
	e := newRunningEngine(t, testConfig())
	p := e.Params()
	p.SetArpEnabled(false)
	p.SetDelayEnabled(true)
	if err := p.SetWetMix(0); err != nil {
		t.Fatalf("SetWetMix: %v", err)
	}
	if err := p.SetDryMix(1); err != nil {
		t.Fatalf("SetDryMix: %v", err)
	}

	in := make([]float64, 1024)
	out := make([]float64, 1024)

	// First blocks ramp the mix smoothers to their targets; judge the later
	// ones.
	for block := 0; block < 40; block++ {
		for i := 0; i < 512; i++ {
			x := 0.4 * math.Sin(float64(block*512+i)/17)
			in[2*i] = x
			in[2*i+1] = x
		}
		e.Process(in, out)
	}

	for i := range out {
		if math.Abs(out[i]-in[i]) > 1e-6 {
			t.Fatalf("out[%d] = %v, want %v within epsilon", i, out[i], in[i])
		}
	}
}

func TestEngineSimpleEchoScenario(t *testing.T) {
	const blockSize = 512

	cfg := testConfig()
	e := newRunningEngine(t, cfg)

	p := e.Params()
	p.SetArpEnabled(false)
	p.SetDelayEnabled(true)
	p.SetPingPong(false)
	p.SetDistortionEnabled(false)
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(p.SetLeftDelaySeconds(0.25))
	must(p.SetRightDelaySeconds(0.25))
	must(p.SetFeedback(0))
	must(p.SetCrossFeedback(0))
	must(p.SetStereoWidth(0))
	must(p.SetWetMix(1))
	must(p.SetDryMix(0))

	// Let the smoothers settle on silence first.
	in := make([]float64, 2*blockSize)
	out := make([]float64, 2*blockSize)
	for i := 0; i < 40; i++ {
		e.Process(in, out)
	}

	// Impulse of 0.8 on both channels at the start of a block.
	want := int(0.25 * 48000) // echo offset in samples

	var hitL, hitR int = -1, -1
	for block := 0; block*blockSize < want+2*blockSize; block++ {
		for i := range in {
			in[i] = 0
		}
		if block == 0 {
			in[0] = 0.8
			in[1] = 0.8
		}

		e.Process(in, out)

		for i := 0; i < blockSize; i++ {
			n := block*blockSize + i
			if out[2*i] > 0.4 && hitL < 0 {
				hitL = n
			}
			if out[2*i+1] > 0.4 && hitR < 0 {
				hitR = n
			}
		}
	}

	if hitL < want-1 || hitL > want+1 {
		t.Errorf("left echo at %d, want %d +/- 1", hitL, want)
	}
	if hitR < want-1 || hitR > want+1 {
		t.Errorf("right echo at %d, want %d +/- 1", hitR, want)
	}
}

func TestEngineNaNGuardScenario(t *testing.T) {
	e := newRunningEngine(t, testConfig())
	bypassEffects(e.Params())

	in := make([]float64, 1024)
	out := make([]float64, 1024)
	for i := 0; i < 512; i++ {
		in[2*i] = 0.25
		in[2*i+1] = 0.25
	}
	in[20] = math.Inf(1)

	e.Process(in, out)

	if out[20] != 0 {
		t.Errorf("out at the infected frame = %v, want 0", out[20])
	}
	if out[22] != 0.25 {
		t.Errorf("out after the infected frame = %v, want 0.25 (unaffected)", out[22])
	}
	if got := e.Status().Anomalies; got < 1 {
		t.Errorf("Anomalies = %d, want >= 1", got)
	}

	// Subsequent blocks are clean.
	in[20] = 0.25
	e.Process(in, out)
	for i := range out {
		if math.IsNaN(out[i]) || math.IsInf(out[i], 0) {
			t.Fatalf("out[%d] = %v after recovery", i, out[i])
		}
	}
}

func TestEngineOutputAlwaysBounded(t *testing.T) {
	e := newRunningEngine(t, testConfig())
	p := e.Params()
	p.SetDelayEnabled(true)
	_ = p.SetFeedback(0.9)
	_ = p.SetCrossFeedback(0.5)
	_ = p.SetWetMix(1)
	_ = p.SetDryMix(1)
	_ = p.SetOutputGain(2)
	p.SetPingPong(true)

	in := make([]float64, 1024)
	out := make([]float64, 1024)

	for block := 0; block < 200; block++ {
		for i := range in {
			in[i] = 0.9 * math.Sin(float64(block*512+i)/3)
		}
		e.Process(in, out)

		for i, s := range out {
			if math.IsNaN(s) || math.IsInf(s, 0) {
				t.Fatalf("block %d out[%d] = %v", block, i, s)
			}
			if math.Abs(s) > 1 {
				t.Fatalf("block %d out[%d] = %v, outside [-1, 1]", block, i, s)
			}
		}
	}
}

func TestEngineParameterChangeIsClickFree(t *testing.T) {
	const blockSize = 512

	e := newRunningEngine(t, testConfig())
	p := e.Params()
	p.SetArpEnabled(false)
	p.SetDelayEnabled(true)
	_ = p.SetFeedback(0.4)
	_ = p.SetCrossFeedback(0)
	_ = p.SetWetMix(0)
	_ = p.SetDryMix(1)

	in := make([]float64, 2*blockSize)
	out := make([]float64, 2*blockSize)

	// frame runs across both process calls so the carrier keeps its phase.
	frame := 0
	process := func(blocks int, check bool) {
		prev := math.NaN()
		for b := 0; b < blocks; b++ {
			for i := 0; i < blockSize; i++ {
				x := 0.4 * math.Sin(2*math.Pi*220*float64(frame)/48000)
				frame++
				in[2*i] = x
				in[2*i+1] = x
			}
			e.Process(in, out)

			if !check {
				continue
			}
			for i := 0; i < blockSize; i++ {
				s := out[2*i]
				if !math.IsNaN(prev) {
					if d := math.Abs(s - prev); d > 0.06 {
						t.Fatalf("discontinuity %v at block %d frame %d", d, b, i)
					}
				}
				prev = s
			}
		}
	}

	// Settle, then slam wet mix from 0 to 1 and watch for steps. The 220 Hz
	// carrier moves at most ~0.012 per sample at amplitude 0.4, so any step
	// beyond 0.06 is a parameter click, not signal.
	process(40, false)
	_ = p.SetWetMix(1)
	_ = p.SetFeedback(0.6)
	process(40, true)
}

func TestEngineBlockSizeInvariance(t *testing.T) {
	const seconds = 1

	render := func(blockSize int) []float64 {
		cfg := Config{SampleRate: 48000, BlockSize: blockSize}
		e := newRunningEngine(t, cfg)
		p := e.Params()
		p.SetArpEnabled(false)
		p.SetDelayEnabled(true)

		total := seconds * 48000
		result := make([]float64, 0, 2*total)
		in := make([]float64, 2*blockSize)
		out := make([]float64, 2*blockSize)

		for off := 0; off < total; off += blockSize {
			for i := 0; i < blockSize; i++ {
				x := 0.5 * math.Sin(2*math.Pi*330*float64(off+i)/48000)
				in[2*i] = x
				in[2*i+1] = x
			}
			e.Process(in, out)
			result = append(result, out...)
		}
		return result
	}

	small := render(128)
	large := render(8192)

	for i := range small {
		if small[i] != large[i] {
			t.Fatalf("outputs diverge at %d: %v vs %v", i, small[i], large[i])
		}
	}
}

func TestEngineResetForgetsHistory(t *testing.T) {
	e := newRunningEngine(t, testConfig())
	p := e.Params()
	p.SetDelayEnabled(true)
	_ = p.SetFeedback(0.6)
	_ = p.SetWetMix(1)

	in := make([]float64, 1024)
	out := make([]float64, 1024)

	// Load the delay lines with signal.
	for block := 0; block < 100; block++ {
		for i := range in {
			in[i] = 0.7 * math.Sin(float64(block*512+i)/5)
		}
		e.Process(in, out)
	}

	e.Reset()

	// Silence in must give silence out once the reset has applied.
	for i := range in {
		in[i] = 0
	}
	for block := 0; block < 20; block++ {
		e.Process(in, out)
	}
	for i, s := range out {
		if s != 0 {
			t.Fatalf("out[%d] = %v after Reset on silence, want 0", i, s)
		}
	}
}

func TestEngineArpRendersLatchedChord(t *testing.T) {
	cfg := testConfig()
	e := newRunningEngine(t, cfg)
	p := e.Params()
	p.SetDelayEnabled(false)
	p.SetArpEnabled(true)
	_ = p.SetTempoBPM(120)
	_ = p.SetPattern(arp.PatternUp)
	_ = p.SetArpDurationSeconds(1.0)

	in := make([]float64, 1024)
	out := make([]float64, 1024)

	// One second of C major input: latch the chord.
	for block := 0; block < 48000/512+1; block++ {
		for i := 0; i < 512; i++ {
			ts := float64(block*512+i) / 48000
			x := (math.Sin(2*math.Pi*261.63*ts) +
				math.Sin(2*math.Pi*329.63*ts) +
				math.Sin(2*math.Pi*392.0*ts)) / 3
			in[2*i] = x
			in[2*i+1] = x
		}
		e.Process(in, out)
	}

	status := e.Status()
	if !status.Chord.Valid || status.Chord.Root != chord.C {
		t.Fatalf("latched chord = %+v, want valid C major", status.Chord)
	}

	// Now silence the input: the synth alone must produce sound.
	for i := range in {
		in[i] = 0
	}

	energy := 0.0
	for block := 0; block < 40; block++ {
		e.Process(in, out)
		for _, s := range out {
			energy += s * s
		}
	}

	if energy == 0 {
		t.Error("arp produced no sound from a latched chord")
	}
	if e.Status().ActiveVoices == 0 {
		t.Error("no active voices while the arp is playing")
	}
}

func TestEngineArpDisabledReleasesVoices(t *testing.T) {
	e := newRunningEngine(t, testConfig())
	p := e.Params()
	p.SetDelayEnabled(false)
	p.SetArpEnabled(true)

	in := make([]float64, 1024)
	out := make([]float64, 1024)

	for block := 0; block < 48000/512+1; block++ {
		for i := 0; i < 512; i++ {
			ts := float64(block*512+i) / 48000
			x := (math.Sin(2*math.Pi*261.63*ts) +
				math.Sin(2*math.Pi*329.63*ts) +
				math.Sin(2*math.Pi*392.0*ts)) / 3
			in[2*i] = x
			in[2*i+1] = x
		}
		e.Process(in, out)
	}

	p.SetArpEnabled(false)
	for i := range in {
		in[i] = 0
	}

	// Voices get released and die out within their release tails.
	for block := 0; block < 100; block++ {
		e.Process(in, out)
	}

	if got := e.Status().ActiveVoices; got != 0 {
		t.Errorf("ActiveVoices = %d after disabling the arp, want 0", got)
	}
}

func TestEngineWorkerModeLatchesChord(t *testing.T) {
	cfg := testConfig()
	cfg.DetectorWorker = true

	e := newRunningEngine(t, cfg)
	e.Params().SetDelayEnabled(false)
	e.Params().SetArpEnabled(false)

	in := make([]float64, 1024)
	out := make([]float64, 1024)

	deadline := time.Now().Add(10 * time.Second)
	sample := 0
	for time.Now().Before(deadline) {
		for i := 0; i < 512; i++ {
			ts := float64(sample) / 48000
			x := (math.Sin(2*math.Pi*261.63*ts) +
				math.Sin(2*math.Pi*329.63*ts) +
				math.Sin(2*math.Pi*392.0*ts)) / 3
			in[2*i] = x
			in[2*i+1] = x
			sample++
		}
		e.Process(in, out)

		if c := e.Status().Chord; c.Valid && c.Root == chord.C {
			return
		}

		// Real callbacks are paced; give the worker room to drain.
		if sample > 2*48000 {
			time.Sleep(2 * time.Millisecond)
		}
	}

	t.Fatalf("worker-mode detector never latched C major; status=%+v", e.Status())
}

func TestEngineStatusPeaks(t *testing.T) {
	e := newRunningEngine(t, testConfig())
	bypassEffects(e.Params())

	in := make([]float64, 1024)
	out := make([]float64, 1024)
	for i := 0; i < 512; i++ {
		in[2*i] = 0.5
		in[2*i+1] = -0.5
	}

	e.Process(in, out)

	status := e.Status()
	if math.Abs(status.InputPeak-0.5) > 1e-9 {
		t.Errorf("InputPeak = %v, want 0.5", status.InputPeak)
	}
	if math.Abs(status.OutputPeak-0.5) > 1e-9 {
		t.Errorf("OutputPeak = %v, want 0.5", status.OutputPeak)
	}
	if !status.Running {
		t.Error("Status.Running = false on a started engine")
	}
}

func TestEngineMonoInputDuplicated(t *testing.T) {
	e := newRunningEngine(t, testConfig())
	bypassEffects(e.Params())

	in := make([]float64, 512) // mono: one sample per frame
	out := make([]float64, 1024)
	for i := range in {
		in[i] = 0.3
	}

	e.Process(in, out)

	for i := 0; i < 512; i++ {
		if out[2*i] != out[2*i+1] {
			t.Fatalf("frame %d: mono input not duplicated: (%v, %v)", i, out[2*i], out[2*i+1])
		}
		if out[2*i] != 0.3 {
			t.Fatalf("frame %d: mono passthrough = %v, want 0.3", i, out[2*i])
		}
	}
}
