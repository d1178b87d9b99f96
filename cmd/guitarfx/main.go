// Command guitarfx runs the guitar effects / arpeggiator engine against the
// system audio output. Without a capture backend the input bus is silent
// unless --tone synthesizes a test chord, which is enough to exercise the
// detector, arpeggiator, and delay chain end to end.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"

	"github.com/cwbudde/algo-guitarfx/dsp/arp"
	"github.com/cwbudde/algo-guitarfx/dsp/effects"
	"github.com/cwbudde/algo-guitarfx/dsp/synth"
	"github.com/cwbudde/algo-guitarfx/engine"
	"github.com/cwbudde/algo-guitarfx/host"
)

var version = "0.1.0"

// CLI defines the command-line interface.
type CLI struct {
	Version bool `short:"v" help:"Show version information"`

	SampleRate int `default:"48000" help:"Sample rate in Hz (44100, 48000, 96000, 192000)"`
	BlockSize  int `default:"512" help:"Block size in frames (power of two, 128..8192)"`

	LeftDelay     float64 `default:"0.3" help:"Left delay time in seconds"`
	RightDelay    float64 `default:"0.6" help:"Right delay time in seconds"`
	Feedback      float64 `default:"0.4" help:"Delay feedback (0..0.9)"`
	CrossFeedback float64 `default:"0.2" help:"Cross-channel feedback (0..0.5)"`
	WetMix        float64 `default:"0.5" help:"Wet mix (0..1)"`
	DryMix        float64 `default:"1.0" help:"Dry mix (0..1)"`
	PingPong      bool    `help:"Enable ping-pong delay routing"`
	StereoWidth   float64 `default:"0.5" help:"Stereo width enhancement (0..1)"`
	NoDelay       bool    `help:"Bypass the stereo delay"`

	Distortion      string  `default:"none" help:"Cross-feedback distortion: none, soft_clip, hard_clip, tube, fuzz, bit_crush, waveshaper"`
	DistortionDrive float64 `default:"0.3" help:"Distortion drive (0..1)"`

	Arp      bool    `help:"Enable the chord-driven arpeggiator"`
	BPM      float64 `default:"120" help:"Arpeggio tempo (20..300)"`
	Pattern  string  `default:"up" help:"Arpeggio pattern"`
	Synth    string  `default:"saw" help:"Synth waveform for arp voices"`
	Duration float64 `default:"2.0" help:"Arp timeline length in seconds (0.5..10)"`

	Tone bool `help:"Feed a C major test chord into the input bus"`
}

var (
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	chordStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
)

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("guitarfx"),
		kong.Description("Real-time guitar effects and chord-driven arpeggiator"),
		kong.UsageOnError(),
	)

	if cli.Version {
		fmt.Printf("guitarfx %s\n", version)
		os.Exit(0)
	}

	ctx.FatalIfErrorf(run(cli))
}

func run(cli *CLI) error {
	eng, err := engine.New(engine.Config{
		SampleRate:     cli.SampleRate,
		BlockSize:      cli.BlockSize,
		DetectorWorker: true,
	})
	if err != nil {
		return err
	}

	if err := applyParams(cli, eng.Params()); err != nil {
		return err
	}

	var source host.InputSource
	if cli.Tone {
		// C major: C4, E4, G4.
		source = host.ToneSource([]float64{261.63, 329.63, 392.00}, cli.SampleRate, 0.6)
	}

	audio, err := host.NewOtoHost(cli.SampleRate, cli.BlockSize, source)
	if err != nil {
		return err
	}

	if err := eng.Start(); err != nil {
		return err
	}
	defer eng.Stop()

	if err := audio.Start(eng.Process); err != nil {
		return err
	}
	defer func() { _ = audio.Stop() }()

	fmt.Println(labelStyle.Render("guitarfx") + valueStyle.Render(
		fmt.Sprintf(" %d Hz, %d frames/block — ctrl-c to quit", cli.SampleRate, cli.BlockSize)))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			fmt.Println()
			return nil
		case <-ticker.C:
			printStatus(eng.Status())
		}
	}
}

func applyParams(cli *CLI, p *engine.Params) error {
	if err := p.SetLeftDelaySeconds(cli.LeftDelay); err != nil {
		return err
	}
	if err := p.SetRightDelaySeconds(cli.RightDelay); err != nil {
		return err
	}
	if err := p.SetFeedback(cli.Feedback); err != nil {
		return err
	}
	if err := p.SetCrossFeedback(cli.CrossFeedback); err != nil {
		return err
	}
	if err := p.SetWetMix(cli.WetMix); err != nil {
		return err
	}
	if err := p.SetDryMix(cli.DryMix); err != nil {
		return err
	}
	if err := p.SetStereoWidth(cli.StereoWidth); err != nil {
		return err
	}
	p.SetPingPong(cli.PingPong)
	p.SetDelayEnabled(!cli.NoDelay)

	kind, err := effects.ParseDistortionKind(cli.Distortion)
	if err != nil {
		return err
	}
	if err := p.SetDistortionKind(kind); err != nil {
		return err
	}
	if err := p.SetDistortionDrive(cli.DistortionDrive); err != nil {
		return err
	}
	p.SetDistortionEnabled(kind != effects.DistortionNone)

	pattern, err := arp.ParsePattern(cli.Pattern)
	if err != nil {
		return err
	}
	if err := p.SetPattern(pattern); err != nil {
		return err
	}

	waveform, err := synth.ParseWaveform(cli.Synth)
	if err != nil {
		return err
	}
	if err := p.SetSynthKind(waveform); err != nil {
		return err
	}

	if err := p.SetTempoBPM(cli.BPM); err != nil {
		return err
	}
	if err := p.SetArpDurationSeconds(cli.Duration); err != nil {
		return err
	}
	p.SetArpEnabled(cli.Arp)

	return nil
}

func printStatus(s engine.Status) {
	chordLabel := "—"
	if s.Chord.Valid {
		chordLabel = fmt.Sprintf("%s (%.0f%%)", s.Chord.Symbol(), s.Chord.Confidence*100)
	}

	line := labelStyle.Render("chord ") + chordStyle.Render(chordLabel) +
		valueStyle.Render(fmt.Sprintf("  voices %d  in %.2f  out %.2f  cpu %.0f%%",
			s.ActiveVoices, s.InputPeak, s.OutputPeak, s.CPULoad*100))

	if s.TunerOK {
		line += valueStyle.Render(fmt.Sprintf("  tuner %s %+.0f cents", s.Tuner.OpenString, s.Tuner.Cents))
	}
	if s.Anomalies > 0 || s.VoiceExhausted > 0 {
		line += warnStyle.Render(fmt.Sprintf("  anomalies %d  starved %d", s.Anomalies, s.VoiceExhausted))
	}

	fmt.Println(line)
}
