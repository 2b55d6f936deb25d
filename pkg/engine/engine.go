// Package engine renders the experiment's audio, one host buffer at a time.
//
// Render is the hard-deadline path. It reads the sequencer's flags and cue
// and the newest motion snapshot once per buffer, then synthesizes every frame
// without locking, allocating or touching the network. After each buffer it
// advances the sample clock and kicks the scheduled tasks (ingestion and
// sequencing), which run on their own goroutines.
package engine

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/chewxy/math32"

	"github.com/teslashibe/go-sonify/pkg/experiment"
	"github.com/teslashibe/go-sonify/pkg/metrics"
	"github.com/teslashibe/go-sonify/pkg/motion"
	"github.com/teslashibe/go-sonify/pkg/space"
	"github.com/teslashibe/go-sonify/pkg/warp"
)

// minRatio keeps extrapolated positions far off the track from stalling or
// reversing a read head.
const minRatio float32 = 1e-3

// Engine owns every piece of render state: read heads, the cue oscillator and
// the amplitude envelope.
type Engine struct {
	cfg    Config
	flags  *experiment.Flags
	cue    *experiment.Cue
	motion *motion.Buffer
	logger *slog.Logger

	under  *warp.ReadHead
	under2 *warp.ReadHead
	over   *warp.ReadHead
	env    *warp.Envelope

	sampleRate float32
	channels   int
	ready      bool

	// Render goroutine state
	phase    float32
	toneGen  uint32
	trialGen uint32

	clock   atomic.Uint64
	stopped atomic.Bool
	tasks   []*Task
}

// New creates an engine playing undertone and overtone.
func New(cfg Config, flags *experiment.Flags, cue *experiment.Cue, buf *motion.Buffer, undertone, overtone *warp.Sample, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if undertone == nil || overtone == nil {
		return nil, warp.ErrEmptySample
	}
	if logger == nil {
		logger = slog.Default()
	}

	baseRate := uint32(0)
	if cfg.EnvelopeDivisions > 0 {
		baseRate = uint32(undertone.Len()) / cfg.EnvelopeDivisions
	}

	return &Engine{
		cfg:    cfg,
		flags:  flags,
		cue:    cue,
		motion: buf,
		logger: logger.With("component", "engine"),
		under:  warp.NewReadHead(undertone, cfg.EdgeFadeFrames),
		under2: warp.NewReadHead(undertone, cfg.EdgeFadeFrames),
		over:   warp.NewReadHead(overtone, cfg.EdgeFadeFrames),
		env:    warp.NewEnvelope(baseRate, cfg.EnvelopeFadeFrames, cfg.EnvelopeDepth),
	}, nil
}

// Schedule registers a task to kick after every buffer. Call before the host
// starts rendering.
func (e *Engine) Schedule(t *Task) {
	e.tasks = append(e.tasks, t)
}

// Setup is called once by the host with the device format.
func (e *Engine) Setup(sampleRate float64, channels int) error {
	if sampleRate <= 0 || channels < 1 {
		return fmt.Errorf("%w: %v Hz, %d channels", ErrInvalidFormat, sampleRate, channels)
	}
	e.sampleRate = float32(sampleRate)
	e.channels = channels
	e.ready = true
	e.logger.Info("engine ready",
		"sample_rate", sampleRate,
		"channels", channels,
		"undertone_frames", e.under.Sample().Len(),
		"overtone_frames", e.over.Sample().Len(),
	)
	return nil
}

// Cleanup is called once by the host at shutdown. No task is kicked after it
// returns.
func (e *Engine) Cleanup() {
	e.stopped.Store(true)
	e.logger.Info("engine stopped", "clock", e.clock.Load())
}

// Clock returns the number of frames rendered so far.
func (e *Engine) Clock() uint64 {
	return e.clock.Load()
}

// SampleRate returns the rate passed to Setup.
func (e *Engine) SampleRate() float64 {
	return float64(e.sampleRate)
}

// Render fills out, one slice per channel, all of equal length.
func (e *Engine) Render(out [][]float32) {
	if len(out) == 0 {
		return
	}
	n := len(out[0])
	if !e.ready {
		zero(out)
		return
	}
	start := time.Now()

	silent := e.flags.Silence()
	cue := e.cue.Load()
	snap := e.motion.Latest()

	if cue.TrialGen != e.trialGen {
		e.trialGen = cue.TrialGen
		e.under.Reset()
		e.under2.Reset()
		e.over.Reset()
		e.env.Reset()
	}
	if cue.ToneGen != e.toneGen {
		e.toneGen = cue.ToneGen
		e.phase = 0
	}

	switch {
	case silent:
		zero(out)
	case cue.Active:
		e.renderTone(out, cue.Frequency)
	case cue.Condition == experiment.TaskSonification:
		e.renderTask(out, snap)
	case cue.Condition == experiment.SyncSonification:
		e.renderSync(out, snap)
	default:
		zero(out)
	}

	e.clock.Add(uint64(n))
	metrics.RenderBuffersTotal.Inc()
	metrics.RenderFramesTotal.Add(float64(n))
	if budget := time.Duration(float64(n) / float64(e.sampleRate) * float64(time.Second)); time.Since(start) > budget {
		metrics.RenderOverrunsTotal.Inc()
	}

	if e.stopped.Load() {
		return
	}
	for _, t := range e.tasks {
		t.Kick()
	}
}

func (e *Engine) renderTone(out [][]float32, freq float32) {
	inc := 2 * math32.Pi * freq / e.sampleRate
	for i := range out[0] {
		v := e.cfg.ToneGain * math32.Sin(e.phase)
		e.phase += inc
		if e.phase > math32.Pi {
			e.phase -= 2 * math32.Pi
		}
		for ch := range out {
			out[ch][i] = v
		}
	}
}

// renderTask plays each subject on its own voice: subject 0 drives the
// undertone, subject 1 the overtone. Both channels carry the same mix.
func (e *Engine) renderTask(out [][]float32, snap *motion.Snapshot) {
	c := &e.cfg
	x0 := snap.Current[0][c.TrackAxis]
	x1 := snap.Current[1][c.TrackAxis]

	underRatio := ratio(space.PositionToFrequency(x0, c.TrackMin, c.TrackMax, c.UndertoneMin, c.UndertoneMax), c.UndertoneMin)
	overRatio := ratio(space.PositionToFrequency(x1, c.TrackMin, c.TrackMax, c.OvertoneMin, c.OvertoneMax), c.OvertoneMin)

	for i := range out[0] {
		v := (e.under.Read(underRatio, false) + e.over.Read(overRatio, false)) * c.OutputGain * e.env.Value()
		e.env.Advance()
		for ch := range out {
			out[ch][i] = v
		}
	}
}

// renderSync plays undertones pitched apart by the subjects' separation and a
// fixed center overtone that fades in as they converge.
func (e *Engine) renderSync(out [][]float32, snap *motion.Snapshot) {
	c := &e.cfg
	x0 := snap.Current[0][c.TrackAxis]
	x1 := snap.Current[1][c.TrackAxis]

	freqs := space.SyncFrequencies(x0, x1, c.TrackMin, c.TrackMax, c.UndertoneMin, c.UndertoneMax, c.SyncThreshold)
	amp := space.SyncAmplitude(x0, x1, c.TrackMin, c.TrackMax, c.SyncAmplitudeThreshold)
	leftRatio := ratio(freqs[0], c.UndertoneMin)
	rightRatio := ratio(freqs[1], c.UndertoneMin)
	centerRatio := ratio(c.CenterFrequency, c.OvertoneMin)
	two := c.SyncTwoChannels && len(out) > 1

	for i := range out[0] {
		g := c.OutputGain * e.env.Value()
		e.env.Advance()

		// With two channels the overtone is read once per frame, on the right.
		left := (e.under.Read(leftRatio, false) + e.over.Read(centerRatio, two)*amp) * g
		right := left
		if two {
			right = (e.under2.Read(rightRatio, false) + e.over.Read(centerRatio, false)*amp) * g
		}

		out[0][i] = left
		for ch := 1; ch < len(out); ch++ {
			out[ch][i] = right
		}
	}
}

func ratio(freq, natural float32) float32 {
	r := freq / natural
	if r < minRatio {
		return minRatio
	}
	return r
}

func zero(out [][]float32) {
	for _, ch := range out {
		clear(ch)
	}
}
