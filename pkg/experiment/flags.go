package experiment

import (
	"math"
	"sync/atomic"
)

// Flags are the two switches the sequencer flips for the render and ingestion
// paths. Silence starts true.
type Flags struct {
	silence   atomic.Bool
	streaming atomic.Bool
}

// NewFlags returns muted, non-streaming flags.
func NewFlags() *Flags {
	f := &Flags{}
	f.silence.Store(true)
	return f
}

// Silence reports whether no sound should be produced.
func (f *Flags) Silence() bool { return f.silence.Load() }

// SetSilence sets the mute flag.
func (f *Flags) SetSilence(v bool) { f.silence.Store(v) }

// Streaming reports whether telemetry should be polled.
func (f *Flags) Streaming() bool { return f.streaming.Load() }

// SetStreaming sets the streaming flag.
func (f *Flags) SetStreaming(v bool) { f.streaming.Store(v) }

// Cue publishes the synthesis parameters chosen by the sequencer: the active
// cue tone and the condition of the current trial. Each field is an atomic so
// the render path reads it without locking.
type Cue struct {
	active    atomic.Bool
	freq      atomic.Uint32
	toneGen   atomic.Uint32
	condition atomic.Int32
	trialGen  atomic.Uint32
}

// CueState is a point-in-time copy of Cue.
type CueState struct {
	// Active is true while a start or end cue is playing.
	Active bool

	// Frequency of the current cue step in Hz; 0 is a silent gap.
	Frequency float32

	// ToneGen changes on every cue step. The renderer resets its tone
	// phase when it sees a new value.
	ToneGen uint32

	// Condition selects the synthesis branch.
	Condition Condition

	// TrialGen changes at every trial start. The renderer rewinds its
	// read heads and envelope when it sees a new value.
	TrialGen uint32
}

// Load returns the current cue state.
func (c *Cue) Load() CueState {
	return CueState{
		Active:    c.active.Load(),
		Frequency: math.Float32frombits(c.freq.Load()),
		ToneGen:   c.toneGen.Load(),
		Condition: Condition(c.condition.Load()),
		TrialGen:  c.trialGen.Load(),
	}
}

// SetTone publishes a new cue step and activates the cue.
func (c *Cue) SetTone(freq float32) {
	c.freq.Store(math.Float32bits(freq))
	c.toneGen.Add(1)
	c.active.Store(true)
}

// StopTone deactivates the cue.
func (c *Cue) StopTone() {
	c.active.Store(false)
}

// StartTrial publishes the condition of a new trial.
func (c *Cue) StartTrial(cond Condition) {
	c.condition.Store(int32(cond))
	c.trialGen.Add(1)
}
