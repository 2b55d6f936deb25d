// Package experiment sequences a multi-condition sonification experiment.
//
// The Sequencer walks the trial state machine one Step at a time, driven by the
// audio sample clock. It never sleeps: every wait is a comparison between the
// clock and the start of the current phase. The only state it shares with the
// render and ingestion paths is Flags and Cue, both lock-free.
package experiment

import (
	"fmt"
	"strings"

	"github.com/teslashibe/go-sonify/pkg/telemetry"
)

// Condition is one experimental treatment.
type Condition int

const (
	// NoSonification plays cue tones only; trial bodies are silent.
	NoSonification Condition = iota

	// TaskSonification maps each subject's position to its own voice.
	TaskSonification

	// SyncSonification maps the distance between subjects to a shared,
	// synchronized voice pair.
	SyncSonification
)

// String returns the condition label used in config files and logs.
func (c Condition) String() string {
	switch c {
	case NoSonification:
		return "no_sonification"
	case TaskSonification:
		return "task_sonification"
	case SyncSonification:
		return "sync_sonification"
	default:
		return fmt.Sprintf("condition(%d)", int(c))
	}
}

// Tag returns the event tag identifying the condition in the capture log.
func (c Condition) Tag() telemetry.Tag {
	switch c {
	case TaskSonification:
		return telemetry.TagTaskSonification
	case SyncSonification:
		return telemetry.TagSyncSonification
	default:
		return telemetry.TagNoSonification
	}
}

// Sonified reports whether trials in this condition produce sonification.
func (c Condition) Sonified() bool {
	return c == TaskSonification || c == SyncSonification
}

// Valid reports whether c is a known condition.
func (c Condition) Valid() bool {
	return c >= NoSonification && c <= SyncSonification
}

// ParseCondition parses a condition label. The short tag form ("n", "t", "y")
// is accepted as well.
func ParseCondition(s string) (Condition, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "no_sonification", "none", "n":
		return NoSonification, nil
	case "task_sonification", "task", "t":
		return TaskSonification, nil
	case "sync_sonification", "sync", "y":
		return SyncSonification, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCondition, s)
}

// MarshalText implements encoding.TextMarshaler.
func (c Condition) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCondition, int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Condition) UnmarshalText(text []byte) error {
	parsed, err := ParseCondition(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Phase is a state of the experiment state machine.
type Phase int

const (
	// PhaseAwaitingOperator waits for the operator's continue action, before
	// the experiment and between conditions.
	PhaseAwaitingOperator Phase = iota

	// PhaseExperimentStart marks the start of the experiment.
	PhaseExperimentStart

	// PhaseStartTone plays the trial start cue.
	PhaseStartTone

	// PhaseTrialRunning is the timed trial body.
	PhaseTrialRunning

	// PhaseEndTone plays the trial end cue.
	PhaseEndTone

	// PhaseBreak is the pause between repetitions of a condition.
	PhaseBreak

	// PhaseExperimentEnd is terminal.
	PhaseExperimentEnd
)

// String returns a human-readable phase name.
func (p Phase) String() string {
	switch p {
	case PhaseAwaitingOperator:
		return "awaiting_operator"
	case PhaseExperimentStart:
		return "experiment_start"
	case PhaseStartTone:
		return "start_tone"
	case PhaseTrialRunning:
		return "trial_running"
	case PhaseEndTone:
		return "end_tone"
	case PhaseBreak:
		return "break"
	case PhaseExperimentEnd:
		return "experiment_end"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so phases read well in JSON.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}
