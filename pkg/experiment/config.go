package experiment

import (
	"fmt"
	"time"
)

// Config describes the experiment protocol.
type Config struct {
	// ConditionOrder is the order in which conditions are run.
	ConditionOrder []Condition `yaml:"condition_order" json:"condition_order"`

	// TrialCounts is the number of repetitions for each entry of ConditionOrder.
	TrialCounts []int `yaml:"trial_counts" json:"trial_counts"`

	// TrialDurations is indexed by repetition within a condition, so the
	// first entry can hold a distinct practice trial. Repetitions past the
	// end of the list reuse the last entry.
	TrialDurations []time.Duration `yaml:"trial_durations" json:"trial_durations"`

	// BreakDuration is the pause between repetitions.
	BreakDuration time.Duration `yaml:"break_duration" json:"break_duration"`

	// PlayTrialSounds enables the start and end cue tones.
	PlayTrialSounds bool `yaml:"play_trial_sounds" json:"play_trial_sounds"`

	// StartTones and EndTones are cue frequencies in Hz. 0 is a silent gap.
	StartTones []float32 `yaml:"start_tones" json:"start_tones"`
	EndTones   []float32 `yaml:"end_tones" json:"end_tones"`

	// ToneStep is how long each cue step is held.
	ToneStep time.Duration `yaml:"tone_step" json:"tone_step"`

	// ControlCapture starts the capture recording when the experiment
	// starts and stops it when the experiment ends.
	ControlCapture bool `yaml:"control_capture" json:"control_capture"`
}

// DefaultConfig returns the lab protocol: three conditions of four trials,
// a 30 s practice trial followed by three 120 s trials, 15 s breaks.
func DefaultConfig() Config {
	return Config{
		ConditionOrder: []Condition{NoSonification, TaskSonification, SyncSonification},
		TrialCounts:    []int{4, 4, 4},
		TrialDurations: []time.Duration{
			30 * time.Second,
			120 * time.Second,
			120 * time.Second,
			120 * time.Second,
		},
		BreakDuration:   15 * time.Second,
		PlayTrialSounds: true,
		StartTones:      []float32{440, 0, 440, 0, 880},
		EndTones:        []float32{880, 0, 440},
		ToneStep:        250 * time.Millisecond,
	}
}

// Validate checks the protocol for defects.
func (c *Config) Validate() error {
	if len(c.ConditionOrder) == 0 {
		return &ConfigError{Field: "ConditionOrder", Message: ErrNoConditions.Error()}
	}
	for i, cond := range c.ConditionOrder {
		if !cond.Valid() {
			return &ConfigError{Field: "ConditionOrder", Message: fmt.Sprintf("entry %d: %v", i, cond)}
		}
	}
	if len(c.TrialCounts) != len(c.ConditionOrder) {
		return &ConfigError{
			Field:   "TrialCounts",
			Message: fmt.Sprintf("need one trial count per condition, got %d for %d conditions", len(c.TrialCounts), len(c.ConditionOrder)),
		}
	}
	for i, n := range c.TrialCounts {
		if n < 1 {
			return &ConfigError{Field: "TrialCounts", Message: fmt.Sprintf("entry %d must be at least 1, got %d", i, n)}
		}
	}
	if len(c.TrialDurations) == 0 {
		return &ConfigError{Field: "TrialDurations", Message: ErrNoTrialDurations.Error()}
	}
	for i, d := range c.TrialDurations {
		if d <= 0 {
			return &ConfigError{Field: "TrialDurations", Message: fmt.Sprintf("entry %d must be positive, got %v", i, d)}
		}
	}
	if c.BreakDuration < 0 {
		return &ConfigError{Field: "BreakDuration", Message: fmt.Sprintf("must not be negative, got %v", c.BreakDuration)}
	}
	if c.PlayTrialSounds {
		if c.ToneStep <= 0 {
			return &ConfigError{Field: "ToneStep", Message: fmt.Sprintf("must be positive, got %v", c.ToneStep)}
		}
		for _, f := range append(append([]float32(nil), c.StartTones...), c.EndTones...) {
			if f < 0 {
				return &ConfigError{Field: "Tones", Message: fmt.Sprintf("cue frequency must not be negative, got %v", f)}
			}
		}
	}
	return nil
}

// TrialDuration returns the duration of the given repetition.
func (c *Config) TrialDuration(rep int) time.Duration {
	if rep >= len(c.TrialDurations) {
		rep = len(c.TrialDurations) - 1
	}
	if rep < 0 {
		rep = 0
	}
	return c.TrialDurations[rep]
}

// TotalTrials returns the number of trials across all conditions.
func (c *Config) TotalTrials() int {
	total := 0
	for _, n := range c.TrialCounts {
		total += n
	}
	return total
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
