package experiment

import "errors"

var (
	// ErrUnknownCondition is returned when a condition name cannot be parsed.
	ErrUnknownCondition = errors.New("unknown condition")

	// ErrNoConditions is returned when the condition order is empty.
	ErrNoConditions = errors.New("condition order is empty")

	// ErrNoTrialDurations is returned when no trial durations are configured.
	ErrNoTrialDurations = errors.New("no trial durations configured")

	// ErrInvalidSampleRate is returned when the sequencer clock rate is not positive.
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
)
