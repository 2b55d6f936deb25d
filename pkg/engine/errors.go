package engine

import "errors"

var (
	// ErrNotSetup is returned when Render-dependent state is used before Setup.
	ErrNotSetup = errors.New("engine not set up")

	// ErrInvalidFormat is returned when Setup receives an unusable format.
	ErrInvalidFormat = errors.New("invalid audio format")
)
