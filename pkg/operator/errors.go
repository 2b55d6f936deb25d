package operator

import "errors"

var (
	// ErrPortNotFound is returned when no MIDI input matches the configured port.
	ErrPortNotFound = errors.New("midi input port not found")

	// ErrNotTerminal is returned when keyboard input is requested without a terminal.
	ErrNotTerminal = errors.New("stdin is not a terminal")
)
