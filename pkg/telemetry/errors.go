package telemetry

import "errors"

var (
	// ErrNotConnected is returned when a feed is used before Connect.
	ErrNotConnected = errors.New("telemetry feed not connected")

	// ErrTimeout is returned when no frame arrives within the receive timeout.
	ErrTimeout = errors.New("telemetry receive timeout")

	// ErrMarkerMissing is returned when a frame has no valid position for a marker index.
	ErrMarkerMissing = errors.New("marker not present in frame")

	// ErrClosed is returned when a feed has been closed.
	ErrClosed = errors.New("telemetry feed closed")

	// ErrCommandFailed is returned when the capture server rejects a command.
	ErrCommandFailed = errors.New("telemetry command failed")
)
