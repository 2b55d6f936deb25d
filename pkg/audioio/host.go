package audioio

import (
	"context"
	"errors"
	"io"
)

// ErrClosed is returned when a closed host is started.
var ErrClosed = errors.New("audio host closed")

// Renderer produces audio for a host.
//
// Setup is called once before the first Render with the negotiated format.
// Render fills one slice per channel, all of equal length, and must not
// block. Cleanup is called once after the last Render.
type Renderer interface {
	Setup(sampleRate float64, channels int) error
	Render(out [][]float32)
	Cleanup()
}

// Host plays a Renderer on an output device.
type Host interface {
	// Start opens the device, calls Setup and begins rendering.
	Start(ctx context.Context) error

	// Stop halts rendering and calls Cleanup.
	// It is safe to call Stop multiple times.
	Stop() error

	// Config returns the current audio configuration.
	Config() Config

	// Name returns the backend name (e.g., "portaudio", "oto", "headless").
	Name() string

	// Stats returns render statistics.
	Stats() HostStats

	// Close releases all resources.
	// After Close, the host cannot be restarted.
	io.Closer
}

// HostStats contains statistics about the audio host.
type HostStats struct {
	// BuffersRendered is the total number of Render calls.
	BuffersRendered int64 `json:"buffers_rendered"`

	// FramesRendered is the total number of frames rendered.
	FramesRendered int64 `json:"frames_rendered"`

	// Running indicates if the host is currently rendering.
	Running bool `json:"running"`

	// Backend is the name of the audio backend.
	Backend string `json:"backend"`
}

// channelBuffers allocates one slice per channel.
func channelBuffers(channels, frames int) [][]float32 {
	out := make([][]float32, channels)
	for ch := range out {
		out[ch] = make([]float32, frames)
	}
	return out
}
