// Package audioio drives a Renderer from an audio output device.
//
// This package supports multiple backends:
//   - PortAudio - callback host with the lowest latency (build tag "portaudio")
//   - Oto - pull host available everywhere without cgo audio headers
//   - Headless - a ticker-paced host for dry runs, CI and tests
//
// The backend is selected automatically based on build tags, or can be
// explicitly specified via configuration.
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto automatically selects the best available backend.
	BackendAuto Backend = "auto"
	// BackendPortAudio uses a PortAudio callback stream.
	BackendPortAudio Backend = "portaudio"
	// BackendOto uses an oto player pulling from the renderer.
	BackendOto Backend = "oto"
	// BackendHeadless renders into memory at real-time pace.
	BackendHeadless Backend = "headless"
)

// Config holds audio configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	// Default: "auto" (selects best available for the build)
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the device sample rate in Hz. Assets are resampled to it.
	// Default: 44100
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the number of output channels.
	// Default: 2 (stereo, required by two-channel sync mode)
	Channels int `yaml:"channels" json:"channels"`

	// BufferDuration is the size of one render buffer.
	// Default: 5ms (220 frames at 44.1kHz)
	BufferDuration time.Duration `yaml:"buffer_duration" json:"buffer_duration"`

	// Device selects the output device by name. Empty uses the system default.
	// Only the PortAudio backend honours it.
	Device string `yaml:"device" json:"device"`

	// RealtimePriority requests SCHED_FIFO at this priority for the render
	// thread on Linux. 0 leaves the scheduler alone.
	RealtimePriority int `yaml:"realtime_priority" json:"realtime_priority"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:          BackendAuto,
		SampleRate:       44100,
		Channels:         2,
		BufferDuration:   5 * time.Millisecond,
		Device:           "", // Use system default
		RealtimePriority: 0,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendAuto, BackendPortAudio, BackendOto, BackendHeadless:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("buffer_duration must be positive, got %v", c.BufferDuration)
	}
	if c.BufferSize() < 1 {
		return fmt.Errorf("buffer_duration %v is shorter than one frame", c.BufferDuration)
	}
	if c.RealtimePriority < 0 || c.RealtimePriority > 99 {
		return fmt.Errorf("realtime_priority must be in [0, 99], got %d", c.RealtimePriority)
	}
	return nil
}

// BufferSize returns the number of frames per buffer.
func (c *Config) BufferSize() int {
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds())
}

// BufferBytes returns the size of an interleaved float32 buffer in bytes.
func (c *Config) BufferBytes() int {
	return c.BufferSize() * c.Channels * 4
}
