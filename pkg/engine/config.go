package engine

import (
	"fmt"

	"github.com/teslashibe/go-sonify/pkg/space"
)

// Config holds the synthesis parameters.
type Config struct {
	// TrackAxis selects the coordinate mapped to pitch: 0 x, 1 y, 2 z.
	TrackAxis int `yaml:"track_axis" json:"track_axis"`

	// TrackMin and TrackMax are the ends of the tracked path on TrackAxis.
	TrackMin float32 `yaml:"track_min" json:"track_min"`
	TrackMax float32 `yaml:"track_max" json:"track_max"`

	// UndertoneMin/Max is the pitch range of the undertone voice in Hz.
	// UndertoneMin is also the natural pitch of the undertone sample.
	UndertoneMin float32 `yaml:"undertone_min" json:"undertone_min"`
	UndertoneMax float32 `yaml:"undertone_max" json:"undertone_max"`

	// OvertoneMin/Max is the pitch range of the overtone voice in Hz.
	// OvertoneMin is also the natural pitch of the overtone sample.
	OvertoneMin float32 `yaml:"overtone_min" json:"overtone_min"`
	OvertoneMax float32 `yaml:"overtone_max" json:"overtone_max"`

	// CenterFrequency is the fixed overtone pitch in the sync condition.
	CenterFrequency float32 `yaml:"center_frequency" json:"center_frequency"`

	// SyncThreshold is the fraction of the track length at which the sync
	// undertones reach the ends of their range.
	SyncThreshold float32 `yaml:"sync_threshold" json:"sync_threshold"`

	// SyncAmplitudeThreshold is the fraction of the track length at which the
	// sync overtone fades out completely.
	SyncAmplitudeThreshold float32 `yaml:"sync_amplitude_threshold" json:"sync_amplitude_threshold"`

	// SyncTwoChannels gives each subject its own undertone channel in the
	// sync condition instead of one shared mix.
	SyncTwoChannels bool `yaml:"sync_two_channels" json:"sync_two_channels"`

	// ToneGain scales the cue tones.
	ToneGain float32 `yaml:"tone_gain" json:"tone_gain"`

	// OutputGain scales the sonification mix.
	OutputGain float32 `yaml:"output_gain" json:"output_gain"`

	// EdgeFadeFrames is the loop-seam fade length at natural pitch.
	EdgeFadeFrames float32 `yaml:"edge_fade_frames" json:"edge_fade_frames"`

	// EnvelopeDepth is the depth of the slow amplitude envelope, 0 disables it.
	EnvelopeDepth float32 `yaml:"envelope_depth" json:"envelope_depth"`

	// EnvelopeFadeFrames is the ramp length at each end of an envelope period.
	EnvelopeFadeFrames uint32 `yaml:"envelope_fade_frames" json:"envelope_fade_frames"`

	// EnvelopeDivisions sets the envelope period to the undertone sample
	// length divided by this value.
	EnvelopeDivisions uint32 `yaml:"envelope_divisions" json:"envelope_divisions"`
}

// DefaultConfig returns the installation defaults.
func DefaultConfig() Config {
	return Config{
		TrackAxis:              1,
		TrackMin:               -250,
		TrackMax:               900,
		UndertoneMin:           232.819,
		UndertoneMax:           369.577,
		OvertoneMin:            349.23,
		OvertoneMax:            554.365,
		CenterFrequency:        440,
		SyncThreshold:          space.DefaultSyncThreshold,
		SyncAmplitudeThreshold: 0.15,
		ToneGain:               0.8,
		OutputGain:             0.5,
		EdgeFadeFrames:         256,
		EnvelopeDepth:          0,
		EnvelopeFadeFrames:     2515,
		EnvelopeDivisions:      15,
	}
}

// Validate rejects parameters that would produce a non-positive playback
// rate or divide by zero.
func (c *Config) Validate() error {
	if c.TrackAxis < 0 || c.TrackAxis > 2 {
		return fmt.Errorf("track_axis must be 0, 1 or 2, got %d", c.TrackAxis)
	}
	if c.TrackMax <= c.TrackMin {
		return fmt.Errorf("track_max (%v) must be greater than track_min (%v)", c.TrackMax, c.TrackMin)
	}
	if c.UndertoneMin <= 0 || c.UndertoneMax <= c.UndertoneMin {
		return fmt.Errorf("undertone range must be positive and increasing, got %v..%v", c.UndertoneMin, c.UndertoneMax)
	}
	if c.OvertoneMin <= 0 || c.OvertoneMax <= c.OvertoneMin {
		return fmt.Errorf("overtone range must be positive and increasing, got %v..%v", c.OvertoneMin, c.OvertoneMax)
	}
	if c.CenterFrequency <= 0 {
		return fmt.Errorf("center_frequency must be positive, got %v", c.CenterFrequency)
	}
	if c.SyncThreshold <= 0 || c.SyncAmplitudeThreshold <= 0 {
		return fmt.Errorf("sync thresholds must be positive, got %v and %v", c.SyncThreshold, c.SyncAmplitudeThreshold)
	}
	if c.EdgeFadeFrames < 0 {
		return fmt.Errorf("edge_fade_frames must not be negative, got %v", c.EdgeFadeFrames)
	}
	if c.EnvelopeDepth < 0 || c.EnvelopeDepth > 1 {
		return fmt.Errorf("envelope_depth must be in [0, 1], got %v", c.EnvelopeDepth)
	}
	if c.EnvelopeDepth > 0 && c.EnvelopeDivisions == 0 {
		return fmt.Errorf("envelope_divisions must be positive when the envelope is enabled")
	}
	return nil
}
