// Package warp plays pre-loaded mono samples back at a runtime-variable rate.
//
// Two playback modes are provided: IndexWarp derives a wrapped fractional index
// from an external counter, and ReadHead owns a fractional read pointer that is
// advanced on every call. Both interpolate linearly between neighbouring
// samples and fade the output near the loop seam so the wrap does not click.
//
// Nothing in this package allocates after construction; every wrap is a single
// modulo so the worst-case cost per call is fixed.
package warp

import (
	"errors"
	"math"

	"github.com/chewxy/math32"
)

// ErrEmptySample is returned when a sample buffer has no frames.
var ErrEmptySample = errors.New("sample buffer is empty")

// Sample is an immutable mono audio buffer.
type Sample struct {
	data   []float32
	length float32
}

// NewSample wraps data. The slice must not be modified afterwards.
func NewSample(data []float32) (*Sample, error) {
	if len(data) == 0 {
		return nil, ErrEmptySample
	}
	return &Sample{data: data, length: float32(len(data))}, nil
}

// Len returns the number of frames in the sample.
func (s *Sample) Len() int {
	return len(s.data)
}

// At returns the raw frame at index i.
func (s *Sample) At(i int) float32 {
	return s.data[i]
}

// interpolate reads the sample at a fractional position in [0, length).
// The frame after the last one is the first one.
func (s *Sample) interpolate(pos float32) float32 {
	prev := int(pos)
	next := prev + 1
	if next >= len(s.data) {
		next = 0
	}
	frac := pos - float32(prev)
	a := s.data[prev]
	return a + frac*(s.data[next]-a)
}

// edgeFade returns a linear gain that ramps from 0 at either loop seam up to 1
// over fade frames.
func edgeFade(pos, length, fade float32) float32 {
	if fade <= 0 {
		return 1
	}
	if pos < fade {
		return pos / fade
	}
	if tail := length - pos; tail < fade {
		return tail / fade
	}
	return 1
}

// wrap folds pos into [0, length).
func wrap(pos, length float32) float32 {
	pos = math32.Mod(pos, length)
	if pos < 0 {
		pos += length
	}
	if pos >= length {
		// rounding on a tiny negative remainder
		pos = 0
	}
	return pos
}

// IndexWarp reads s at counter*ratio, wrapped to the sample length. The fade
// length is scaled by ratio so faster playback keeps the same audible fade time.
func IndexWarp(s *Sample, counter uint64, ratio, fadeFrames float32) float32 {
	// float64 keeps the product exact for long-running counters
	pos := float32(math.Mod(float64(counter)*float64(ratio), float64(len(s.data))))
	if pos >= s.length {
		pos = 0
	}
	return s.interpolate(pos) * edgeFade(pos, s.length, fadeFrames*ratio)
}
