package warp

// ReadHead owns a fractional read pointer into a Sample.
//
// A ReadHead belongs to the audio render goroutine; it is not safe for
// concurrent use.
type ReadHead struct {
	sample *Sample
	pos    float32
	fade   float32
}

// NewReadHead returns a read head positioned at the start of s. fadeFrames is
// the edge fade length at a rate ratio of 1.
func NewReadHead(s *Sample, fadeFrames float32) *ReadHead {
	return &ReadHead{sample: s, fade: fadeFrames}
}

// Read returns the interpolated value at the current position and then
// advances the pointer by ratio, unless hold is set.
//
// ratio is the desired playback rate relative to the sample's natural rate and
// must be positive. hold lets two output channels share one pointer without
// moving it twice per frame.
func (h *ReadHead) Read(ratio float32, hold bool) float32 {
	s := h.sample
	out := s.interpolate(h.pos) * edgeFade(h.pos, s.length, h.fade*ratio)
	if !hold {
		h.pos = wrap(h.pos+ratio, s.length)
	}
	return out
}

// Position returns the current fractional read position.
func (h *ReadHead) Position() float32 {
	return h.pos
}

// Seek moves the read pointer to pos, wrapped into the sample.
func (h *ReadHead) Seek(pos float32) {
	h.pos = wrap(pos, h.sample.length)
}

// Reset rewinds to the start of the sample.
func (h *ReadHead) Reset() {
	h.pos = 0
}

// Sample returns the buffer this head reads from.
func (h *ReadHead) Sample() *Sample {
	return h.sample
}
