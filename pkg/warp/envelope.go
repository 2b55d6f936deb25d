package warp

// Envelope is a slow periodic amplitude fade used to keep a looping sample
// from sounding static.
//
// Over each period of BaseRate frames the gain ramps up over FadeFrames, holds,
// and ramps down over the final FadeFrames. Depth scales how far the gain dips:
// 0 disables the envelope, 1 fades fully to silence at the period boundary.
type Envelope struct {
	BaseRate   uint32
	FadeFrames uint32
	Depth      float32

	index uint32
}

// NewEnvelope returns an envelope at the start of its period.
func NewEnvelope(baseRate, fadeFrames uint32, depth float32) *Envelope {
	return &Envelope{BaseRate: baseRate, FadeFrames: fadeFrames, Depth: depth}
}

// Value returns the gain at the current index.
func (e *Envelope) Value() float32 {
	if e.Depth <= 0 || e.FadeFrames == 0 || e.BaseRate == 0 {
		return 1
	}

	ramp := float32(1)
	switch {
	case e.index < e.FadeFrames:
		ramp = float32(e.index+1) / float32(e.FadeFrames)
	case e.BaseRate-e.index <= e.FadeFrames:
		ramp = float32(e.BaseRate-e.index-1) / float32(e.FadeFrames)
	}
	return 1 - e.Depth*(1-ramp)
}

// Advance moves to the next frame, wrapping at BaseRate. Callers advance only
// while sound is being produced.
func (e *Envelope) Advance() {
	e.index++
	if e.index >= e.BaseRate {
		e.index = 0
	}
}

// Index returns the current position within the period.
func (e *Envelope) Index() uint32 {
	return e.index
}

// Reset returns to the start of the period.
func (e *Envelope) Reset() {
	e.index = 0
}
