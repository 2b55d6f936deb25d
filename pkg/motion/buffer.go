// Package motion keeps the latest tracked position of every subject and
// refreshes it from the telemetry feed.
//
// The Buffer has exactly one writer, the ingestion task, and any number of
// readers. The writer fills a private slot and publishes an immutable Snapshot
// through an atomic pointer once every subject is written, so the render path
// reads a consistent frame without locks.
package motion

import (
	"sync/atomic"

	"github.com/teslashibe/go-sonify/pkg/space"
)

// NumSubjects is the number of tracked subjects. The synthesis branches pair
// subject 0 with the undertone and subject 1 with the overtone.
const NumSubjects = 2

// Vec3 is a 3D position.
type Vec3 [3]float32

// Snapshot is one committed frame. It is never modified after publication.
type Snapshot struct {
	// Frame is the capture frame number.
	Frame uint32 `json:"frame"`

	// Current is the newest position of each subject.
	Current [NumSubjects]Vec3 `json:"current"`

	// Previous is the position from the frame before Current.
	Previous [NumSubjects]Vec3 `json:"previous"`

	// Step is the distance each subject moved between Previous and Current.
	Step [NumSubjects]float32 `json:"step"`

	// MaxStep is the largest step seen per subject since the last Reset.
	MaxStep [NumSubjects]float32 `json:"max_step"`

	// Seq counts commits since the last Reset.
	Seq uint64 `json:"seq"`
}

// Buffer is a double-buffered store of subject positions.
type Buffer struct {
	slots   [2][NumSubjects]Vec3
	cur     int
	seeded  bool
	maxStep [NumSubjects]float32
	seq     uint64

	latest atomic.Pointer[Snapshot]
}

// NewBuffer returns a buffer holding every subject at the origin.
func NewBuffer() *Buffer {
	b := &Buffer{}
	b.latest.Store(&Snapshot{})
	return b
}

// Set writes a subject's position into the pending slot.
func (b *Buffer) Set(subject int, p Vec3) {
	b.slots[b.cur][subject] = p
}

// Commit publishes the pending slot and swaps, so the committed frame becomes
// the previous one for the next commit. The first commit seeds both slots
// equal so there is no spurious initial jump.
func (b *Buffer) Commit(frame uint32) *Snapshot {
	cur := &b.slots[b.cur]
	prev := &b.slots[1-b.cur]
	if !b.seeded {
		*prev = *cur
		b.seeded = true
	}

	b.seq++
	snap := &Snapshot{
		Frame:    frame,
		Current:  *cur,
		Previous: *prev,
		Seq:      b.seq,
	}
	for i := 0; i < NumSubjects; i++ {
		step := space.Distance(cur[i], prev[i])
		snap.Step[i] = step
		if step > b.maxStep[i] {
			b.maxStep[i] = step
		}
	}
	snap.MaxStep = b.maxStep

	b.latest.Store(snap)
	b.cur = 1 - b.cur
	return snap
}

// Latest returns the most recently committed frame. Safe for concurrent use.
func (b *Buffer) Latest() *Snapshot {
	return b.latest.Load()
}

// Reset clears history so the next commit seeds again.
func (b *Buffer) Reset() {
	b.slots = [2][NumSubjects]Vec3{}
	b.cur = 0
	b.seeded = false
	b.maxStep = [NumSubjects]float32{}
	b.seq = 0
	b.latest.Store(&Snapshot{})
}
