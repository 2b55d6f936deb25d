// Package operator turns physical and virtual operator actions into a
// single latched "continue" signal for the experiment sequencer.
package operator

import "sync/atomic"

// Input is a debounced, latched continue signal. Pressed reports a press
// that happened since the previous call and consumes it.
type Input interface {
	Pressed() bool
}

// Latch remembers a press until it is consumed. It is safe for concurrent
// use; Press may be called from any goroutine.
type Latch struct {
	pending atomic.Bool
	presses atomic.Int64
}

// Press records a press. Presses before the next Pressed call coalesce.
func (l *Latch) Press() {
	l.pending.Store(true)
	l.presses.Add(1)
}

// Pressed consumes a pending press.
func (l *Latch) Pressed() bool {
	return l.pending.Swap(false)
}

// Presses returns the total number of presses recorded.
func (l *Latch) Presses() int64 {
	return l.presses.Load()
}
