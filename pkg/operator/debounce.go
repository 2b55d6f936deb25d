package operator

import "time"

// Debouncer turns a noisy level into clean press edges. A level change is
// accepted only after it has been stable for the hold time.
type Debouncer struct {
	hold time.Duration

	stable    bool
	candidate bool
	since     time.Time
}

// NewDebouncer creates a debouncer that starts in the released state.
func NewDebouncer(hold time.Duration) *Debouncer {
	return &Debouncer{hold: hold}
}

// Update feeds a raw sample taken at now and reports whether it completed
// a press (released to pressed transition).
func (d *Debouncer) Update(level bool, now time.Time) bool {
	if level != d.candidate {
		d.candidate = level
		d.since = now
	}
	if d.candidate == d.stable || now.Sub(d.since) < d.hold {
		return false
	}
	d.stable = d.candidate
	return d.stable
}

// State returns the debounced level.
func (d *Debouncer) State() bool {
	return d.stable
}
