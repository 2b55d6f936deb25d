package motion

import (
	"fmt"

	"github.com/teslashibe/go-sonify/pkg/telemetry"
)

// Bindings maps subject labels to transport marker indices. The capture
// server may relabel at any time, so bindings are re-resolved on failure.
type Bindings struct {
	labels []string
	index  [NumSubjects]int
	valid  bool
}

// NewBindings returns unresolved bindings for the given subject labels.
func NewBindings(labels []string) (*Bindings, error) {
	if len(labels) != NumSubjects {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrSubjectCount, len(labels), NumSubjects)
	}
	return &Bindings{labels: append([]string(nil), labels...)}, nil
}

// Resolve binds every subject to a distinct marker. On any failure all
// bindings are invalidated.
func (b *Bindings) Resolve(markers []telemetry.Marker) error {
	b.valid = false

	var found [NumSubjects]bool
	var index [NumSubjects]int
	for _, m := range markers {
		for i, label := range b.labels {
			if m.Label == label && !found[i] {
				index[i] = m.Index
				found[i] = true
			}
		}
	}

	var missing []string
	for i, ok := range found {
		if !ok {
			missing = append(missing, b.labels[i])
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %v", ErrPartialBinding, missing)
	}
	for i := 0; i < NumSubjects; i++ {
		for j := i + 1; j < NumSubjects; j++ {
			if index[i] == index[j] {
				return fmt.Errorf("%w: %s and %s at %d", ErrDuplicateBinding, b.labels[i], b.labels[j], index[i])
			}
		}
	}

	b.index = index
	b.valid = true
	return nil
}

// Index returns the marker index bound to subject.
func (b *Bindings) Index(subject int) (int, error) {
	if !b.valid {
		return 0, fmt.Errorf("subject %s: %w", b.labels[subject], ErrUnbound)
	}
	return b.index[subject], nil
}

// Label returns the label of subject.
func (b *Bindings) Label(subject int) string {
	return b.labels[subject]
}

// Valid reports whether every subject is bound.
func (b *Bindings) Valid() bool {
	return b.valid
}

// Invalidate drops every binding.
func (b *Bindings) Invalidate() {
	b.valid = false
}
