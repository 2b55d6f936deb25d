package motion

import "errors"

var (
	// ErrPartialBinding is returned when a reindex cannot resolve every subject.
	ErrPartialBinding = errors.New("not all subjects resolved to a marker")

	// ErrDuplicateBinding is returned when two subjects resolve to the same marker.
	ErrDuplicateBinding = errors.New("subjects resolved to the same marker")

	// ErrUnbound is returned when a subject has no valid marker index.
	ErrUnbound = errors.New("subject has no marker binding")

	// ErrSubjectCount is returned when the number of labels does not match NumSubjects.
	ErrSubjectCount = errors.New("wrong number of subject labels")
)
