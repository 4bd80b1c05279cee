package flatten

import "errors"

var (
	// ErrDepthExceeded is returned when the input nests deeper than the configured limit.
	ErrDepthExceeded = errors.New("input nesting exceeds the maximum depth")
	// ErrCyclicStructure is returned when a mapping contains itself, directly or transitively.
	ErrCyclicStructure = errors.New("input contains a cyclic structure")
	// ErrTooManyEntries is returned when flattening visits more entries than the configured budget.
	ErrTooManyEntries = errors.New("input expands to more entries than allowed")
)
