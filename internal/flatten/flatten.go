package flatten

import "fmt"

// Separator joins path segments in flattened keys.
const Separator = "."

// Flatten flattens input into a new Object.
func Flatten(input any) *Object {
	return FlattenInto(input, "", nil)
}

// FlattenInto walks input depth-first and writes every leaf into acc under
// its dot-joined path, prefixed by prefix. A nil acc is replaced by a fresh
// Object. Input that is not a mapping leaves acc untouched.
//
// Keys are not escaped, so distinct paths may render to the same key; the
// later write wins. Cyclic input is not detected and recurses until the stack
// is exhausted. Use New with WithCycleDetection when the input is untrusted.
func FlattenInto(input any, prefix string, acc *Object) *Object {
	if acc == nil {
		acc = NewObject()
	}
	if Classify(input) != KindMapping {
		return acc
	}

	_ = eachEntry(input, func(key string, value any) error {
		newKey := joinKey(prefix, key)
		if Classify(value) == KindMapping {
			FlattenInto(value, newKey, acc)
			return nil
		}
		acc.Set(newKey, value)
		return nil
	})
	return acc
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + Separator + key
}

// Option configures a guarded Flattener.
type Option func(*guardedFlattener)

// WithMaxDepth limits how deeply mappings may nest. The top-level input has
// depth 1. Zero or a negative value disables the limit.
func WithMaxDepth(depth int) Option {
	return func(f *guardedFlattener) {
		f.maxDepth = depth
	}
}

// WithCycleDetection enables detection of mappings that contain themselves.
func WithCycleDetection(enabled bool) Option {
	return func(f *guardedFlattener) {
		f.detectCycles = enabled
	}
}

// WithMaxEntries caps how many mapping entries one Flatten call may visit.
// A shared subtree counts each time it is reached, so inputs built from
// repeated aliases cannot expand without bound. Zero or a negative value
// disables the cap.
func WithMaxEntries(n int) Option {
	return func(f *guardedFlattener) {
		f.maxEntries = n
	}
}

type guardedFlattener struct {
	maxDepth     int
	maxEntries   int
	detectCycles bool
}

// walkState is the per-call bookkeeping of a guarded walk.
type walkState struct {
	active  map[uintptr]struct{}
	visited int
}

// New creates a Flattener that applies the configured guards. Without
// options it behaves exactly like FlattenInto and never returns an error.
func New(opts ...Option) Flattener {
	f := &guardedFlattener{}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Flatten implements Flattener. On error acc may hold a partial result.
func (f *guardedFlattener) Flatten(input any, prefix string, acc *Object) (*Object, error) {
	if acc == nil {
		acc = NewObject()
	}
	if Classify(input) != KindMapping {
		return acc, nil
	}

	st := &walkState{}
	if f.detectCycles {
		st.active = make(map[uintptr]struct{})
	}
	if err := f.walk(input, prefix, acc, 1, st); err != nil {
		return acc, err
	}
	return acc, nil
}

func (f *guardedFlattener) walk(m any, prefix string, acc *Object, depth int, st *walkState) error {
	if f.maxDepth > 0 && depth > f.maxDepth {
		return fmt.Errorf("%w: %q is nested %d levels deep (limit %d)", ErrDepthExceeded, prefix, depth, f.maxDepth)
	}
	if st.active != nil {
		id := identity(m)
		if _, seen := st.active[id]; seen {
			return fmt.Errorf("%w: %q refers back to an enclosing mapping", ErrCyclicStructure, prefix)
		}
		st.active[id] = struct{}{}
		defer delete(st.active, id)
	}

	return eachEntry(m, func(key string, value any) error {
		newKey := joinKey(prefix, key)
		st.visited++
		if f.maxEntries > 0 && st.visited > f.maxEntries {
			return fmt.Errorf("%w: limit %d reached at %q", ErrTooManyEntries, f.maxEntries, newKey)
		}
		if Classify(value) == KindMapping {
			return f.walk(value, newKey, acc, depth+1, st)
		}
		acc.Set(newKey, value)
		return nil
	})
}
