package flatten

import (
	"reflect"
	"sort"
)

// Kind is the closed set of shapes a value can take during flattening.
type Kind int

const (
	// KindLeaf covers primitives, nil, nil mappings and anything that is not a
	// mapping or a sequence. Leaves are copied into the output as-is.
	KindLeaf Kind = iota
	// KindMapping is a non-nil string-keyed mapping; it is descended into.
	KindMapping
	// KindSequence is a slice or array. Sequences are leaves and are never
	// descended into, even when they hold mappings.
	KindSequence
)

func (k Kind) String() string {
	switch k {
	case KindMapping:
		return "mapping"
	case KindSequence:
		return "sequence"
	default:
		return "leaf"
	}
}

// Flattener describes the behaviour required from a flattener.
type Flattener interface {
	Flatten(input any, prefix string, acc *Object) (*Object, error)
}

// Classify reports the Kind of v.
func Classify(v any) Kind {
	switch t := v.(type) {
	case nil:
		return KindLeaf
	case *Object:
		if t == nil {
			return KindLeaf
		}
		return KindMapping
	case map[string]any:
		if t == nil {
			return KindLeaf
		}
		return KindMapping
	case []any:
		return KindSequence
	case string, bool, float64, int, int64:
		return KindLeaf
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() || rv.Type().Key().Kind() != reflect.String {
			return KindLeaf
		}
		return KindMapping
	case reflect.Slice, reflect.Array:
		return KindSequence
	default:
		return KindLeaf
	}
}

// eachEntry visits the entries of a mapping. Objects are visited in insertion
// order and Go maps in ascending key order. It stops at the first error.
func eachEntry(m any, fn func(key string, value any) error) error {
	switch t := m.(type) {
	case *Object:
		var err error
		t.Range(func(k string, v any) bool {
			err = fn(k, v)
			return err == nil
		})
		return err
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := fn(k, t[k]); err != nil {
				return err
			}
		}
		return nil
	}

	rv := reflect.ValueOf(m)
	keys := rv.MapKeys()
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	for _, k := range keys {
		if err := fn(k.String(), rv.MapIndex(k).Interface()); err != nil {
			return err
		}
	}
	return nil
}

// identity returns the address backing a mapping, used to spot cycles.
func identity(m any) uintptr {
	if o, ok := m.(*Object); ok {
		return reflect.ValueOf(o).Pointer()
	}
	return reflect.ValueOf(m).Pointer()
}
