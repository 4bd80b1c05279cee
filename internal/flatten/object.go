package flatten

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// Object is a string-keyed mapping that remembers insertion order.
//
// Overwriting an existing key replaces its value in place; the key keeps the
// position of its first insertion. An Object is not safe for concurrent
// mutation.
type Object struct {
	keys   []string
	values map[string]any
}

// NewObject returns an empty Object.
func NewObject() *Object {
	return NewObjectCap(0)
}

// NewObjectCap returns an empty Object with room for n keys.
func NewObjectCap(n int) *Object {
	if n < 0 {
		n = 0
	}
	return &Object{
		keys:   make([]string, 0, n),
		values: make(map[string]any, n),
	}
}

// Set stores value under key.
func (o *Object) Set(key string, value any) {
	if o.values == nil {
		o.values = make(map[string]any)
	}
	if _, exists := o.values[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.values[key] = value
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (any, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.values[key]
	return v, ok
}

// Has reports whether key is present.
func (o *Object) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

// Len returns the number of keys. A nil Object has length zero.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Keys returns a copy of the keys in insertion order.
func (o *Object) Keys() []string {
	if o == nil {
		return []string{}
	}
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Range calls fn for each entry in insertion order until fn returns false.
func (o *Object) Range(fn func(key string, value any) bool) {
	if o == nil {
		return
	}
	for _, k := range o.keys {
		if !fn(k, o.values[k]) {
			return
		}
	}
}

// ToMap returns the entries as a plain map. Values are not copied.
func (o *Object) ToMap() map[string]any {
	out := make(map[string]any, o.Len())
	o.Range(func(k string, v any) bool {
		out[k] = v
		return true
	})
	return out
}

// String renders the Object as compact JSON, falling back to a Go-syntax dump
// when a value cannot be encoded.
func (o *Object) String() string {
	data, err := o.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("%v", o.ToMap())
	}
	return string(data)
}

// MarshalJSON encodes the Object as a JSON object with keys in insertion order.
func (o *Object) MarshalJSON() ([]byte, error) {
	if o == nil {
		return []byte("null"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("encode key %q: %w", k, err)
		}
		buf.Write(key)
		buf.WriteByte(':')

		val, err := json.Marshal(o.values[k])
		if err != nil {
			return nil, fmt.Errorf("encode value for %q: %w", k, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
