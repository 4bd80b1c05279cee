// Package flatten turns nested key-value structures into single-level
// mappings whose keys are dot-joined paths, e.g. {"a":{"b":1}} becomes
// {"a.b":1}. Sequences, nil and primitives are leaves; empty mappings
// contribute no keys. Results are ordered by leaf discovery.
package flatten
