package keys

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownField is returned when a caller names a field outside the
// recognized set.
var ErrUnknownField = errors.New("keys: unknown field")

// KeySet is an immutable snapshot of every recognized field. Fields that
// were never set report their default, so a KeySet is never partial.
type KeySet struct {
	values map[Field]string
}

// Defaults returns a KeySet with every field at its default.
func Defaults() KeySet {
	values := make(map[Field]string, len(fieldOrder))
	for _, f := range fieldOrder {
		values[f] = defaultValue(f)
	}
	return KeySet{values: values}
}

// FromMap merges recognized entries of raw over the defaults. Names may be
// camelCase or snake_case; unknown names are ignored.
func FromMap(raw map[string]string) KeySet {
	ks := Defaults()
	for name, value := range raw {
		if f, ok := ParseField(name); ok {
			ks.values[f] = value
		}
	}
	return ks
}

func (k KeySet) Get(f Field) string {
	if value, ok := k.values[f]; ok {
		return value
	}
	return defaultValue(f)
}

// Set returns a copy of k with f changed. k itself is never modified.
func (k KeySet) Set(f Field, value string) (KeySet, error) {
	if !f.Valid() {
		return k, fmt.Errorf("%w: %q", ErrUnknownField, string(f))
	}
	next := k.Map()
	next[f] = value
	return KeySet{values: next}, nil
}

// Map returns a copy of every field's value.
func (k KeySet) Map() map[Field]string {
	out := make(map[Field]string, len(fieldOrder))
	for _, f := range fieldOrder {
		out[f] = k.Get(f)
	}
	return out
}

// Strings is Map keyed by the camelCase field name.
func (k KeySet) Strings() map[string]string {
	out := make(map[string]string, len(fieldOrder))
	for _, f := range fieldOrder {
		out[string(f)] = k.Get(f)
	}
	return out
}

// Masked is Strings with sensitive values hidden.
func (k KeySet) Masked() map[string]string {
	out := k.Strings()
	for _, f := range fieldOrder {
		if f.Sensitive() {
			out[string(f)] = Mask(k.Get(f))
		}
	}
	return out
}

// Has reports whether f holds a non-blank value.
func (k KeySet) Has(f Field) bool {
	return strings.TrimSpace(k.Get(f)) != ""
}

func (k KeySet) Equal(other KeySet) bool {
	for _, f := range fieldOrder {
		if k.Get(f) != other.Get(f) {
			return false
		}
	}
	return true
}

// WirePayload is the body the backend's config endpoint accepts:
// {"keys": {"edit_mode_key": ..., ...}}.
func WirePayload(k KeySet) map[string]any {
	return map[string]any{"keys": FlatWire(k)}
}

// FlatWire maps every field to its snake_case wire name.
func FlatWire(k KeySet) map[string]any {
	out := make(map[string]any, len(fieldOrder))
	for _, f := range fieldOrder {
		out[f.Wire()] = k.Get(f)
	}
	return out
}

// MergeRemote merges a backend response over k. It accepts either
// {"keys": {...}} or a flat object, in either naming scheme. Non-string
// values and values that look masked are skipped. It returns the merged
// set and the number of fields that changed.
func MergeRemote(k KeySet, body any) (KeySet, int) {
	obj, ok := body.(map[string]any)
	if !ok {
		return k, 0
	}
	if nested, ok := obj["keys"].(map[string]any); ok {
		obj = nested
	}
	next := k.Map()
	changed := 0
	for name, raw := range obj {
		f, ok := ParseField(name)
		if !ok {
			continue
		}
		value, ok := raw.(string)
		if !ok || looksMasked(value) {
			continue
		}
		if next[f] != value {
			next[f] = value
			changed++
		}
	}
	return KeySet{values: next}, changed
}
