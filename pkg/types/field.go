package types

import (
	"bytes"
	"encoding/json"
)

// Field tracks whether a JSON key was present in a patch payload. An absent key
// leaves Set false. A present key sets Set, and an explicit null resets Value to
// the zero value of T.
type Field[T any] struct {
	Set   bool
	Value T
}

// Some returns a supplied field holding v.
func Some[T any](v T) Field[T] {
	return Field[T]{Set: true, Value: v}
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}

	var zero T
	if bytes.Equal(trimmed, []byte("null")) {
		f.Set = true
		f.Value = zero
		return nil
	}

	value := zero
	if err := json.Unmarshal(trimmed, &value); err != nil {
		return err
	}
	f.Set = true
	f.Value = value
	return nil
}

// MarshalJSON renders the value, or null when the field was not supplied.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.Set {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// ApplyTo copies the value into dst when the field was supplied.
func (f Field[T]) ApplyTo(dst *T) bool {
	if !f.Set || dst == nil {
		return false
	}
	*dst = f.Value
	return true
}
