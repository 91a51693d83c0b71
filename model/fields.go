package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Fields is a string-keyed mapping that remembers insertion order.
// Metadata and variables are kept in Fields so composed command lines are
// reproducible.
type Fields struct {
	keys   []string
	values map[string]any
}

// NewFields creates Fields from alternating key/value pairs.
func NewFields(kv ...any) Fields {
	var f Fields
	for i := 0; i+1 < len(kv); i += 2 {
		f.Set(fmt.Sprint(kv[i]), kv[i+1])
	}
	return f
}

// Set stores value under key. An existing key keeps its position.
func (f *Fields) Set(key string, value any) {
	if f.values == nil {
		f.values = make(map[string]any)
	}
	if _, ok := f.values[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.values[key] = value
}

// Get returns the value stored under key.
func (f Fields) Get(key string) (any, bool) {
	v, ok := f.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (f Fields) Keys() []string {
	keys := make([]string, len(f.keys))
	copy(keys, f.keys)
	return keys
}

// Len returns the number of keys.
func (f Fields) Len() int {
	return len(f.keys)
}

// Merge layers the given Fields left to right: later layers override values
// of earlier ones, while a key keeps the position of its first appearance.
func Merge(layers ...Fields) Fields {
	var merged Fields
	for _, layer := range layers {
		for _, key := range layer.keys {
			merged.Set(key, layer.values[key])
		}
	}
	return merged
}

// UnmarshalJSON decodes a JSON object preserving key order. Numbers are kept
// as json.Number so they render exactly as written.
func (f *Fields) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*f = Fields{}
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}

	var out Fields
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("failed to decode value of %q: %w", key, err)
		}
		out.Set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*f = out
	return nil
}

// MarshalJSON encodes the mapping as a JSON object in insertion order.
func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range f.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.values[key])
		if err != nil {
			return nil, fmt.Errorf("failed to encode value of %q: %w", key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
