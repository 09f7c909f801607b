// Package json decodes upstream API bodies into order-preserving values.
//
// The standard decoder turns objects into map[string]any and loses member
// order. Tables built from API records take their column order from the first
// record that mentions a key, so objects are decoded token by token into
// *Object instead.
//
// Value mapping:
//   - object  -> *Object
//   - array   -> []any
//   - number  -> int64 when integral and in range, float64 otherwise
//   - string  -> string
//   - boolean -> bool
//   - null    -> nil
package json

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Object is a decoded JSON object that remembers member order.
type Object struct {
	keys   []string
	values map[string]any
}

// NewObject returns an empty Object.
func NewObject() *Object {
	return &Object{values: map[string]any{}}
}

// Set stores v under key. A new key is appended to the member order; an
// existing key keeps its position and has its value replaced.
func (o *Object) Set(key string, v any) {
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (any, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.values[key]
	return v, ok
}

// Keys returns member names in document order. The slice is a copy.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	return append([]string(nil), o.keys...)
}

// Len returns the number of members.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Objects returns the member key as a list of objects. This is the envelope
// pattern used by list endpoints ({"page":1,"results":[{...},{...}]}).
//
// Errors:
//   - key is missing or not an array.
//   - any element is not an object (null elements included).
func (o *Object) Objects(key string) ([]*Object, error) {
	raw, ok := o.Get(key)
	if !ok {
		return nil, fmt.Errorf("json: missing member %q", key)
	}
	arr, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("json: member %q is %T, want array", key, raw)
	}
	out := make([]*Object, 0, len(arr))
	for i, el := range arr {
		obj, ok := el.(*Object)
		if !ok {
			return nil, fmt.Errorf("json: %s[%d] is %T, want object", key, i, el)
		}
		out = append(out, obj)
	}
	return out, nil
}

// MarshalJSON encodes the object with members in document order.
func (o *Object) MarshalJSON() ([]byte, error) {
	if o == nil {
		return []byte("null"), nil
	}
	var b bytes.Buffer
	b.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		b.Write(kb)
		b.WriteByte(':')
		vb, err := json.Marshal(o.values[k])
		if err != nil {
			return nil, fmt.Errorf("json: encode member %q: %w", k, err)
		}
		b.Write(vb)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}
