package json

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Decode reads exactly one JSON value from r.
//
// Trailing non-whitespace data after the value is an error; API bodies carry a
// single document.
func Decode(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("json: empty document")
		}
		return nil, fmt.Errorf("json: read first token: %w", err)
	}
	v, err := valueFromToken(dec, tok)
	if err != nil {
		return nil, err
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err == nil {
			return nil, fmt.Errorf("json: unexpected data after document")
		}
		return nil, fmt.Errorf("json: after document: %w", err)
	}
	return v, nil
}

// DecodeObject reads one JSON document whose root must be an object.
func DecodeObject(r io.Reader) (*Object, error) {
	v, err := Decode(r)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(*Object)
	if !ok {
		return nil, fmt.Errorf("json: root is %T, want object", v)
	}
	return obj, nil
}

// valueFromToken materializes the value whose first token has already been read.
func valueFromToken(dec *json.Decoder, tok json.Token) (any, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return readObject(dec)
		case '[':
			return readArray(dec)
		default:
			return nil, fmt.Errorf("json: unexpected delimiter %q", t)
		}
	case json.Number:
		return normalizeNumber(t)
	case string, bool, nil:
		return t, nil
	default:
		return nil, fmt.Errorf("json: unsupported token %T", tok)
	}
}

// readObject reads members until the closing '}' (the opening '{' is consumed).
func readObject(dec *json.Decoder) (*Object, error) {
	obj := NewObject()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("json: read object key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("json: object key not a string (got %T)", keyTok)
		}
		valTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("json: read value of %q: %w", key, err)
		}
		v, err := valueFromToken(dec, valTok)
		if err != nil {
			return nil, err
		}
		obj.Set(key, v)
	}
	if end, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("json: read object end: %w", err)
	} else if end != json.Delim('}') {
		return nil, fmt.Errorf("json: expected object end '}', got %v", end)
	}
	return obj, nil
}

// readArray reads elements until the closing ']' (the opening '[' is consumed).
func readArray(dec *json.Decoder) ([]any, error) {
	arr := []any{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("json: read array element: %w", err)
		}
		v, err := valueFromToken(dec, tok)
		if err != nil {
			return nil, err
		}
		arr = append(arr, v)
	}
	if end, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("json: read array end: %w", err)
	} else if end != json.Delim(']') {
		return nil, fmt.Errorf("json: expected array end ']', got %v", end)
	}
	return arr, nil
}

// normalizeNumber keeps integral numbers as int64 so ids and counts survive
// without float rounding. Anything else becomes float64.
func normalizeNumber(n json.Number) (any, error) {
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("json: bad number %q: %w", n.String(), err)
	}
	return f, nil
}
