package table

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/civil"

	pjson "tmdbetl/internal/parser/json"
)

// Kind is the storage type of a column.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindDate
	KindTimestamp
	// KindJSON holds nested objects and arrays, stored as JSON text.
	KindJSON
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindDate:
		return "date"
	case KindTimestamp:
		return "timestamp"
	case KindJSON:
		return "json"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Field is one inferred column.
type Field struct {
	Name string
	Kind Kind
}

// Schema is the inferred column list of a table, in column order.
type Schema []Field

// KindOf classifies a single cell value.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBool
	case int, int32, int64:
		return KindInt
	case float32, float64:
		return KindFloat
	case string:
		return KindString
	case civil.Date:
		return KindDate
	case time.Time:
		return KindTimestamp
	case *pjson.Object, []any, map[string]any:
		return KindJSON
	default:
		return KindString
	}
}

// widen merges two cell kinds into the narrowest kind that holds both.
// Null is absorbed, int+float is float, any other mismatch is string.
func widen(a, b Kind) Kind {
	switch {
	case a == KindNull:
		return b
	case b == KindNull:
		return a
	case a == b:
		return a
	case (a == KindInt && b == KindFloat) || (a == KindFloat && b == KindInt):
		return KindFloat
	default:
		return KindString
	}
}

// InferSchema derives a kind per column from every cell. An all-null column
// is typed as string.
func InferSchema(t *Table) Schema {
	kinds := make([]Kind, len(t.Columns))
	for _, r := range t.Rows {
		for i, v := range r {
			kinds[i] = widen(kinds[i], KindOf(v))
		}
	}
	out := make(Schema, len(t.Columns))
	for i, c := range t.Columns {
		k := kinds[i]
		if k == KindNull {
			k = KindString
		}
		out[i] = Field{Name: c, Kind: k}
	}
	return out
}

// Coerce converts v to the canonical Go value for kind k:
//
//	KindBool      -> bool
//	KindInt       -> int64
//	KindFloat     -> float64
//	KindString    -> string (numbers, bools, dates and nested values are formatted)
//	KindDate      -> civil.Date
//	KindTimestamp -> time.Time (UTC)
//	KindJSON      -> string holding JSON text
//
// nil stays nil for every kind.
func Coerce(v any, k Kind) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch k {
	case KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case KindInt:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		}
	case KindFloat:
		switch n := v.(type) {
		case int:
			return float64(n), nil
		case int32:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case float32:
			return float64(n), nil
		case float64:
			return n, nil
		}
	case KindString:
		return formatString(v)
	case KindDate:
		if d, ok := v.(civil.Date); ok {
			return d, nil
		}
	case KindTimestamp:
		if ts, ok := v.(time.Time); ok {
			return ts.UTC(), nil
		}
	case KindJSON:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	return nil, fmt.Errorf("table: cannot coerce %T to %s", v, k)
}

func formatString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case civil.Date:
		return x.String(), nil
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano), nil
	case *pjson.Object, []any, map[string]any:
		b, err := json.Marshal(x)
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return fmt.Sprint(x), nil
	}
}

// CoercedRows returns the rows of t with every cell coerced to its schema kind.
func CoercedRows(t *Table, s Schema) ([][]any, error) {
	if len(s) != len(t.Columns) {
		return nil, fmt.Errorf("table: schema has %d fields, table has %d columns", len(s), len(t.Columns))
	}
	out := make([][]any, len(t.Rows))
	for i, r := range t.Rows {
		row := make([]any, len(r))
		for j, v := range r {
			cv, err := Coerce(v, s[j].Kind)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", i, s[j].Name, err)
			}
			row[j] = cv
		}
		out[i] = row
	}
	return out, nil
}
