// Package table holds the in-memory tabular values passed between pipeline
// stages: ordered column names plus positional rows.
//
// Operations never mutate their receiver; each returns a new *Table. Rows of
// the result may share cell values (strings, nested objects) with the input,
// which is fine because cells are treated as immutable.
package table

import (
	"fmt"

	pjson "tmdbetl/internal/parser/json"
)

// Table is a column-ordered set of rows. Every row has len(Columns) cells; a
// nil cell is a null.
type Table struct {
	Columns []string
	Rows    [][]any
}

// New returns a table with the given columns and rows. Rows shorter than the
// column list are padded with nulls; longer rows are an error.
func New(columns []string, rows [][]any) (*Table, error) {
	t := &Table{Columns: append([]string(nil), columns...)}
	seen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if _, dup := seen[c]; dup {
			return nil, fmt.Errorf("table: duplicate column %q", c)
		}
		seen[c] = struct{}{}
	}
	t.Rows = make([][]any, 0, len(rows))
	for i, r := range rows {
		if len(r) > len(columns) {
			return nil, fmt.Errorf("table: row %d has %d cells, want at most %d", i, len(r), len(columns))
		}
		row := make([]any, len(columns))
		copy(row, r)
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// FromObjects builds a table from decoded API records. Columns are the union of
// member names in first-seen order; a member missing from a record is a null.
func FromObjects(objs []*pjson.Object) *Table {
	t := &Table{}
	index := map[string]int{}
	for _, o := range objs {
		for _, k := range o.Keys() {
			if _, ok := index[k]; !ok {
				index[k] = len(t.Columns)
				t.Columns = append(t.Columns, k)
			}
		}
	}

	t.Rows = make([][]any, 0, len(objs))
	for _, o := range objs {
		row := make([]any, len(t.Columns))
		for _, k := range o.Keys() {
			v, _ := o.Get(k)
			row[index[k]] = v
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Index returns the position of column name, or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Has reports whether the table has column name.
func (t *Table) Has(name string) bool { return t.Index(name) >= 0 }

// Column returns a copy of the values of column name.
func (t *Table) Column(name string) ([]any, error) {
	idx := t.Index(name)
	if idx < 0 {
		return nil, fmt.Errorf("table: missing column %q", name)
	}
	out := make([]any, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r[idx]
	}
	return out, nil
}

// Select returns the named columns in the given order. Every name must exist.
func (t *Table) Select(names ...string) (*Table, error) {
	idx := make([]int, len(names))
	for i, n := range names {
		idx[i] = t.Index(n)
		if idx[i] < 0 {
			return nil, fmt.Errorf("table: select missing column %q", n)
		}
	}

	out := &Table{Columns: append([]string(nil), names...), Rows: make([][]any, 0, len(t.Rows))}
	for _, r := range t.Rows {
		row := make([]any, len(idx))
		for j, k := range idx {
			row[j] = r[k]
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

// Drop returns the table without the named columns. Names that are not
// present are ignored.
func (t *Table) Drop(names ...string) *Table {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
	}
	keep := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if _, ok := drop[c]; !ok {
			keep = append(keep, c)
		}
	}
	out, _ := t.Select(keep...)
	return out
}

// WithColumn returns the table with column name set to values. An existing
// column is replaced in place; a new one is appended. len(values) must equal
// the row count.
func (t *Table) WithColumn(name string, values []any) (*Table, error) {
	if len(values) != len(t.Rows) {
		return nil, fmt.Errorf("table: column %q has %d values, want %d", name, len(values), len(t.Rows))
	}

	out := t.Clone()
	idx := out.Index(name)
	if idx < 0 {
		out.Columns = append(out.Columns, name)
		for i := range out.Rows {
			out.Rows[i] = append(out.Rows[i], values[i])
		}
		return out, nil
	}
	for i := range out.Rows {
		out.Rows[i][idx] = values[i]
	}
	return out, nil
}

// MapColumn returns the table with fn applied to every cell of column name.
// The first error from fn aborts and is returned with the row number.
func (t *Table) MapColumn(name string, fn func(v any) (any, error)) (*Table, error) {
	vals, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		nv, err := fn(v)
		if err != nil {
			return nil, fmt.Errorf("table: column %q row %d: %w", name, i, err)
		}
		vals[i] = nv
	}
	return t.WithColumn(name, vals)
}

// Explode returns one row per element of the list column name; other cells
// are repeated. A null or empty list yields no rows; a scalar cell is kept as
// a single row unchanged.
func (t *Table) Explode(name string) (*Table, error) {
	idx := t.Index(name)
	if idx < 0 {
		return nil, fmt.Errorf("table: explode missing column %q", name)
	}

	out := &Table{Columns: append([]string(nil), t.Columns...)}
	for _, r := range t.Rows {
		switch v := r[idx].(type) {
		case nil:
			continue
		case []any:
			for _, el := range v {
				row := append([]any(nil), r...)
				row[idx] = el
				out.Rows = append(out.Rows, row)
			}
		default:
			out.Rows = append(out.Rows, append([]any(nil), r...))
		}
	}
	if out.Rows == nil {
		out.Rows = [][]any{}
	}
	return out, nil
}

// Clone returns a copy with fresh column and row slices.
func (t *Table) Clone() *Table {
	out := &Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([][]any, len(t.Rows)),
	}
	for i, r := range t.Rows {
		out.Rows[i] = append(make([]any, 0, len(r)+1), r...)
	}
	return out
}
