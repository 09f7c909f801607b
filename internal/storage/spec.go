package storage

import (
	"fmt"

	"tmdbetl/internal/table"
)

// ColumnSpec is one destination column with its backend type name.
type ColumnSpec struct {
	Name string
	Type string
	Kind table.Kind
}

// TableSpec is the destination layout derived from a table's inferred schema.
type TableSpec struct {
	Ref     TableRef
	Columns []ColumnSpec
}

// Names returns the column names in order.
func (s TableSpec) Names() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

// SpecFor maps schema onto backend types with typeName. A table without
// columns cannot be created and is an error.
func SpecFor(ref TableRef, schema table.Schema, typeName func(table.Kind) string) (TableSpec, error) {
	if len(schema) == 0 {
		return TableSpec{}, fmt.Errorf("storage: %s has no columns", ref)
	}
	spec := TableSpec{Ref: ref, Columns: make([]ColumnSpec, len(schema))}
	for i, f := range schema {
		spec.Columns[i] = ColumnSpec{Name: f.Name, Type: typeName(f.Kind), Kind: f.Kind}
	}
	return spec, nil
}
