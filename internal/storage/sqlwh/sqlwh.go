// Package sqlwh implements storage.Warehouse over database/sql. Dialects
// supply quoting, types, placeholders and value conversion; the replace
// itself (drop, create, batched multi-row insert) runs in one transaction.
package sqlwh

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"tmdbetl/internal/storage"
	"tmdbetl/internal/table"
)

// Dialect captures what differs between SQL engines.
type Dialect interface {
	// TableName returns the quoted, qualified destination name.
	TableName(ref storage.TableRef) string
	// QuoteIdent quotes a single identifier.
	QuoteIdent(name string) string
	// ColumnType maps an inferred kind to a column type.
	ColumnType(k table.Kind) string
	// Placeholder returns the bind marker for the n-th (1-based) argument.
	Placeholder(n int) string
	// EnsureDatasetSQL returns statements that make the dataset namespace
	// exist, or nil when the engine has none.
	EnsureDatasetSQL(dataset string) []string
	// DropTableSQL drops name if it exists.
	DropTableSQL(name string) string
	// MaxParams and MaxRows bound a single INSERT statement. MaxRows 0 means
	// no row limit.
	MaxParams() int
	MaxRows() int
	// Value converts a coerced cell into a driver argument.
	Value(v any, k table.Kind) any
}

// Warehouse replaces tables through a *sql.DB.
type Warehouse struct {
	db *sql.DB
	d  Dialect
}

// New wraps an open handle. The Warehouse owns db and closes it on Close.
func New(db *sql.DB, d Dialect) *Warehouse {
	return &Warehouse{db: db, d: d}
}

// Open opens driverName/dsn, verifies connectivity and wraps it.
func Open(ctx context.Context, driverName, dsn string, d Dialect) (*Warehouse, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db, d), nil
}

// DB exposes the underlying handle, mostly for tests.
func (w *Warehouse) DB() *sql.DB { return w.db }

// Close closes the database handle.
func (w *Warehouse) Close() error { return w.db.Close() }

// ReplaceTable implements storage.Warehouse.
func (w *Warehouse) ReplaceTable(ctx context.Context, ref storage.TableRef, t *table.Table) (err error) {
	if err := ref.Validate(); err != nil {
		return err
	}
	spec, err := storage.SpecFor(ref, table.InferSchema(t), w.d.ColumnType)
	if err != nil {
		return err
	}
	rows, err := rowsFor(t, spec, w.d)
	if err != nil {
		return fmt.Errorf("%s: %w", ref, err)
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", ref, err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, ignoreDone(tx.Rollback()))
		}
	}()

	stmts := append([]string(nil), w.d.EnsureDatasetSQL(ref.Dataset)...)
	name := w.d.TableName(ref)
	stmts = append(stmts, w.d.DropTableSQL(name), CreateTableSQL(w.d, name, spec))
	for _, s := range stmts {
		if _, err = tx.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("%s: %s: %w", ref, firstWord(s), err)
		}
	}

	for _, b := range Batches(len(rows), len(spec.Columns), w.d.MaxParams(), w.d.MaxRows()) {
		q, args := InsertSQL(w.d, name, spec.Names(), rows[b[0]:b[1]])
		if _, err = tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("%s: insert rows %d-%d: %w", ref, b[0], b[1]-1, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", ref, err)
	}
	return nil
}

func ignoreDone(err error) error {
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

func firstWord(s string) string {
	if i := strings.IndexByte(s, ' '); i > 0 {
		return s[:i]
	}
	return s
}

func rowsFor(t *table.Table, spec storage.TableSpec, d Dialect) ([][]any, error) {
	schema := make(table.Schema, len(spec.Columns))
	for i, c := range spec.Columns {
		schema[i] = table.Field{Name: c.Name, Kind: c.Kind}
	}
	rows, err := table.CoercedRows(t, schema)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		for j, v := range r {
			if v != nil {
				r[j] = d.Value(v, schema[j].Kind)
			}
		}
	}
	return rows, nil
}

// CreateTableSQL renders CREATE TABLE for spec.
func CreateTableSQL(d Dialect, name string, spec storage.TableSpec) string {
	defs := make([]string, len(spec.Columns))
	for i, c := range spec.Columns {
		defs[i] = d.QuoteIdent(c.Name) + " " + c.Type
	}
	return "CREATE TABLE " + name + " (" + strings.Join(defs, ", ") + ")"
}

// InsertSQL renders a multi-row INSERT and its flattened arguments.
func InsertSQL(d Dialect, name string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(name)
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.QuoteIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	n := 0
	for i, r := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			n++
			b.WriteString(d.Placeholder(n))
			args = append(args, r[j])
		}
		b.WriteByte(')')
	}
	return b.String(), args
}

// Batches splits rows into [start, end) ranges so that no statement binds more
// than maxParams arguments or more than maxRows rows (0 for no row limit).
func Batches(rows, cols, maxParams, maxRows int) [][2]int {
	per := rows
	if cols > 0 && maxParams > 0 {
		per = max(maxParams/cols, 1)
	}
	if maxRows > 0 && per > maxRows {
		per = maxRows
	}
	var out [][2]int
	for start := 0; start < rows; start += per {
		out = append(out, [2]int{start, min(start+per, rows)})
	}
	return out
}

// DateAsTime converts civil.Date cells to midnight UTC, for drivers that do
// not understand civil.Date.
func DateAsTime(v any, k table.Kind) any {
	if d, ok := v.(civil.Date); ok && k == table.KindDate {
		return d.In(time.UTC)
	}
	return v
}

var _ storage.Warehouse = (*Warehouse)(nil)
