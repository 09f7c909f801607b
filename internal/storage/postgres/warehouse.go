// Package postgres registers the "postgres" warehouse. The dataset maps to a
// schema. Each replace drops, recreates and bulk-loads the table with COPY in
// one transaction, so readers see either the old or the new table.
package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tmdbetl/internal/storage"
	"tmdbetl/internal/storage/sqlwh"
	"tmdbetl/internal/table"
)

func init() {
	storage.Register("postgres", Open)
}

// Warehouse implements storage.Warehouse on a pgx pool.
type Warehouse struct {
	pool *pgxpool.Pool
}

// Open creates a pool for cfg.DSN and pings it.
func Open(ctx context.Context, cfg storage.Config) (storage.Warehouse, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Warehouse{pool: pool}, nil
}

// Close closes the pool.
func (w *Warehouse) Close() error {
	w.pool.Close()
	return nil
}

// ReplaceTable implements storage.Warehouse.
func (w *Warehouse) ReplaceTable(ctx context.Context, ref storage.TableRef, t *table.Table) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	spec, err := storage.SpecFor(ref, table.InferSchema(t), Dialect{}.ColumnType)
	if err != nil {
		return err
	}
	rows, err := copyRows(t, spec)
	if err != nil {
		return fmt.Errorf("%s: %w", ref, err)
	}

	err = pgx.BeginFunc(ctx, w.pool, func(tx pgx.Tx) error {
		for _, stmt := range ReplaceSQL(ref, spec) {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("exec %q: %w", stmt, err)
			}
		}
		n, err := tx.CopyFrom(ctx, pgx.Identifier{ref.Dataset, ref.Table}, spec.Names(), pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("copy: %w", err)
		}
		if n != int64(len(rows)) {
			return fmt.Errorf("copy: wrote %d rows, want %d", n, len(rows))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", ref, err)
	}
	return nil
}

// ReplaceSQL returns the DDL run before COPY.
func ReplaceSQL(ref storage.TableRef, spec storage.TableSpec) []string {
	d := Dialect{}
	name := d.TableName(ref)
	out := d.EnsureDatasetSQL(ref.Dataset)
	return append(out, d.DropTableSQL(name), sqlwh.CreateTableSQL(d, name, spec))
}

func copyRows(t *table.Table, spec storage.TableSpec) ([][]any, error) {
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
			r[j] = Dialect{}.Value(v, schema[j].Kind)
		}
	}
	return rows, nil
}

// Dialect is the Postgres flavour of sqlwh.Dialect. The warehouse loads with
// COPY, so Placeholder and the batch limits only matter to callers that use
// sqlwh.InsertSQL directly.
type Dialect struct{}

func (Dialect) QuoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func (Dialect) TableName(ref storage.TableRef) string {
	return pgx.Identifier{ref.Dataset, ref.Table}.Sanitize()
}

func (Dialect) ColumnType(k table.Kind) string {
	switch k {
	case table.KindBool:
		return "BOOLEAN"
	case table.KindInt:
		return "BIGINT"
	case table.KindFloat:
		return "DOUBLE PRECISION"
	case table.KindDate:
		return "DATE"
	case table.KindTimestamp:
		return "TIMESTAMPTZ"
	case table.KindJSON:
		return "JSONB"
	default:
		return "TEXT"
	}
}

func (Dialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (d Dialect) EnsureDatasetSQL(dataset string) []string {
	return []string{"CREATE SCHEMA IF NOT EXISTS " + d.QuoteIdent(dataset)}
}

func (Dialect) DropTableSQL(name string) string { return "DROP TABLE IF EXISTS " + name }

// MaxParams is the wire protocol's int16 bind limit.
func (Dialect) MaxParams() int { return 65535 }

func (Dialect) MaxRows() int { return 0 }

func (Dialect) Value(v any, k table.Kind) any { return sqlwh.DateAsTime(v, k) }

var (
	_ storage.Warehouse = (*Warehouse)(nil)
	_ sqlwh.Dialect     = Dialect{}
)
