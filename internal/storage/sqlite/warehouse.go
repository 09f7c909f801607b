// Package sqlite registers the "sqlite" warehouse. SQLite has no schemas, so
// {dataset}.{table} is stored as a table named "{dataset}_{table}".
package sqlite

import (
	"context"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	_ "modernc.org/sqlite"

	"tmdbetl/internal/storage"
	"tmdbetl/internal/storage/sqlwh"
	"tmdbetl/internal/table"
)

func init() {
	storage.Register("sqlite", Open)
}

// Open opens the database at cfg.DSN (a path, or "file::memory:?cache=shared").
func Open(ctx context.Context, cfg storage.Config) (storage.Warehouse, error) {
	w, err := sqlwh.Open(ctx, "sqlite", cfg.DSN, Dialect{})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Dialect is the SQLite flavour of sqlwh.Dialect.
type Dialect struct{}

func (Dialect) QuoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func (d Dialect) TableName(ref storage.TableRef) string {
	return d.QuoteIdent(ref.Dataset + "_" + ref.Table)
}

func (Dialect) ColumnType(k table.Kind) string {
	switch k {
	case table.KindBool, table.KindInt:
		return "INTEGER"
	case table.KindFloat:
		return "REAL"
	default:
		// Dates, timestamps and JSON are stored as TEXT in canonical form.
		return "TEXT"
	}
}

func (Dialect) Placeholder(n int) string { return "?" + strconv.Itoa(n) }

func (Dialect) EnsureDatasetSQL(string) []string { return nil }

func (Dialect) DropTableSQL(name string) string { return "DROP TABLE IF EXISTS " + name }

// MaxParams stays under the historic SQLITE_MAX_VARIABLE_NUMBER of 999.
func (Dialect) MaxParams() int { return 999 }

func (Dialect) MaxRows() int { return 0 }

// Value stores dates as YYYY-MM-DD and timestamps as RFC3339Nano UTC text.
func (Dialect) Value(v any, k table.Kind) any {
	switch x := v.(type) {
	case civil.Date:
		return x.String()
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	}
	return v
}
