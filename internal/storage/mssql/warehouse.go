// Package mssql registers the "mssql" warehouse (SQL Server). The dataset
// maps to a schema, created on first use.
package mssql

import (
	"context"
	"strconv"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"tmdbetl/internal/storage"
	"tmdbetl/internal/storage/sqlwh"
	"tmdbetl/internal/table"
)

func init() {
	storage.Register("mssql", Open)
}

// Open connects with a sqlserver:// DSN.
func Open(ctx context.Context, cfg storage.Config) (storage.Warehouse, error) {
	w, err := sqlwh.Open(ctx, "sqlserver", cfg.DSN, Dialect{})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Dialect is the SQL Server flavour of sqlwh.Dialect.
type Dialect struct{}

// QuoteIdent bracket-quotes name, escaping ']' as ']]'.
func (Dialect) QuoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (d Dialect) TableName(ref storage.TableRef) string {
	return d.QuoteIdent(ref.Dataset) + "." + d.QuoteIdent(ref.Table)
}

func (Dialect) ColumnType(k table.Kind) string {
	switch k {
	case table.KindBool:
		return "BIT"
	case table.KindInt:
		return "BIGINT"
	case table.KindFloat:
		return "FLOAT"
	case table.KindDate:
		return "DATE"
	case table.KindTimestamp:
		return "DATETIMEOFFSET"
	default:
		return "NVARCHAR(MAX)"
	}
}

func (Dialect) Placeholder(n int) string { return "@p" + strconv.Itoa(n) }

// EnsureDatasetSQL creates the schema when missing. CREATE SCHEMA must be
// the only statement in its batch, hence EXEC.
func (d Dialect) EnsureDatasetSQL(dataset string) []string {
	lit := strings.ReplaceAll(dataset, "'", "''")
	return []string{
		"IF SCHEMA_ID(N'" + lit + "') IS NULL EXEC(N'CREATE SCHEMA " + strings.ReplaceAll(d.QuoteIdent(dataset), "'", "''") + "')",
	}
}

func (Dialect) DropTableSQL(name string) string { return "DROP TABLE IF EXISTS " + name }

// MaxParams stays under the 2100 parameter limit per request.
func (Dialect) MaxParams() int { return 2000 }

// MaxRows is the table value constructor limit.
func (Dialect) MaxRows() int { return 1000 }

func (Dialect) Value(v any, k table.Kind) any { return sqlwh.DateAsTime(v, k) }
