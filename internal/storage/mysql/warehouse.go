// Package mysql registers the "mysql" warehouse. The dataset maps to a
// database. MySQL commits DDL implicitly, so a failed insert after the drop
// leaves the table missing or partially filled rather than unchanged.
package mysql

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"tmdbetl/internal/storage"
	"tmdbetl/internal/storage/sqlwh"
	"tmdbetl/internal/table"
)

func init() {
	storage.Register("mysql", Open)
}

// Open parses cfg.DSN with the driver's parser and forces parseTime and UTC
// so DATE and DATETIME round-trip as time.Time.
func Open(ctx context.Context, cfg storage.Config) (storage.Warehouse, error) {
	mc, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mysql: parse dsn: %w", err)
	}
	mc.ParseTime = true
	mc.Loc = time.UTC
	w, err := sqlwh.Open(ctx, "mysql", mc.FormatDSN(), Dialect{})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Dialect is the MySQL flavour of sqlwh.Dialect.
type Dialect struct{}

func (Dialect) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (d Dialect) TableName(ref storage.TableRef) string {
	return d.QuoteIdent(ref.Dataset) + "." + d.QuoteIdent(ref.Table)
}

func (Dialect) ColumnType(k table.Kind) string {
	switch k {
	case table.KindBool:
		return "BOOLEAN"
	case table.KindInt:
		return "BIGINT"
	case table.KindFloat:
		return "DOUBLE"
	case table.KindDate:
		return "DATE"
	case table.KindTimestamp:
		return "DATETIME(6)"
	case table.KindJSON:
		return "JSON"
	default:
		return "LONGTEXT"
	}
}

func (Dialect) Placeholder(int) string { return "?" }

func (d Dialect) EnsureDatasetSQL(dataset string) []string {
	return []string{"CREATE DATABASE IF NOT EXISTS " + d.QuoteIdent(dataset)}
}

func (Dialect) DropTableSQL(name string) string { return "DROP TABLE IF EXISTS " + name }

func (Dialect) MaxParams() int { return 60000 }

func (Dialect) MaxRows() int { return 0 }

func (Dialect) Value(v any, k table.Kind) any { return sqlwh.DateAsTime(v, k) }
