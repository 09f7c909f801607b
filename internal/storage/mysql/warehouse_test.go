package mysql

import (
	"strings"
	"testing"

	"tmdbetl/internal/storage"
	"tmdbetl/internal/storage/sqlwh"
	"tmdbetl/internal/table"
)

func TestDialect_SQL(t *testing.T) {
	t.Parallel()

	d := Dialect{}
	ref := storage.TableRef{Dataset: "tmdb", Table: "details"}
	name := d.TableName(ref)
	if name != "`tmdb`.`details`" {
		t.Fatalf("TableName=%q", name)
	}
	spec, err := storage.SpecFor(ref, table.Schema{
		{Name: "id", Kind: table.KindInt},
		{Name: "production_companies", Kind: table.KindJSON},
		{Name: "rank_date", Kind: table.KindTimestamp},
	}, d.ColumnType)
	if err != nil {
		t.Fatal(err)
	}
	ddl := sqlwh.CreateTableSQL(d, name, spec)
	if ddl != "CREATE TABLE `tmdb`.`details` (`id` BIGINT, `production_companies` JSON, `rank_date` DATETIME(6))" {
		t.Fatalf("ddl=%q", ddl)
	}
	q, _ := sqlwh.InsertSQL(d, name, []string{"id"}, [][]any{{1}, {2}})
	if !strings.HasSuffix(q, "VALUES (?), (?)") {
		t.Fatalf("insert=%q", q)
	}
	if got := d.EnsureDatasetSQL("tmdb"); len(got) != 1 || got[0] != "CREATE DATABASE IF NOT EXISTS `tmdb`" {
		t.Fatalf("ensure=%v", got)
	}
}

func TestOpen_BadDSN(t *testing.T) {
	t.Parallel()

	if _, err := storage.New(t.Context(), storage.Config{Kind: "mysql", DSN: "not a dsn"}); err == nil {
		t.Fatal("expected parse error")
	}
}
