package postgres

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"tmdbetl/internal/storage"
	"tmdbetl/internal/table"
)

func TestReplaceSQL(t *testing.T) {
	t.Parallel()

	ref := storage.TableRef{Dataset: "tmdb", Table: "trend"}
	spec, err := storage.SpecFor(ref, table.Schema{
		{Name: "id", Kind: table.KindInt},
		{Name: "popularity", Kind: table.KindFloat},
		{Name: "release_date", Kind: table.KindDate},
		{Name: "rank_date", Kind: table.KindTimestamp},
		{Name: "belongs_to_collection", Kind: table.KindJSON},
	}, Dialect{}.ColumnType)
	if err != nil {
		t.Fatal(err)
	}

	got := ReplaceSQL(ref, spec)
	if len(got) != 3 {
		t.Fatalf("statements=%v", got)
	}
	if got[0] != `CREATE SCHEMA IF NOT EXISTS "tmdb"` {
		t.Fatalf("schema=%q", got[0])
	}
	if got[1] != `DROP TABLE IF EXISTS "tmdb"."trend"` {
		t.Fatalf("drop=%q", got[1])
	}
	for _, want := range []string{
		`CREATE TABLE "tmdb"."trend" (`,
		`"id" BIGINT`,
		`"popularity" DOUBLE PRECISION`,
		`"release_date" DATE`,
		`"rank_date" TIMESTAMPTZ`,
		`"belongs_to_collection" JSONB`,
	} {
		if !strings.Contains(got[2], want) {
			t.Fatalf("create=%q missing %q", got[2], want)
		}
	}
}

func TestQuoteIdentEscapes(t *testing.T) {
	t.Parallel()

	if got := (Dialect{}).QuoteIdent(`we"ird`); got != `"we""ird"` {
		t.Fatalf("QuoteIdent=%q", got)
	}
}

func TestCopyRows(t *testing.T) {
	t.Parallel()

	tb, _ := table.New([]string{"id", "release_date", "title"}, [][]any{
		{int64(1), civil.Date{Year: 2024, Month: 5, Day: 1}, "a"},
		{int64(2), nil, nil},
	})
	ref := storage.TableRef{Dataset: "tmdb", Table: "details"}
	spec, _ := storage.SpecFor(ref, table.InferSchema(tb), Dialect{}.ColumnType)

	rows, err := copyRows(tb, spec)
	if err != nil {
		t.Fatalf("copyRows: %v", err)
	}
	want := [][]any{
		{int64(1), time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), "a"},
		{int64(2), nil, nil},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("rows=%v, want %v", rows, want)
	}
}
