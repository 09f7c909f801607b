// Command tmdb-probe fetches one TMDB endpoint and reports the table the
// pipeline would build from it: the inferred column kinds, the warehouse
// column types for the configured backend, the row count and the content
// fingerprint. Nothing is loaded.
//
// A body with a "results" array yields one row per element (the trending
// shape); any other object yields a single row (the /movie/{id} shape).
//
//	tmdb-probe -env .env -endpoint /trending/movie/day
//	tmdb-probe -endpoint /movie/550 -json
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"tmdbetl/internal/config"
	"tmdbetl/internal/extract"
	pjson "tmdbetl/internal/parser/json"
	"tmdbetl/internal/storage"
	"tmdbetl/internal/storage/bigquery"
	"tmdbetl/internal/storage/mssql"
	"tmdbetl/internal/storage/mysql"
	"tmdbetl/internal/storage/postgres"
	"tmdbetl/internal/storage/sqlite"
	"tmdbetl/internal/table"
	"tmdbetl/internal/tmdb"
)

// report is the -json output.
type report struct {
	Endpoint    string   `json:"endpoint"`
	Rows        int      `json:"rows"`
	Fingerprint string   `json:"fingerprint"`
	Columns     []column `json:"columns"`
}

type column struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	Type string `json:"warehouse_type"`
}

type probeDeps struct {
	loadConfig func(envFile string) (config.Config, error)
	newFetcher func(cfg config.Config) (extract.Fetcher, error)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, probeDeps{
		loadConfig: config.Load,
		newFetcher: func(cfg config.Config) (extract.Fetcher, error) {
			return tmdb.NewClient(tmdb.Options{
				BaseURL: cfg.TMDB.BaseURL,
				APIKey:  cfg.TMDB.APIKey,
				Timeout: cfg.TMDB.Timeout,
				JobName: cfg.JobName,
			})
		},
	})
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, d probeDeps) int {
	fs := flag.NewFlagSet("tmdb-probe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	envFile := fs.String("env", "", "dotenv file loaded before reading the environment")
	endpoint := fs.String("endpoint", extract.TrendingEndpoint, "API path to sample, relative to TMDB_BASE_URL")
	asJSON := fs.Bool("json", false, "print the report as JSON")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	ep := strings.TrimSpace(*endpoint)
	if !strings.HasPrefix(ep, "/") {
		fmt.Fprintln(stderr, "-endpoint must start with /")
		return 2
	}

	cfg, err := d.loadConfig(strings.TrimSpace(*envFile))
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	f, err := d.newFetcher(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "init: %v\n", err)
		return 1
	}
	body, err := f.Fetch(ctx, ep)
	if err != nil {
		fmt.Fprintf(stderr, "fetch: %v\n", err)
		return 1
	}
	t, err := tableOf(body)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", ep, err)
		return 1
	}

	rep := buildReport(ep, t, columnTyper(cfg.Warehouse.Kind))
	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			fmt.Fprintf(stderr, "encode: %v\n", err)
			return 1
		}
		return 0
	}
	fmt.Fprintf(stdout, "endpoint=%s rows=%d fingerprint=%s\n", rep.Endpoint, rep.Rows, rep.Fingerprint)
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COLUMN\tKIND\tWAREHOUSE TYPE")
	for _, c := range rep.Columns {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Name, c.Kind, c.Type)
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(stderr, "write: %v\n", err)
		return 1
	}
	return 0
}

// tableOf mirrors how the extractor shapes each endpoint's body.
func tableOf(body *pjson.Object) (*table.Table, error) {
	if _, ok := body.Get("results"); ok {
		objs, err := body.Objects("results")
		if err != nil {
			return nil, err
		}
		return table.FromObjects(objs), nil
	}
	return table.FromObjects([]*pjson.Object{body}), nil
}

// columnTyper returns the column type mapping of a warehouse kind. Unknown
// kinds report the inferred kind in upper case.
func columnTyper(kind string) func(table.Kind) string {
	switch kind {
	case "bigquery":
		return func(k table.Kind) string { return string(bigquery.FieldType(k)) }
	case "postgres":
		return postgres.Dialect{}.ColumnType
	case "sqlite":
		return sqlite.Dialect{}.ColumnType
	case "mssql":
		return mssql.Dialect{}.ColumnType
	case "mysql":
		return mysql.Dialect{}.ColumnType
	default:
		return func(k table.Kind) string { return strings.ToUpper(k.String()) }
	}
}

func buildReport(endpoint string, t *table.Table, typeName func(table.Kind) string) report {
	rep := report{Endpoint: endpoint, Rows: t.Len(), Fingerprint: table.Fingerprint(t), Columns: []column{}}
	if len(t.Columns) == 0 {
		return rep
	}
	spec, err := storage.SpecFor(storage.TableRef{Dataset: "probe", Table: "probe"}, table.InferSchema(t), typeName)
	if err != nil {
		return rep
	}
	for _, c := range spec.Columns {
		rep.Columns = append(rep.Columns, column{Name: c.Name, Kind: c.Kind.String(), Type: c.Type})
	}
	return rep
}
