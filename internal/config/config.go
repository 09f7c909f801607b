// Package config loads the run configuration from the process environment,
// optionally seeded from a dotenv file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults for optional settings.
const (
	DefaultBaseURL        = "https://api.themoviedb.org/3"
	DefaultTimeout        = 30 * time.Second
	DefaultWorkers        = 1
	DefaultWarehouse      = "bigquery"
	DefaultJobName        = "tmdb_etl"
	DefaultMetricsBackend = "none"
	DefaultPushgatewayURL = "http://localhost:9091"
)

// TMDB configures the upstream API client.
type TMDB struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	// Workers bounds parallel detail fetches; 1 is strictly sequential.
	Workers int
}

// Warehouse selects and configures the load destination.
type Warehouse struct {
	// Kind is one of bigquery, postgres, sqlite, mssql, mysql.
	Kind string
	// Dataset is the BigQuery dataset, or the schema/table prefix for SQL kinds.
	Dataset string

	ProjectID       string
	Location        string
	CredentialsFile string

	// DSN is the connection string for SQL kinds. $VAR references are expanded.
	DSN string
}

// Metrics configures the optional metrics backend.
type Metrics struct {
	Backend        string
	Tags           string
	PushgatewayURL string
}

// Config is the full run configuration.
type Config struct {
	JobName   string
	TMDB      TMDB
	Warehouse Warehouse
	Metrics   Metrics
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load reads envFile (if non-empty) into the process environment without
// overriding variables that are already set, then builds a Config from the
// environment. A missing envFile is an error; pass "" to skip it.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from lookup. Only malformed values are errors
// here; missing required values are reported by Validate.
func FromLookup(lookup LookupFunc) (Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	cfg := Config{
		JobName: get("JOB_NAME", DefaultJobName),
		TMDB: TMDB{
			APIKey:  get("TMDB_API_KEYS", get("TMDB_API_KEY", "")),
			BaseURL: strings.TrimRight(get("TMDB_BASE_URL", DefaultBaseURL), "/"),
			Timeout: DefaultTimeout,
			Workers: DefaultWorkers,
		},
		Warehouse: Warehouse{
			Kind:            strings.ToLower(get("WAREHOUSE_KIND", DefaultWarehouse)),
			Dataset:         get("DATASET_ID", ""),
			ProjectID:       get("PROJECT_ID", ""),
			Location:        get("BQ_LOCATION", ""),
			CredentialsFile: get("GOOGLE_APPLICATION_CREDENTIALS", ""),
			DSN: os.Expand(get("WAREHOUSE_DSN", ""), func(k string) string {
				v, _ := lookup(k)
				return v
			}),
		},
		Metrics: Metrics{
			Backend:        strings.ToLower(get("METRICS_BACKEND", DefaultMetricsBackend)),
			Tags:           get("METRICS_TAGS", ""),
			PushgatewayURL: get("PUSHGATEWAY_URL", DefaultPushgatewayURL),
		},
	}

	if v := get("TMDB_TIMEOUT", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: TMDB_TIMEOUT: %w", err)
		}
		cfg.TMDB.Timeout = d
	}
	if v := get("DETAIL_WORKERS", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: DETAIL_WORKERS: %w", err)
		}
		cfg.TMDB.Workers = n
	}
	return cfg, nil
}
