package config

import (
	"fmt"
	"net/url"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a single validation finding. Path names the environment variable
// the finding is about.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements error so an Issue can be returned where an error is expected.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

var warehouseKinds = map[string]bool{
	"bigquery": true,
	"postgres": true,
	"sqlite":   true,
	"mssql":    true,
	"mysql":    true,
}

// Validate checks cfg and returns every issue found. It does not mutate cfg.
func Validate(cfg Config) []Issue {
	var issues []Issue
	errorf := func(path, format string, a ...any) {
		issues = append(issues, Issue{Severity: SeverityError, Path: path, Message: fmt.Sprintf(format, a...)})
	}
	warnf := func(path, format string, a ...any) {
		issues = append(issues, Issue{Severity: SeverityWarning, Path: path, Message: fmt.Sprintf(format, a...)})
	}

	if cfg.TMDB.APIKey == "" {
		errorf("TMDB_API_KEYS", "TMDB API read access token is required")
	}
	if u, err := url.Parse(cfg.TMDB.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errorf("TMDB_BASE_URL", "must be an absolute URL, got %q", cfg.TMDB.BaseURL)
	}
	if cfg.TMDB.Timeout <= 0 {
		errorf("TMDB_TIMEOUT", "must be positive, got %s", cfg.TMDB.Timeout)
	}
	if cfg.TMDB.Workers < 1 {
		errorf("DETAIL_WORKERS", "must be at least 1, got %d", cfg.TMDB.Workers)
	} else if cfg.TMDB.Workers > 20 {
		warnf("DETAIL_WORKERS", "%d parallel requests may trip the upstream rate limit", cfg.TMDB.Workers)
	}

	w := cfg.Warehouse
	if !warehouseKinds[w.Kind] {
		errorf("WAREHOUSE_KIND", "unsupported warehouse %q (want bigquery, postgres, sqlite, mssql or mysql)", w.Kind)
	}
	if strings.TrimSpace(w.Dataset) == "" {
		errorf("DATASET_ID", "dataset is required")
	}
	switch w.Kind {
	case "bigquery":
		if w.ProjectID == "" {
			errorf("PROJECT_ID", "GCP project is required for bigquery")
		}
		if w.CredentialsFile == "" {
			warnf("GOOGLE_APPLICATION_CREDENTIALS", "not set; falling back to application default credentials")
		}
	case "postgres", "sqlite", "mssql", "mysql":
		if w.DSN == "" {
			errorf("WAREHOUSE_DSN", "DSN is required for %s", w.Kind)
		}
	}

	switch cfg.Metrics.Backend {
	case "", "none", "noop", "datadog", "dd":
	case "pushgateway", "prom", "prometheus":
		if cfg.Metrics.PushgatewayURL == "" {
			errorf("PUSHGATEWAY_URL", "required for the pushgateway backend")
		}
	default:
		warnf("METRICS_BACKEND", "unknown backend %q; metrics disabled", cfg.Metrics.Backend)
	}
	if strings.TrimSpace(cfg.JobName) == "" {
		errorf("JOB_NAME", "must not be empty")
	}
	return issues
}

// HasErrors reports whether any issue has error severity.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}
