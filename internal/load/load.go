// Package load writes the transformed tables to the warehouse. Each update is
// a full replace of {dataset}.{table}; there is no atomicity across tables.
package load

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"tmdbetl/internal/metrics"
	"tmdbetl/internal/storage"
	"tmdbetl/internal/table"
)

// Logger is satisfied by *log.Logger.
type Logger interface {
	Printf(format string, v ...any)
}

// Loader replaces the trend, details and movie_genre tables of one dataset.
type Loader struct {
	Warehouse storage.Warehouse
	Dataset   string
	JobName   string
	Logger    Logger
}

// UpdateTrend replaces {dataset}.trend with t.
func (l *Loader) UpdateTrend(ctx context.Context, t *table.Table) error {
	return l.replace(ctx, table.Trend, t)
}

// UpdateDetails replaces {dataset}.details with t.
func (l *Loader) UpdateDetails(ctx context.Context, t *table.Table) error {
	return l.replace(ctx, table.Details, t)
}

// UpdateMovieGenre replaces {dataset}.movie_genre with t.
func (l *Loader) UpdateMovieGenre(ctx context.Context, t *table.Table) error {
	return l.replace(ctx, table.MovieGenre, t)
}

func (l *Loader) replace(ctx context.Context, name string, t *table.Table) error {
	if l.Warehouse == nil {
		return fmt.Errorf("load: no warehouse configured")
	}
	if t == nil {
		return fmt.Errorf("load: %s: nil table", name)
	}
	ref := storage.TableRef{Dataset: l.Dataset, Table: name}
	start := time.Now()
	if err := l.Warehouse.ReplaceTable(ctx, ref, t); err != nil {
		return fmt.Errorf("load: replace %s: %w", ref, err)
	}
	metrics.RecordRow(l.JobName, name+"_loaded", int64(t.Len()))
	l.logger()("stage=load table=%s rows=%d fingerprint=%s duration=%s",
		ref, t.Len(), table.Fingerprint(t), time.Since(start).Truncate(time.Millisecond))
	return nil
}

func (l *Loader) logger() func(format string, v ...any) {
	if l.Logger == nil {
		return log.New(io.Discard, "", 0).Printf
	}
	return l.Logger.Printf
}
