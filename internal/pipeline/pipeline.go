// Package pipeline runs one extract, transform, load pass over TMDB's daily
// trending movies. Steps run strictly in sequence and the first failing step
// ends the run.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"tmdbetl/internal/extract"
	"tmdbetl/internal/metrics"
	"tmdbetl/internal/table"
	"tmdbetl/internal/transform"
)

// State is the lifecycle position of a Runner.
type State int

const (
	Idle State = iota
	Extracting
	Transforming
	Loading
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Extracting:
		return "extracting"
	case Transforming:
		return "transforming"
	case Loading:
		return "loading"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Step names, used in logs, metrics and error prefixes.
const (
	StepGetTrending      = "get_trending"
	StepGetDetails       = "get_details"
	StepCreateMovieGenre = "create_movie_genre"
	StepTransformTrend   = "transform_trend"
	StepTransformDetail  = "transform_detail"
	StepUpdateTrend      = "update_trend"
	StepUpdateDetails    = "update_details"
	StepUpdateMovieGenre = "update_movie_genre"
)

// Extractor is implemented by *extract.Extractor.
type Extractor interface {
	Trending(ctx context.Context) (*table.Table, error)
	Details(ctx context.Context, ids []int64) (*table.Table, error)
}

// Loader is implemented by *load.Loader.
type Loader interface {
	UpdateTrend(ctx context.Context, t *table.Table) error
	UpdateDetails(ctx context.Context, t *table.Table) error
	UpdateMovieGenre(ctx context.Context, t *table.Table) error
}

// Logger is satisfied by *log.Logger.
type Logger interface {
	Printf(format string, v ...any)
}

// Runner executes a single run. A Runner is not reusable: once it reaches
// Done or Failed, Run returns an error.
type Runner struct {
	Extractor Extractor
	Loader    Loader
	JobName   string
	Logger    Logger

	// Now and NewID default to time.Now and uuid.NewString.
	Now   func() time.Time
	NewID func() string

	state    State
	registry *table.Registry
	runName  string
	runID    string
}

// State reports the current lifecycle state.
func (r *Runner) State() State { return r.state }

// Registry returns the tables of the run so far; nil before Run.
func (r *Runner) Registry() *table.Registry { return r.registry }

// RunName returns "run-TMDBmov-<start time>" once Run has started.
func (r *Runner) RunName() string { return r.runName }

// RunID returns the UUID of the run once Run has started.
func (r *Runner) RunID() string { return r.runID }

// Run performs the whole pipeline. On error the state is Failed and the
// error is prefixed with the failing step name. Tables replaced before the
// failure stay replaced.
func (r *Runner) Run(ctx context.Context) error {
	if r.state != Idle {
		return fmt.Errorf("pipeline: runner already used (state=%s)", r.state)
	}
	if r.Extractor == nil || r.Loader == nil {
		r.state = Failed
		return fmt.Errorf("pipeline: extractor and loader are required")
	}

	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	newID := uuid.NewString
	if r.NewID != nil {
		newID = r.NewID
	}

	started := now()
	r.registry = table.NewRegistry()
	r.runName = "run-TMDBmov-" + started.UTC().Format(time.RFC3339)
	r.runID = newID()
	logf := r.logger()
	logf("run=%s run_id=%s start", r.runName, r.runID)

	if err := r.run(ctx, started, logf); err != nil {
		r.state = Failed
		logf("run=%s run_id=%s failed duration=%s: %v", r.runName, r.runID, since(now, started), err)
		return err
	}
	r.state = Done
	logf("run=%s run_id=%s done duration=%s", r.runName, r.runID, since(now, started))
	return nil
}

func (r *Runner) run(ctx context.Context, started time.Time, logf func(string, ...any)) error {
	reg := r.registry

	r.state = Extracting
	if err := r.step(ctx, StepGetTrending, logf, func(ctx context.Context) error {
		trend, err := r.Extractor.Trending(ctx)
		if err != nil {
			return err
		}
		reg.Put(table.Trend, trend)
		metrics.RecordRow(r.JobName, table.Trend, int64(trend.Len()))
		return nil
	}); err != nil {
		return err
	}
	if err := r.step(ctx, StepGetDetails, logf, func(ctx context.Context) error {
		trend, err := reg.Get(table.Trend)
		if err != nil {
			return err
		}
		ids, err := extract.IDs(trend)
		if err != nil {
			return err
		}
		details, err := r.Extractor.Details(ctx, ids)
		if err != nil {
			return err
		}
		reg.Put(table.Details, details)
		metrics.RecordRow(r.JobName, table.Details, int64(details.Len()))
		return nil
	}); err != nil {
		return err
	}

	r.state = Transforming
	// movie_genre reads genre_ids, which the trend transform drops.
	if err := r.transform(ctx, StepCreateMovieGenre, table.Trend, table.MovieGenre, logf, transform.MovieGenre); err != nil {
		return err
	}
	if err := r.transform(ctx, StepTransformTrend, table.Trend, table.Trend, logf, func(t *table.Table) (*table.Table, error) {
		return transform.Trend(t, started)
	}); err != nil {
		return err
	}
	if err := r.transform(ctx, StepTransformDetail, table.Details, table.Details, logf, transform.Detail); err != nil {
		return err
	}

	r.state = Loading
	loads := []struct {
		step, name string
		fn         func(context.Context, *table.Table) error
	}{
		{StepUpdateTrend, table.Trend, r.Loader.UpdateTrend},
		{StepUpdateDetails, table.Details, r.Loader.UpdateDetails},
		{StepUpdateMovieGenre, table.MovieGenre, r.Loader.UpdateMovieGenre},
	}
	for _, l := range loads {
		if err := r.step(ctx, l.step, logf, func(ctx context.Context) error {
			t, err := reg.Get(l.name)
			if err != nil {
				return err
			}
			return l.fn(ctx, t)
		}); err != nil {
			return err
		}
	}
	return nil
}

// transform applies fn to registry table src and stores the result as dst.
func (r *Runner) transform(ctx context.Context, step, src, dst string, logf func(string, ...any), fn func(*table.Table) (*table.Table, error)) error {
	return r.step(ctx, step, logf, func(context.Context) error {
		in, err := r.registry.Get(src)
		if err != nil {
			return err
		}
		out, err := fn(in)
		if err != nil {
			return err
		}
		r.registry.Put(dst, out)
		if dst == table.MovieGenre {
			metrics.RecordRow(r.JobName, table.MovieGenre, int64(out.Len()))
		}
		return nil
	})
}

func (r *Runner) step(ctx context.Context, name string, logf func(string, ...any), fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	start := time.Now()
	err := fn(ctx)
	d := time.Since(start)
	metrics.RecordStep(r.JobName, name, err, d)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	logf("stage=%s step=%s ok duration=%s", r.state, name, d.Truncate(time.Millisecond))
	return nil
}

func (r *Runner) logger() func(format string, v ...any) {
	if r.Logger == nil {
		return log.New(io.Discard, "", 0).Printf
	}
	return r.Logger.Printf
}

func since(now func() time.Time, t time.Time) time.Duration {
	return now().Sub(t).Truncate(time.Millisecond)
}
