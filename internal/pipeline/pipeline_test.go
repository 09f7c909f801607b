package pipeline

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"tmdbetl/internal/metrics"
	pjson "tmdbetl/internal/parser/json"
	"tmdbetl/internal/table"
)

var runStart = time.Date(2026, 10, 14, 6, 30, 0, 0, time.FixedZone("CEST", 2*3600))

func movie(id int64, popularity any, genres ...any) *pjson.Object {
	o := pjson.NewObject()
	o.Set("id", id)
	o.Set("title", "Movie")
	o.Set("original_title", "Film")
	o.Set("media_type", "movie")
	o.Set("popularity", popularity)
	o.Set("genre_ids", genres)
	o.Set("release_date", "2024-05-01")
	return o
}

// fakeExtractor serves a fixed trending list and one detail object per id.
type fakeExtractor struct {
	trending   []*pjson.Object
	detailErr  error
	trendErr   error
	gotIDs     []int64
	detailCall int
}

func (f *fakeExtractor) Trending(ctx context.Context) (*table.Table, error) {
	if f.trendErr != nil {
		return nil, f.trendErr
	}
	return table.FromObjects(f.trending), nil
}

func (f *fakeExtractor) Details(ctx context.Context, ids []int64) (*table.Table, error) {
	f.detailCall++
	f.gotIDs = ids
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	objs := make([]*pjson.Object, len(ids))
	for i, id := range ids {
		o := pjson.NewObject()
		o.Set("id", id)
		o.Set("runtime", int64(100+i))
		o.Set("genres", []any{})
		o.Set("release_date", "")
		objs[i] = o
	}
	return table.FromObjects(objs), nil
}

// fakeLoader records the tables it was asked to load, in call order.
type fakeLoader struct {
	mu     sync.Mutex
	order  []string
	tables map[string]*table.Table
	failOn string
}

func (l *fakeLoader) put(name string, t *table.Table) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.order = append(l.order, name)
	if name == l.failOn {
		return errors.New("warehouse unavailable")
	}
	if l.tables == nil {
		l.tables = map[string]*table.Table{}
	}
	l.tables[name] = t
	return nil
}

func (l *fakeLoader) UpdateTrend(_ context.Context, t *table.Table) error {
	return l.put(table.Trend, t)
}

func (l *fakeLoader) UpdateDetails(_ context.Context, t *table.Table) error {
	return l.put(table.Details, t)
}

func (l *fakeLoader) UpdateMovieGenre(_ context.Context, t *table.Table) error {
	return l.put(table.MovieGenre, t)
}

func newRunner(ex Extractor, ld Loader) *Runner {
	return &Runner{
		Extractor: ex,
		Loader:    ld,
		JobName:   "test",
		Now:       func() time.Time { return runStart },
		NewID:     func() string { return "run-id-1" },
	}
}

func column(t *testing.T, tb *table.Table, name string) []any {
	t.Helper()
	v, err := tb.Column(name)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestRun_Scenario(t *testing.T) {
	t.Parallel()

	ex := &fakeExtractor{trending: []*pjson.Object{
		movie(1, int64(10), int64(1), int64(2)),
		movie(2, int64(20), int64(2)),
	}}
	ld := &fakeLoader{}
	r := newRunner(ex, ld)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.State() != Done {
		t.Fatalf("state=%s, want done", r.State())
	}
	if r.RunName() != "run-TMDBmov-2026-10-14T04:30:00Z" || r.RunID() != "run-id-1" {
		t.Fatalf("run name=%q id=%q", r.RunName(), r.RunID())
	}
	if !reflect.DeepEqual(ex.gotIDs, []int64{1, 2}) {
		t.Fatalf("detail ids=%v", ex.gotIDs)
	}
	if want := []string{table.Trend, table.Details, table.MovieGenre}; !reflect.DeepEqual(ld.order, want) {
		t.Fatalf("load order=%v, want %v", ld.order, want)
	}

	mg := ld.tables[table.MovieGenre]
	if !reflect.DeepEqual(mg.Columns, []string{"id", "genre_ids"}) {
		t.Fatalf("movie_genre columns=%v", mg.Columns)
	}
	wantMG := [][]any{{int64(1), int64(1)}, {int64(1), int64(2)}, {int64(2), int64(2)}}
	if !reflect.DeepEqual(mg.Rows, wantMG) {
		t.Fatalf("movie_genre rows=%v, want %v", mg.Rows, wantMG)
	}

	trend := ld.tables[table.Trend]
	for _, gone := range []string{"original_title", "media_type", "genre_ids"} {
		if trend.Has(gone) {
			t.Fatalf("trend still has %s", gone)
		}
	}
	if got := column(t, trend, "rank"); !reflect.DeepEqual(got, []any{int64(2), int64(1)}) {
		t.Fatalf("rank=%v, want [2 1]", got)
	}
	for _, v := range column(t, trend, "rank_date") {
		if !v.(time.Time).Equal(runStart) || v.(time.Time).Location() != time.UTC {
			t.Fatalf("rank_date=%v, want %v in UTC", v, runStart)
		}
	}
	if got := column(t, trend, "release_date")[0]; got != (civil.Date{Year: 2024, Month: 5, Day: 1}) {
		t.Fatalf("release_date=%v", got)
	}

	details := ld.tables[table.Details]
	if details.Len() != 2 || details.Has("genres") {
		t.Fatalf("details rows=%d columns=%v", details.Len(), details.Columns)
	}
	if got := column(t, details, "release_date"); !reflect.DeepEqual(got, []any{nil, nil}) {
		t.Fatalf("details release_date=%v, want nulls", got)
	}

	// Transformed tables are stored back into the registry.
	if got, _ := r.Registry().Get(table.Trend); got != trend {
		t.Fatal("registry trend is not the loaded table")
	}
}

func TestRun_DetailFailureFailsRun(t *testing.T) {
	t.Parallel()

	ex := &fakeExtractor{
		trending:  []*pjson.Object{movie(1, int64(10)), movie(2, int64(20))},
		detailErr: errors.New("extract: details for id 2: status 500"),
	}
	ld := &fakeLoader{}
	r := newRunner(ex, ld)

	err := r.Run(context.Background())
	if err == nil || !strings.HasPrefix(err.Error(), StepGetDetails+": ") {
		t.Fatalf("err=%v, want %s prefix", err, StepGetDetails)
	}
	if r.State() != Failed {
		t.Fatalf("state=%s, want failed", r.State())
	}
	if _, err := r.Registry().Get(table.Details); err == nil {
		t.Fatal("details table must not be produced")
	}
	if len(ld.order) != 0 {
		t.Fatalf("loader called: %v", ld.order)
	}
}

func TestRun_LoadFailureStopsLaterLoads(t *testing.T) {
	t.Parallel()

	ex := &fakeExtractor{trending: []*pjson.Object{movie(1, 1.5, int64(3))}}
	ld := &fakeLoader{failOn: table.Details}
	r := newRunner(ex, ld)

	err := r.Run(context.Background())
	if err == nil || !strings.HasPrefix(err.Error(), StepUpdateDetails+": ") {
		t.Fatalf("err=%v, want %s prefix", err, StepUpdateDetails)
	}
	if want := []string{table.Trend, table.Details}; !reflect.DeepEqual(ld.order, want) {
		t.Fatalf("load order=%v, want %v", ld.order, want)
	}
	if _, ok := ld.tables[table.Trend]; !ok {
		t.Fatal("trend should stay loaded after a later failure")
	}
}

func TestRun_EmptyTrending(t *testing.T) {
	t.Parallel()

	ex := &fakeExtractor{}
	ld := &fakeLoader{}
	r := newRunner(ex, ld)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(ex.gotIDs) != 0 {
		t.Fatalf("ids=%v, want none", ex.gotIDs)
	}
	if n := ld.tables[table.MovieGenre].Len(); n != 0 {
		t.Fatalf("movie_genre rows=%d, want 0", n)
	}
}

func TestRun_Errors(t *testing.T) {
	t.Parallel()

	t.Run("trending", func(t *testing.T) {
		t.Parallel()
		r := newRunner(&fakeExtractor{trendErr: errors.New("status 401")}, &fakeLoader{})
		err := r.Run(context.Background())
		if err == nil || !strings.HasPrefix(err.Error(), StepGetTrending+": ") {
			t.Fatalf("err=%v", err)
		}
	})

	t.Run("canceled", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		ex := &fakeExtractor{}
		r := newRunner(ex, &fakeLoader{})
		if err := r.Run(ctx); !errors.Is(err, context.Canceled) {
			t.Fatalf("err=%v, want canceled", err)
		}
		if ex.detailCall != 0 {
			t.Fatal("details fetched after cancellation")
		}
	})

	t.Run("reuse", func(t *testing.T) {
		t.Parallel()
		r := newRunner(&fakeExtractor{}, &fakeLoader{})
		if err := r.Run(context.Background()); err != nil {
			t.Fatal(err)
		}
		if err := r.Run(context.Background()); err == nil {
			t.Fatal("expected error on second Run")
		}
	})

	t.Run("missing_deps", func(t *testing.T) {
		t.Parallel()
		r := &Runner{}
		if err := r.Run(context.Background()); err == nil || r.State() != Failed {
			t.Fatalf("err=%v state=%s", err, r.State())
		}
	})
}

// recordingBackend counts step outcomes.
type recordingBackend struct {
	mu    sync.Mutex
	steps map[string]string
	rows  map[string]float64
}

func (b *recordingBackend) IncCounter(name string, delta float64, l metrics.Labels) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch name {
	case metrics.StepTotal:
		b.steps[l["step"]] = l["status"]
	case metrics.RecordsTotal:
		b.rows[l["kind"]] += delta
	}
}

func (b *recordingBackend) ObserveHistogram(string, float64, metrics.Labels) {}
func (b *recordingBackend) Flush() error                                   { return nil }

// Not parallel: installs a global metrics backend.
func TestRun_RecordsMetrics(t *testing.T) {
	b := &recordingBackend{steps: map[string]string{}, rows: map[string]float64{}}
	metrics.SetBackend(b)
	defer metrics.SetBackend(nil)

	ex := &fakeExtractor{trending: []*pjson.Object{movie(1, int64(10), int64(1), int64(2))}}
	if err := newRunner(ex, &fakeLoader{failOn: table.MovieGenre}).Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}

	want := map[string]string{
		StepGetTrending:      "success",
		StepGetDetails:       "success",
		StepCreateMovieGenre: "success",
		StepTransformTrend:   "success",
		StepTransformDetail:  "success",
		StepUpdateTrend:      "success",
		StepUpdateDetails:    "success",
		StepUpdateMovieGenre: "failure",
	}
	if !reflect.DeepEqual(b.steps, want) {
		t.Fatalf("steps=%v, want %v", b.steps, want)
	}
	if b.rows[table.Trend] != 1 || b.rows[table.Details] != 1 || b.rows[table.MovieGenre] != 2 {
		t.Fatalf("rows=%v", b.rows)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	for s, want := range map[State]string{Idle: "idle", Loading: "loading", Failed: "failed", State(42): "state(42)"} {
		if s.String() != want {
			t.Fatalf("%d.String()=%q, want %q", int(s), s.String(), want)
		}
	}
}
