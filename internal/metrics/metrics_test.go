package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type counterCall struct {
	name   string
	delta  float64
	labels Labels
}

type histCall struct {
	name   string
	value  float64
	labels Labels
}

type fakeBackend struct {
	mu         sync.Mutex
	counters   []counterCall
	histograms []histCall
	flushes    int
}

func (f *fakeBackend) IncCounter(name string, delta float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters = append(f.counters, counterCall{name, delta, labels})
}

func (f *fakeBackend) ObserveHistogram(name string, value float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histograms = append(f.histograms, histCall{name, value, labels})
}

func (f *fakeBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return nil
}

func install(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{}
	SetBackend(fb)
	t.Cleanup(func() { SetBackend(nil) })
	return fb
}

func TestRecordStep(t *testing.T) {
	fb := install(t)

	RecordStep("tmdb", "get_trending", nil, 2*time.Second)
	RecordStep("tmdb", "get_details", errors.New("boom"), 500*time.Millisecond)

	if len(fb.counters) != 2 || len(fb.histograms) != 2 {
		t.Fatalf("got %d counters, %d histograms", len(fb.counters), len(fb.histograms))
	}
	if c := fb.counters[0]; c.name != StepTotal || c.labels["status"] != "success" || c.labels["step"] != "get_trending" {
		t.Fatalf("unexpected success counter %+v", c)
	}
	if c := fb.counters[1]; c.labels["status"] != "failure" {
		t.Fatalf("unexpected failure counter %+v", c)
	}
	if h := fb.histograms[0]; h.name != StepDurationSeconds || h.value != 2 {
		t.Fatalf("unexpected histogram %+v", h)
	}
}

func TestRecordRow_IgnoresNonPositive(t *testing.T) {
	fb := install(t)

	RecordRow("tmdb", "trend", 0)
	RecordRow("tmdb", "trend", -3)
	RecordRow("tmdb", "trend", 20)

	if len(fb.counters) != 1 {
		t.Fatalf("want 1 counter, got %d", len(fb.counters))
	}
	if c := fb.counters[0]; c.name != RecordsTotal || c.delta != 20 || c.labels["kind"] != "trend" {
		t.Fatalf("unexpected counter %+v", c)
	}
}

func TestRecordHTTP(t *testing.T) {
	tests := []struct {
		name       string
		code       int
		err        error
		wantStatus string
		wantErrors int
	}{
		{"ok", 200, nil, "200", 0},
		{"server error", 500, nil, "500", 1},
		{"transport error", 0, errors.New("dial"), "error", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := install(t)
			RecordHTTP("tmdb", tt.code, tt.err, time.Second, 128)

			errs := 0
			for _, c := range fb.counters {
				if c.labels["status"] != tt.wantStatus {
					t.Fatalf("status label = %q, want %q", c.labels["status"], tt.wantStatus)
				}
				if c.name == HTTPErrorsTotal {
					errs++
				}
			}
			if errs != tt.wantErrors {
				t.Fatalf("error counters = %d, want %d", errs, tt.wantErrors)
			}
			if len(fb.histograms) != 2 {
				t.Fatalf("want duration and size histograms, got %d", len(fb.histograms))
			}
		})
	}
}

func TestSetBackendNilRestoresNop(t *testing.T) {
	fb := install(t)
	SetBackend(nil)
	RecordStep("tmdb", "x", nil, time.Second)
	if err := Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(fb.counters) != 0 || fb.flushes != 0 {
		t.Fatal("nil backend should not route to previous backend")
	}
}
