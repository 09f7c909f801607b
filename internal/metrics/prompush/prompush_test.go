package prompush

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"tmdbetl/internal/metrics"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Counter.Write: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestNewBackend(t *testing.T) {
	t.Parallel()

	if _, err := NewBackend("job", ""); err == nil {
		t.Fatal("expected error for empty gateway URL")
	}
	b, err := NewBackend("", "http://gw:9091")
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	if b.jobName != "tmdb_etl" {
		t.Fatalf("jobName=%q, want default", b.jobName)
	}
}

func TestBackend_RecordsKnownMetrics(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("tmdb", "http://gw:9091")
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}

	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "get_trending", "status": "success"})
	b.IncCounter(metrics.RecordsTotal, 20, metrics.Labels{"kind": "trend"})
	b.IncCounter(metrics.HTTPRequestsTotal, 2, metrics.Labels{"status": "200"})
	b.IncCounter(metrics.HTTPErrorsTotal, 1, metrics.Labels{"status": "500"})
	b.IncCounter("unknown", 5, nil)
	b.IncCounter(metrics.RecordsTotal, -1, metrics.Labels{"kind": "trend"})
	b.ObserveHistogram(metrics.HTTPRequestSeconds, 0.2, metrics.Labels{"status": "200"})

	if got := counterValue(t, b.stepCounter.WithLabelValues("get_trending", "success")); got != 1 {
		t.Fatalf("step counter=%v", got)
	}
	if got := counterValue(t, b.records.WithLabelValues("trend")); got != 20 {
		t.Fatalf("records counter=%v", got)
	}
	if got := counterValue(t, b.httpErrors.WithLabelValues("500")); got != 1 {
		t.Fatalf("http errors=%v", got)
	}

	families, err := b.reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{metrics.StepTotal, metrics.RecordsTotal, metrics.HTTPRequestsTotal, metrics.HTTPRequestSeconds} {
		if !names[want] {
			t.Fatalf("gathered families missing %q: %v", want, names)
		}
	}
}

func TestFlush_PushesToGateway(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		path string
		body string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		path, body = r.URL.Path, string(b)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b, err := NewBackend("tmdb", srv.URL)
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	b.IncCounter(metrics.RecordsTotal, 3, metrics.Labels{"kind": "details"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if path != "/metrics/job/tmdb" {
		t.Fatalf("push path=%q", path)
	}
	if body == "" {
		t.Fatal("empty push body")
	}
}

func TestFlush_WrapsError(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("tmdb", "http://gw:9091")
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	boom := errors.New("refused")
	b.pusher = func(*Backend) error { return boom }

	err = b.Flush()
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "http://gw:9091") {
		t.Fatalf("Flush err=%v", err)
	}
}
