// Package metrics is the backend-agnostic instrumentation facade for ETL runs.
//
// Callers record steps, row counts and upstream HTTP calls through the package
// functions. The installed Backend defaults to a no-op, so recording is always
// safe even when no metrics system is configured. Concrete systems live in
// subpackages (datadog, prompush).
package metrics

import (
	"strconv"
	"sync"
	"time"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a duration or size style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes buffered metrics, if the backend needs it.
	Flush() error
}

// Metric names understood by the backends.
const (
	StepTotal           = "etl_step_total"
	StepDurationSeconds = "etl_step_duration_seconds"
	RecordsTotal        = "etl_records_total"
	HTTPRequestsTotal   = "etl_http_requests_total"
	HTTPErrorsTotal     = "etl_http_errors_total"
	HTTPRequestSeconds  = "etl_http_request_duration_seconds"
	HTTPDownloadBytes   = "etl_http_download_bytes"
)

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend. Passing nil restores the no-op.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

func statusOf(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// RecordStep measures latency and success/failure of one pipeline step.
func RecordStep(job, step string, err error, d time.Duration) {
	lbls := Labels{
		"job":    job,
		"step":   step,
		"status": statusOf(err),
	}
	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDurationSeconds, d.Seconds(), lbls)
}

// RecordRow increments a record-level counter, e.g. kind "trend" or
// "movie_genre_loaded".
func RecordRow(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RecordsTotal, float64(delta), Labels{
		"job":  job,
		"kind": kind,
	})
}

// RecordHTTP records one upstream request. statusCode 0 means no response was
// received (transport error) and is labelled "error".
func RecordHTTP(job string, statusCode int, err error, d time.Duration, downloadBytes int64) {
	status := "error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	lbls := Labels{"job": job, "status": status}

	b := current()
	b.IncCounter(HTTPRequestsTotal, 1, lbls)
	if err != nil || statusCode < 200 || statusCode > 299 {
		b.IncCounter(HTTPErrorsTotal, 1, lbls)
	}
	b.ObserveHistogram(HTTPRequestSeconds, d.Seconds(), lbls)
	if downloadBytes > 0 {
		b.ObserveHistogram(HTTPDownloadBytes, float64(downloadBytes), lbls)
	}
}
