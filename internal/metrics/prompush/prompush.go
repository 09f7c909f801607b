// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package. A batch run has no scrape window, so collectors live in a
// private registry that Flush pushes to the gateway under the job name.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"tmdbetl/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string
	jobName    string
	reg        *prometheus.Registry

	stepCounter  *prometheus.CounterVec
	stepDuration *prometheus.SummaryVec
	records      *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpErrors   *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpBytes    *prometheus.HistogramVec

	pusher func(*Backend) error
}

// NewBackend constructs a backend pushing to gatewayURL under jobName.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "tmdb_etl"
	}

	b := &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		reg:        prometheus.NewRegistry(),
		stepCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.StepTotal,
			Help: "ETL step executions by step and status.",
		}, []string{"step", "status"}),
		stepDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       metrics.StepDurationSeconds,
			Help:       "ETL step duration in seconds by step and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{"step", "status"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RecordsTotal,
			Help: "Rows by kind (trend, details, movie_genre, loaded).",
		}, []string{"kind"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.HTTPRequestsTotal,
			Help: "Upstream API requests by status.",
		}, []string{"status"}),
		httpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.HTTPErrorsTotal,
			Help: "Failed upstream API requests by status.",
		}, []string{"status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metrics.HTTPRequestSeconds,
			Help:    "Upstream API request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		httpBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metrics.HTTPDownloadBytes,
			Help:    "Upstream API response body size in bytes.",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		}, []string{"status"}),
		pusher: pushToGateway,
	}

	for _, c := range []prometheus.Collector{
		b.stepCounter, b.stepDuration, b.records,
		b.httpRequests, b.httpErrors, b.httpDuration, b.httpBytes,
	} {
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register collector: %w", err)
		}
	}
	return b, nil
}

// IncCounter implements metrics.Backend. Unknown names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	switch name {
	case metrics.StepTotal:
		b.stepCounter.WithLabelValues(labels["step"], labels["status"]).Add(delta)
	case metrics.RecordsTotal:
		b.records.WithLabelValues(labels["kind"]).Add(delta)
	case metrics.HTTPRequestsTotal:
		b.httpRequests.WithLabelValues(labels["status"]).Add(delta)
	case metrics.HTTPErrorsTotal:
		b.httpErrors.WithLabelValues(labels["status"]).Add(delta)
	}
}

// ObserveHistogram implements metrics.Backend. Unknown names are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	switch name {
	case metrics.StepDurationSeconds:
		b.stepDuration.WithLabelValues(labels["step"], labels["status"]).Observe(value)
	case metrics.HTTPRequestSeconds:
		b.httpDuration.WithLabelValues(labels["status"]).Observe(value)
	case metrics.HTTPDownloadBytes:
		b.httpBytes.WithLabelValues(labels["status"]).Observe(value)
	}
}

// Flush pushes the registry to the Pushgateway, replacing the job's group.
func (b *Backend) Flush() error {
	if err := b.pusher(b); err != nil {
		return fmt.Errorf("prompush: push to %s: %w", b.gatewayURL, err)
	}
	return nil
}

func pushToGateway(b *Backend) error {
	return push.New(b.gatewayURL, b.jobName).Gatherer(b.reg).Push()
}

var _ metrics.Backend = (*Backend)(nil)
