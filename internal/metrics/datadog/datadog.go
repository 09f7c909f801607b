// Package datadog implements a Datadog backend for the internal/metrics package.
//
// Metrics are buffered in memory and submitted on Flush. A background loop
// flushes on a ticker (default once per minute) and Close flushes one final
// time, so a short run produces a single submission while a slow run still
// shows up as a time series.
//
// Counters are submitted as COUNT series. Histograms are reduced to gauges
// (p50, p90, p95, p99, max, samples) per tag set.
package datadog

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"tmdbetl/internal/metrics"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric. Defaults to "tmdb_etl".
	JobName string

	// Tags are extra Datadog tags (e.g. "env:prod", "service:tmdb").
	Tags []string

	// FlushEvery is the background submission interval. Defaults to 60s.
	FlushEvery time.Duration

	// Test seams; production leaves them nil.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the part of *datadogV2.MetricsApi the backend needs.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// labelTags lists, per known metric, the Datadog metric name and the labels
// promoted to tags. Metrics not listed here are dropped.
var labelTags = map[string]struct {
	metric string
	labels []string
}{
	metrics.StepTotal:           {"etl.step.total", []string{"step", "status"}},
	metrics.StepDurationSeconds: {"etl.step.duration_seconds", []string{"step", "status"}},
	metrics.RecordsTotal:        {"etl.records.total", []string{"kind"}},
	metrics.HTTPRequestsTotal:   {"etl.http.requests.total", []string{"status"}},
	metrics.HTTPErrorsTotal:     {"etl.http.errors.total", []string{"status"}},
	metrics.HTTPRequestSeconds:  {"etl.http.request_duration_seconds", []string{"status"}},
	metrics.HTTPDownloadBytes:   {"etl.http.download_bytes", []string{"status"}},
}

// seriesKey identifies one buffered series: Datadog metric name plus its
// extra tags joined with "\x00".
type seriesKey struct {
	metric string
	tags   string
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}
	closeOnce  sync.Once
	closeErr   error

	baseTags  []string
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu      sync.Mutex
	counts  map[seriesKey]float64
	samples map[seriesKey][]float64
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

// NewBackend constructs a Datadog backend using the official client and starts
// its flush loop. Credentials are read by the client from DD_API_KEY and
// DD_SITE; network errors surface from Flush.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	job := opts.JobName
	if job == "" {
		job = "tmdb_etl"
	}
	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}
	submitter := opts.submitter
	if submitter == nil {
		client := dd.NewAPIClient(dd.NewConfiguration())
		submitter = datadogV2.NewMetricsApi(client)
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		baseTags:   baseTags,
		now:        nowFn,
		newTicker:  newTicker,
		counts:     make(map[seriesKey]float64),
		samples:    make(map[seriesKey][]float64),
	}
	go b.loop()
	return b, nil
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the flush loop and performs one final Flush. Later calls return
// the first result.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() {
		close(b.stopCh)
		<-b.doneCh
		b.closeErr = b.Flush()
	})
	return b.closeErr
}

func keyFor(name string, labels metrics.Labels) (seriesKey, bool) {
	spec, ok := labelTags[name]
	if !ok {
		return seriesKey{}, false
	}
	parts := make([]string, len(spec.labels))
	for i, l := range spec.labels {
		v := labels[l]
		if v == "" {
			v = "unknown"
		}
		parts[i] = l + ":" + v
	}
	return seriesKey{metric: spec.metric, tags: strings.Join(parts, "\x00")}, true
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	k, ok := keyFor(name, labels)
	if !ok {
		return
	}
	b.mu.Lock()
	b.counts[k] += delta
	b.mu.Unlock()
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}
	k, ok := keyFor(name, labels)
	if !ok {
		return
	}
	b.mu.Lock()
	b.samples[k] = append(b.samples[k], value)
	b.mu.Unlock()
}

func (b *Backend) snapshotAndReset() (map[seriesKey]float64, map[seriesKey][]float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	counts, samples := b.counts, b.samples
	b.counts = make(map[seriesKey]float64)
	b.samples = make(map[seriesKey][]float64)
	return counts, samples
}

// Flush submits buffered metrics to Datadog and resets the buffers. Buffers
// are reset even when submission fails. Nothing is submitted when empty.
func (b *Backend) Flush() error {
	counts, samples := b.snapshotAndReset()
	if len(counts) == 0 && len(samples) == 0 {
		return nil
	}

	series := b.buildSeries(counts, samples, b.now().Unix())
	_, _, err := b.api.SubmitMetrics(b.ctx, datadogV2.MetricPayload{Series: series}, *datadogV2.NewSubmitMetricsOptionalParameters())
	if err != nil {
		return fmt.Errorf("datadog: submit %d series: %w", len(series), err)
	}
	return nil
}

// buildSeries is pure so it can be tested without a submitter. Output is
// sorted by metric name, then tags.
func (b *Backend) buildSeries(counts map[seriesKey]float64, samples map[seriesKey][]float64, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, len(counts)+6*len(samples))

	for _, k := range sortedKeys(counts) {
		series = append(series, point(k.metric, datadogV2.METRICINTAKETYPE_COUNT, counts[k], b.tags(k), nowUnix))
	}
	for _, k := range sortedKeys(samples) {
		cp := append([]float64(nil), samples[k]...)
		sort.Float64s(cp)
		tags := b.tags(k)
		gauge := func(suffix string, v float64) {
			series = append(series, point(k.metric+"."+suffix, datadogV2.METRICINTAKETYPE_GAUGE, v, tags, nowUnix))
		}
		gauge("p50", percentileNearestRank(cp, 0.50))
		gauge("p90", percentileNearestRank(cp, 0.90))
		gauge("p95", percentileNearestRank(cp, 0.95))
		gauge("p99", percentileNearestRank(cp, 0.99))
		gauge("max", cp[len(cp)-1])
		gauge("samples", float64(len(cp)))
	}
	return series
}

func (b *Backend) tags(k seriesKey) []string {
	out := append([]string(nil), b.baseTags...)
	if k.tags != "" {
		out = append(out, strings.Split(k.tags, "\x00")...)
	}
	return out
}

func sortedKeys[V any](m map[seriesKey]V) []seriesKey {
	keys := make([]seriesKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].metric != keys[j].metric {
			return keys[i].metric < keys[j].metric
		}
		return keys[i].tags < keys[j].tags
	})
	return keys
}

func point(metric string, typ datadogV2.MetricIntakeType, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   typ.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

// percentileNearestRank expects s sorted ascending.
func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

var _ metrics.Backend = (*Backend)(nil)

// ParseTagsCSV parses comma-separated tags like "env:prod,service:tmdb".
func ParseTagsCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
