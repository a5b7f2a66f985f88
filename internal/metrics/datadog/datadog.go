// Package datadog implements a Datadog backend for the internal/metrics
// package.
//
// The backend buffers observations in memory, flushes on a ticker (default:
// once per minute), and flushes one final time on Close. Short-lived adapter
// invocations get a single tail flush; a long scheduled fetch gets a real
// time series.
//
// Concurrency model:
//   - Adapter code can call IncCounter/ObserveDuration at any time.
//   - Flush snapshots and resets buffers under a mutex, then submits
//     out-of-lock.
//   - The flush loop calls Flush periodically; Close stops the loop.
package datadog

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric. Defaults to "secint".
	JobName string

	// Tags are extra Datadog tags (e.g. []string{"env:prod", "feed:dshield"}).
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// If <= 0, defaults to 60 seconds.
	FlushEvery time.Duration

	// Unexported test seams. Production code never sets these; unit tests use
	// them to avoid real network submission and nondeterministic clocks.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the minimal slice of the Datadog SDK this backend
// needs. The SDK exposes a concrete *datadogV2.MetricsApi, which cannot be
// stubbed without real HTTP; depending on this interface keeps unit tests
// deterministic.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend buffers counters and duration samples keyed by metric name plus
// tag set, and ships them as Datadog count and percentile-gauge series.
type Backend struct {
	api        metricsSubmitter
	ctx        context.Context
	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}

	baseTags []string

	// now and newTicker are injected for deterministic tests.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu        sync.Mutex
	counters  map[seriesKey]float64
	durations map[seriesKey][]float64
}

// seriesKey identifies one buffered series: a metric name plus its sorted,
// joined tag set.
type seriesKey struct {
	name string
	tags string
}

func makeKey(name string, tags []string) seriesKey {
	if len(tags) == 0 {
		return seriesKey{name: name}
	}
	cp := append([]string(nil), tags...)
	sort.Strings(cp)
	return seriesKey{name: name, tags: strings.Join(cp, ",")}
}

func (k seriesKey) tagList() []string {
	if k.tags == "" {
		return nil
	}
	return strings.Split(k.tags, ",")
}

// New constructs a Datadog backend using the official client.
//
// Edge cases:
//   - If opts.FlushEvery <= 0, defaults to 60s.
//   - Environment tag selection uses ENV then DD_ENV, otherwise env:unknown.
//
// Errors:
//   - Datadog client construction is not expected to fail; network errors
//     surface from Flush.
func New(parent context.Context, opts Options) (*Backend, error) {
	job := opts.JobName
	if job == "" {
		job = "secint"
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
		counters:   make(map[seriesKey]float64),
		durations:  make(map[seriesKey][]float64),
	}

	go b.loop()
	return b, nil
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

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, tags ...string) {
	if delta <= 0 {
		return
	}
	k := makeKey(name, tags)

	b.mu.Lock()
	b.counters[k] += delta
	b.mu.Unlock()
}

// ObserveDuration implements metrics.Backend.
func (b *Backend) ObserveDuration(name string, seconds float64, tags ...string) {
	if seconds < 0 {
		return
	}
	k := makeKey(name, tags)

	b.mu.Lock()
	b.durations[k] = append(b.durations[k], seconds)
	b.mu.Unlock()
}

// Flush submits buffered metrics to Datadog and resets local buffers.
//
// Edge cases:
//   - Returns nil if there is nothing to submit.
//   - Buffers are reset even if submission fails, so a broken intake cannot
//     grow memory without bound.
func (b *Backend) Flush() error {
	counters, durations := b.snapshotAndReset()
	if len(counters) == 0 && len(durations) == 0 {
		return nil
	}

	series := b.buildSeries(counters, durations, b.now().Unix())
	payload := datadogV2.MetricPayload{Series: series}

	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// Close stops the background flush loop and performs one final Flush.
// Close-once semantics: calling it twice panics on the closed channel.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
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

// snapshotAndReset detaches the current buffers under the lock so payload
// building and submission run out-of-lock.
func (b *Backend) snapshotAndReset() (map[seriesKey]float64, map[seriesKey][]float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	counters := b.counters
	durations := b.durations
	b.counters = make(map[seriesKey]float64)
	b.durations = make(map[seriesKey][]float64)
	return counters, durations
}

// buildSeries constructs Datadog series at a fixed timestamp. It is pure (no
// locks, no network, no clocks), which keeps it easy to unit test.
func (b *Backend) buildSeries(counters map[seriesKey]float64, durations map[seriesKey][]float64, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, len(counters)+6*len(durations))

	for k, v := range counters {
		if v == 0 {
			continue
		}
		series = append(series, countSeries(k.name, v, withTags(b.baseTags, k.tagList()...), nowUnix))
	}

	for k, samples := range durations {
		if len(samples) == 0 {
			continue
		}
		cp := append([]float64(nil), samples...)
		sort.Float64s(cp)
		tags := withTags(b.baseTags, k.tagList()...)

		series = append(series, gaugeSeries(k.name+".p50", percentileNearestRank(cp, 0.50), tags, nowUnix))
		series = append(series, gaugeSeries(k.name+".p90", percentileNearestRank(cp, 0.90), tags, nowUnix))
		series = append(series, gaugeSeries(k.name+".p95", percentileNearestRank(cp, 0.95), tags, nowUnix))
		series = append(series, gaugeSeries(k.name+".p99", percentileNearestRank(cp, 0.99), tags, nowUnix))
		series = append(series, gaugeSeries(k.name+".max", cp[len(cp)-1], tags, nowUnix))
		series = append(series, gaugeSeries(k.name+".samples", float64(len(cp)), tags, nowUnix))
	}

	return series
}

func countSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_COUNT.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func gaugeSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

// percentileNearestRank returns the nearest-rank percentile of sorted
// samples. p is in (0,1].
func percentileNearestRank(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(p*float64(len(sorted)) + 0.9999999)
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

func withTags(base []string, extra ...string) []string {
	out := make([]string, 0, len(base)+len(extra))
	out = append(out, base...)
	out = append(out, extra...)
	return out
}

// ParseTagsCSV splits a comma-separated tag list, trimming whitespace and
// dropping empties. Used for flag- and env-provided extra tags.
func ParseTagsCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
