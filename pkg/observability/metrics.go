package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics implements every hook interface on top of Prometheus collectors
// registered in a private registry.
type Metrics struct {
	registry *prometheus.Registry

	resolveTotal     *prometheus.CounterVec
	resolveDuration  prometheus.Histogram
	resolvedMods     prometheus.Counter
	resolveFailures  prometheus.Counter
	downloadTotal    *prometheus.CounterVec
	downloadBytes    prometheus.Counter
	downloadDuration *prometheus.HistogramVec
	cacheTotal       *prometheus.CounterVec
	cacheBytes       prometheus.Counter
	httpTotal        *prometheus.CounterVec
	httpDuration     prometheus.Histogram
}

// NewMetrics creates the collectors and registers them.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		resolveTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quickmod_resolve_total",
				Help: "Number of finished resolutions by outcome.",
			},
			[]string{"outcome"},
		),
		resolveDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quickmod_resolve_duration_seconds",
				Help:    "Time taken to resolve a dependency set.",
				Buckets: prometheus.DefBuckets,
			},
		),
		resolvedMods: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quickmod_resolved_mods_total",
				Help: "Total number of descriptors returned by resolutions.",
			},
		),
		resolveFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quickmod_resolve_locator_failures_total",
				Help: "Total number of locators that failed during resolutions.",
			},
		),
		downloadTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quickmod_download_total",
				Help: "Number of finished version downloads by method and outcome.",
			},
			[]string{"method", "outcome"},
		),
		downloadBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quickmod_download_bytes_total",
				Help: "Total number of payload bytes downloaded.",
			},
		),
		downloadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quickmod_download_duration_seconds",
				Help:    "Time taken to download a version payload.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		cacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quickmod_cache_operations_total",
				Help: "Number of cache operations by key type and result.",
			},
			[]string{"key_type", "result"},
		),
		cacheBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quickmod_cache_written_bytes_total",
				Help: "Total number of bytes written to the cache.",
			},
		),
		httpTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quickmod_http_requests_total",
				Help: "Number of outgoing HTTP requests by host and status.",
			},
			[]string{"host", "status"},
		),
		httpDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quickmod_http_request_duration_seconds",
				Help:    "Latency of outgoing HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	m.registry.MustRegister(
		m.resolveTotal,
		m.resolveDuration,
		m.resolvedMods,
		m.resolveFailures,
		m.downloadTotal,
		m.downloadBytes,
		m.downloadDuration,
		m.cacheTotal,
		m.cacheBytes,
		m.httpTotal,
		m.httpDuration,
	)
	return m
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) OnResolveStart(context.Context, int) {}

func (m *Metrics) OnResolveComplete(_ context.Context, resolved, failed int, d time.Duration, err error) {
	m.resolveTotal.WithLabelValues(outcome(err)).Inc()
	m.resolveDuration.Observe(d.Seconds())
	m.resolvedMods.Add(float64(resolved))
	m.resolveFailures.Add(float64(failed))
}

func (m *Metrics) OnDownloadStart(context.Context, string, string) {}

func (m *Metrics) OnDownloadComplete(_ context.Context, _ string, method string, size int64, d time.Duration, err error) {
	m.downloadTotal.WithLabelValues(method, outcome(err)).Inc()
	m.downloadDuration.WithLabelValues(method).Observe(d.Seconds())
	if err == nil && size > 0 {
		m.downloadBytes.Add(float64(size))
	}
}

func (m *Metrics) OnCacheHit(_ context.Context, keyType string) {
	m.cacheTotal.WithLabelValues(keyType, "hit").Inc()
}

func (m *Metrics) OnCacheMiss(_ context.Context, keyType string) {
	m.cacheTotal.WithLabelValues(keyType, "miss").Inc()
}

func (m *Metrics) OnCacheSet(_ context.Context, keyType string, size int) {
	m.cacheTotal.WithLabelValues(keyType, "set").Inc()
	m.cacheBytes.Add(float64(size))
}

func (m *Metrics) OnRequest(context.Context, string, string, string) {}

func (m *Metrics) OnResponse(_ context.Context, _, host, _ string, status int, d time.Duration) {
	m.httpTotal.WithLabelValues(host, strconv.Itoa(status)).Inc()
	m.httpDuration.Observe(d.Seconds())
}

func (m *Metrics) OnError(_ context.Context, _, host, _ string, _ error) {
	m.httpTotal.WithLabelValues(host, "error").Inc()
}

var (
	_ ResolveHooks = (*Metrics)(nil)
	_ InstallHooks = (*Metrics)(nil)
	_ CacheHooks   = (*Metrics)(nil)
	_ HTTPHooks    = (*Metrics)(nil)
)
