package service

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Generation paths and outcomes used as metric labels.
const (
	PathSingle = "single"
	PathBatch  = "batch"

	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"

	metricsNamespace = "bulletin_api"
)

// MetricsService encapsulates Prometheus instrumentation for the bulletin service.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	generated       *prometheus.CounterVec
	renderDuration  *prometheus.HistogramVec
	batchInFlight   prometheus.Gauge

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests by route template",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route template",
	}, []string{"method", "route", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "stats_cache",
		Name:      "read_seconds",
		Help:      "Class statistics cache read latency",
		Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
	})
	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "stats_cache",
		Name:      "write_seconds",
		Help:      "Class statistics cache write latency",
		Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
	})
	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "stats_cache",
		Name:      "hit_ratio",
		Help:      "Hits over lookups since start",
	})
	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "stats_cache",
		Name:      "hits_total",
		Help:      "Class statistics served from cache",
	})
	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "stats_cache",
		Name:      "misses_total",
		Help:      "Class statistics recomputed from grades",
	})

	generated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bulletins_generated_total",
		Help: "Bulletins processed, by generation path and outcome",
	}, []string{"path", "outcome"})
	renderDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bulletin_render_duration_seconds",
		Help:    "Time spent rendering one bulletin",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"format"})
	batchInFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bulletin_batch_in_flight",
		Help: "1 while a bulletin batch is running",
	})

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		requestDuration, requestTotal,
		cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		generated, renderDuration, batchInFlight,
	)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		generated:       generated,
		renderDuration:  renderDuration,
		batchInFlight:   batchInFlight,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordBulletin counts one processed bulletin.
func (m *MetricsService) RecordBulletin(path, outcome string) {
	if m == nil {
		return
	}
	m.generated.WithLabelValues(path, outcome).Inc()
}

// ObserveRender records how long one rendering took.
func (m *MetricsService) ObserveRender(format string, duration time.Duration) {
	if m == nil {
		return
	}
	m.renderDuration.WithLabelValues(format).Observe(duration.Seconds())
}

// SetBatchInFlight flips the in-flight batch gauge.
func (m *MetricsService) SetBatchInFlight(running bool) {
	if m == nil {
		return
	}
	if running {
		m.batchInFlight.Set(1)
		return
	}
	m.batchInFlight.Set(0)
}
