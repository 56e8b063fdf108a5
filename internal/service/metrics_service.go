package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-adp-mobile/internal/models"
)

// Refresh outcomes recorded by the session manager.
const (
	RefreshOutcomeSuccess    = "success"
	RefreshOutcomeFailure    = "failure"
	RefreshOutcomeSuperseded = "superseded"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots.
type MetricsService struct {
	registry         *prometheus.Registry
	handler          http.Handler
	gatewayDuration  *prometheus.HistogramVec
	gatewayTotal     *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	upstreamTotal    *prometheus.CounterVec
	refreshTotal     *prometheus.CounterVec
	refreshShared    prometheus.Counter
	replayTotal      *prometheus.CounterVec
	authenticated    prometheus.Gauge
	cacheLatency     prometheus.Observer
	cacheWrite       prometheus.Observer
	cacheHitRatio    prometheus.Gauge
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter

	upstreamCount         uint64
	upstreamDurationTotal uint64
	refreshOK             uint64
	refreshFailed         uint64
	refreshSharedCount    uint64
	replayCount           uint64
	cacheHitCount         uint64
	cacheMissCount        uint64
}

// NewMetricsService registers collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	gatewayDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_request_duration_seconds",
		Help:    "Duration of session gateway requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	gatewayTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_requests_total",
		Help: "Total number of session gateway requests",
	}, []string{"method", "path", "status"})

	upstreamDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "upstream_request_duration_seconds",
		Help:    "Duration of requests sent to the school API",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "status"})

	upstreamTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "upstream_requests_total",
		Help: "Total number of requests sent to the school API",
	}, []string{"method", "status"})

	refreshTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "session_refresh_total",
		Help: "Refresh exchanges by outcome",
	}, []string{"outcome"})

	refreshShared := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "session_refresh_shared_total",
		Help: "Refresh calls that shared an exchange with concurrent callers",
	})

	replayTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "session_unauthorized_replays_total",
		Help: "Requests answered with 401 and handled by the client, by outcome",
	}, []string{"outcome"})

	authenticated := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "session_authenticated",
		Help: "1 while a session is authenticated",
	})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(gatewayDuration, gatewayTotal, upstreamDuration, upstreamTotal, refreshTotal, refreshShared,
		replayTotal, authenticated, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses, goroutines)

	return &MetricsService{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		gatewayDuration:  gatewayDuration,
		gatewayTotal:     gatewayTotal,
		upstreamDuration: upstreamDuration,
		upstreamTotal:    upstreamTotal,
		refreshTotal:     refreshTotal,
		refreshShared:    refreshShared,
		replayTotal:      replayTotal,
		authenticated:    authenticated,
		cacheLatency:     cacheLatency,
		cacheWrite:       cacheWrite,
		cacheHitRatio:    cacheHitRatio,
		cacheHits:        cacheHits,
		cacheMisses:      cacheMisses,
	}
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

// ObserveHTTPRequest records a gateway request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.gatewayDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.gatewayTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveUpstreamRequest records a request sent to the school API. Status 0 marks a
// transport failure.
func (m *MetricsService) ObserveUpstreamRequest(method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.upstreamDuration.WithLabelValues(method, labelStatus).Observe(duration.Seconds())
	m.upstreamTotal.WithLabelValues(method, labelStatus).Inc()
	atomic.AddUint64(&m.upstreamCount, 1)
	atomic.AddUint64(&m.upstreamDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordRefresh counts a completed refresh exchange.
func (m *MetricsService) RecordRefresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshTotal.WithLabelValues(outcome).Inc()
	if outcome == RefreshOutcomeSuccess {
		atomic.AddUint64(&m.refreshOK, 1)
	} else {
		atomic.AddUint64(&m.refreshFailed, 1)
	}
}

// RecordRefreshShared counts a caller that received the result of a shared exchange.
func (m *MetricsService) RecordRefreshShared() {
	if m == nil {
		return
	}
	m.refreshShared.Inc()
	atomic.AddUint64(&m.refreshSharedCount, 1)
}

// RecordReplay counts how a 401 response was handled.
func (m *MetricsService) RecordReplay(outcome string) {
	if m == nil {
		return
	}
	m.replayTotal.WithLabelValues(outcome).Inc()
	atomic.AddUint64(&m.replayCount, 1)
}

// SetAuthenticated mirrors the session state into a gauge.
func (m *MetricsService) SetAuthenticated(authenticated bool) {
	if m == nil {
		return
	}
	if authenticated {
		m.authenticated.Set(1)
		return
	}
	m.authenticated.Set(0)
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// Snapshot returns aggregated counters for the gateway summary endpoint.
func (m *MetricsService) Snapshot() models.MetricsSnapshot {
	if m == nil {
		return models.MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	upstream := atomic.LoadUint64(&m.upstreamCount)
	upstreamDuration := atomic.LoadUint64(&m.upstreamDurationTotal)

	var cacheRatio float64
	if hits+misses > 0 {
		cacheRatio = float64(hits) / float64(hits+misses)
	}

	var avgUpstreamMs float64
	if upstream > 0 {
		avgUpstreamMs = float64(upstreamDuration) / float64(upstream) / float64(time.Millisecond)
	}

	return models.MetricsSnapshot{
		UpstreamRequests:          upstream,
		AverageUpstreamDurationMs: avgUpstreamMs,
		RefreshSucceeded:          atomic.LoadUint64(&m.refreshOK),
		RefreshFailed:             atomic.LoadUint64(&m.refreshFailed),
		RefreshShared:             atomic.LoadUint64(&m.refreshSharedCount),
		Replays:                   atomic.LoadUint64(&m.replayCount),
		CacheHitRatio:             cacheRatio,
		CacheHits:                 hits,
		CacheMisses:               misses,
		Goroutines:                runtime.NumGoroutine(),
		GeneratedAt:               time.Now().UTC(),
	}
}
