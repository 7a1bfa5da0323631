package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsSnapshot is a compact summary of the process counters.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	StoreWrites              uint64    `json:"storeWrites"`
	StoreWriteErrors         uint64    `json:"storeWriteErrors"`
	SnapshotsReceived        uint64    `json:"snapshotsReceived"`
	DirectorySize            int64     `json:"directorySize"`
	LiveSessions             int64     `json:"liveSessions"`
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}

// MetricsService owns the Prometheus registry. Every method is safe on a nil receiver.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	storeWrites     *prometheus.CounterVec
	snapshots       prometheus.Counter
	directorySize   prometheus.Gauge
	viewDuration    prometheus.Histogram
	liveSessions    prometheus.Gauge
	cacheLatency    prometheus.Histogram
	cacheWrite      prometheus.Histogram
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	requestCount         uint64
	requestDurationTotal uint64
	writeCount           uint64
	writeErrorCount      uint64
	snapshotCount        uint64
	directoryLen         int64
	liveCount            int64
	cacheHitCount        uint64
	cacheMissCount       uint64
}

// NewMetricsService registers the collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		storeWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "student_store_writes_total",
			Help: "Record store writes by operation and result",
		}, []string{"op", "result"}),
		snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "student_snapshots_total",
			Help: "Collection snapshots received from the record store",
		}),
		directorySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "student_directory_size",
			Help: "Records in the latest collection snapshot",
		}),
		viewDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "directory_view_duration_seconds",
			Help:    "Time spent deriving a directory view",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		}),
		liveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "directory_live_sessions",
			Help: "Open live directory sessions",
		}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_latency_seconds",
			Help:    "Latency for cache reads",
			Buckets: prometheus.DefBuckets,
		}),
		cacheWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_write_seconds",
			Help:    "Latency for cache writes",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses",
		}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		m.requestDuration, m.requestTotal, m.storeWrites, m.snapshots, m.directorySize,
		m.viewDuration, m.liveSessions, m.cacheLatency,
		m.cacheWrite, m.cacheHits, m.cacheMisses, goroutines,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
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
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// ObserveStoreWrite counts a create, update or remove and its outcome.
func (m *MetricsService) ObserveStoreWrite(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
		atomic.AddUint64(&m.writeErrorCount, 1)
	}
	m.storeWrites.WithLabelValues(op, result).Inc()
	atomic.AddUint64(&m.writeCount, 1)
}

// ObserveSnapshot records a delivered collection snapshot of size records.
func (m *MetricsService) ObserveSnapshot(size int) {
	if m == nil {
		return
	}
	m.snapshots.Inc()
	m.directorySize.Set(float64(size))
	atomic.AddUint64(&m.snapshotCount, 1)
	atomic.StoreInt64(&m.directoryLen, int64(size))
}

// ObserveView records how long deriving a view took.
func (m *MetricsService) ObserveView(duration time.Duration) {
	if m == nil {
		return
	}
	m.viewDuration.Observe(duration.Seconds())
}

// LiveSessionOpened increments the open session gauge.
func (m *MetricsService) LiveSessionOpened() {
	if m == nil {
		return
	}
	m.liveSessions.Inc()
	atomic.AddInt64(&m.liveCount, 1)
}

// LiveSessionClosed decrements the open session gauge.
func (m *MetricsService) LiveSessionClosed() {
	if m == nil {
		return
	}
	m.liveSessions.Dec()
	atomic.AddInt64(&m.liveCount, -1)
}

// RecordCacheOperation records a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
		return
	}
	m.cacheMisses.Inc()
	atomic.AddUint64(&m.cacheMissCount, 1)
}

// ObserveCacheWrite tracks the duration of cache writes.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// Snapshot aggregates the counters for the health endpoint.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{GeneratedAt: time.Now().UTC()}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}
	var ratio float64
	if hits+misses > 0 {
		ratio = float64(hits) / float64(hits+misses)
	}

	return MetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		StoreWrites:              atomic.LoadUint64(&m.writeCount),
		StoreWriteErrors:         atomic.LoadUint64(&m.writeErrorCount),
		SnapshotsReceived:        atomic.LoadUint64(&m.snapshotCount),
		DirectorySize:            atomic.LoadInt64(&m.directoryLen),
		LiveSessions:             atomic.LoadInt64(&m.liveCount),
		CacheHitRatio:            ratio,
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
