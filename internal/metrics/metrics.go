package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketdash",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "marketdash",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketdash",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by cache and result.",
		},
		[]string{"cache", "result"},
	)
	upstreamQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketdash",
			Subsystem: "upstream",
			Name:      "queries_total",
			Help:      "Realtime database queries, after retries.",
		},
		[]string{"operation", "result"},
	)
	upstreamAttempts = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "marketdash",
			Subsystem: "upstream",
			Name:      "query_attempts",
			Help:      "Attempts needed per realtime database query.",
			Buckets:   []float64{1, 2, 3},
		},
		[]string{"operation"},
	)
	connects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketdash",
			Subsystem: "upstream",
			Name:      "connects_total",
			Help:      "WebSocket connect and handshake attempts.",
		},
		[]string{"result"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, cacheLookups, upstreamQueries, upstreamAttempts, connects)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func RecordCacheLookup(cache string, hit bool) {
	RegisterMetrics()
	cacheLookups.WithLabelValues(cache, hitLabel(hit)).Inc()
}

func RecordQuery(operation string, attempts int, err error) {
	RegisterMetrics()
	upstreamQueries.WithLabelValues(operation, resultLabel(err)).Inc()
	upstreamAttempts.WithLabelValues(operation).Observe(float64(attempts))
}

func RecordConnect(err error) {
	RegisterMetrics()
	connects.WithLabelValues(resultLabel(err)).Inc()
}

func hitLabel(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
