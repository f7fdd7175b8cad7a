package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus series for analytics queries on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Queries       *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	CacheHits     *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	queries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analytics_queries_total",
			Help:      "Total number of analytics queries by outcome",
		},
		[]string{"operation", "status"},
	)

	queryDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analytics_query_duration_seconds",
			Help:      "Analytics query duration in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	cacheHits := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analytics_cache_hits_total",
			Help:      "Total number of analytics cache hits",
		},
		[]string{"operation"},
	)

	cacheMisses := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analytics_cache_misses_total",
			Help:      "Total number of analytics cache misses",
		},
		[]string{"operation"},
	)

	registry.MustRegister(
		queries,
		queryDuration,
		cacheHits,
		cacheMisses,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		registry:      registry,
		Queries:       queries,
		QueryDuration: queryDuration,
		CacheHits:     cacheHits,
		CacheMisses:   cacheMisses,
	}
}

// Registry exposes the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observe(operation, status string, elapsed time.Duration) {
	m.Queries.WithLabelValues(operation, status).Inc()
	m.QueryDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}
