package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors of one process. Each instance owns its
// registry so tests can build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	DatasetsLoaded   *prometheus.CounterVec
	LoadFailures     *prometheus.CounterVec
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	CacheEvictions   prometheus.Counter
	RowsDropped      *prometheus.CounterVec
	PipelineDuration *prometheus.HistogramVec
	RulesReloads     *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		DatasetsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_datasets_loaded_total",
			Help: "Workbooks parsed into datasets.",
		}, []string{"profile"}),
		LoadFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_load_failures_total",
			Help: "Workbooks rejected by the loader.",
		}, []string{"profile"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_dataset_cache_hits_total",
			Help: "Dataset cache hits.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_dataset_cache_misses_total",
			Help: "Dataset cache misses.",
		}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_dataset_cache_evictions_total",
			Help: "Datasets removed after their TTL elapsed.",
		}),
		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_rows_dropped_total",
			Help: "Rows removed by each preparation step.",
		}, []string{"profile", "step"}),
		PipelineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dashboard_pipeline_duration_seconds",
			Help:    "Duration of pipeline operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		RulesReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_rules_reloads_total",
			Help: "Rules file reload attempts.",
		}, []string{"result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dashboard_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.DatasetsLoaded,
		m.LoadFailures,
		m.CacheHits,
		m.CacheMisses,
		m.CacheEvictions,
		m.RowsDropped,
		m.PipelineDuration,
		m.RulesReloads,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
