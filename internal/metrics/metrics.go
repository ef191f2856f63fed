package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "connector",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "connector",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20},
	}, []string{"method", "path"})

	SearchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "connector",
		Name:      "searches_total",
		Help:      "Total search orchestrations by query source and outcome.",
	}, []string{"source", "outcome"})

	ProviderRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "connector",
		Name:      "provider_requests_total",
		Help:      "Total upstream provider requests by provider name and result status.",
	}, []string{"provider", "status"})

	ProviderRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "connector",
		Name:      "provider_request_duration_seconds",
		Help:      "Upstream provider request duration in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"provider"})

	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "connector",
		Name:      "cache_hits_total",
		Help:      "Total number of search cache hits.",
	})

	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "connector",
		Name:      "cache_misses_total",
		Help:      "Total number of search cache misses.",
	})

	ConfirmationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "connector",
		Name:      "confirmations_total",
		Help:      "Total confirmation attempts by outcome.",
	}, []string{"outcome"})

	DownloadsPushedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "connector",
		Name:      "downloads_pushed_total",
		Help:      "Total download pushes to the download client by status.",
	}, []string{"status"})

	SweepRemovedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "connector",
		Name:      "sweep_removed_total",
		Help:      "Total documents removed by maintenance sweeps by collection.",
	}, []string{"collection"})

	PendingOpenGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "connector",
		Name:      "pending_open",
		Help:      "Number of pending confirmations currently open.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		SearchesTotal,
		ProviderRequestsTotal,
		ProviderRequestDuration,
		CacheHitsTotal,
		CacheMissesTotal,
		ConfirmationsTotal,
		DownloadsPushedTotal,
		SweepRemovedTotal,
		PendingOpenGauge,
	)
}
