package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// overlay pipeline.
type Metrics struct {
	RowsIngested       *prometheus.CounterVec // labels: dataset={recipients,volunteers,schools}
	DatasetsClassified *prometheus.CounterVec // labels: kind={recipients,volunteers,schools,unknown}
	MalformedKeys      prometheus.Counter
	UnresolvedZips     prometheus.Counter
	UploadDuration     prometheus.Histogram
	HeatPointsRendered prometheus.Gauge

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeAPIDuration prometheus.Histogram
	GeocodeEnabled     prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		RowsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heatmap",
			Name:      "rows_ingested_total",
			Help:      "Total data rows accepted per dataset.",
		}, []string{"dataset"}),
		DatasetsClassified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heatmap",
			Name:      "datasets_classified_total",
			Help:      "Uploaded batches by detected dataset kind.",
		}, []string{"kind"}),
		MalformedKeys: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "heatmap",
			Name:      "malformed_keys_total",
			Help:      "Rows whose zip cell normalized to the empty sentinel.",
		}),
		UnresolvedZips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "heatmap",
			Name:      "unresolved_zips_total",
			Help:      "Valid zips with no centroid in the table.",
		}),
		UploadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "heatmap",
			Name:      "upload_duration_seconds",
			Help:      "Duration of a complete normalize-classify-aggregate cycle.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		}),
		HeatPointsRendered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "heatmap",
			Name:      "heat_points_rendered",
			Help:      "Heat points in the most recent recipients overlay.",
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heatmap",
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heatmap",
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by result.",
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "heatmap",
			Name:      "geocode_api_duration_seconds",
			Help:      "Geocoding API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "heatmap",
			Name:      "geocode_enabled",
			Help:      "1 when school geocoding is enabled, 0 otherwise.",
		}),
	}

	prometheus.MustRegister(
		m.RowsIngested,
		m.DatasetsClassified,
		m.MalformedKeys,
		m.UnresolvedZips,
		m.UploadDuration,
		m.HeatPointsRendered,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
	)

	return m
}

// NewMetricsForTesting creates Metrics with unregistered collectors to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		RowsIngested:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "heatmap", Name: "rows_ingested_total"}, []string{"dataset"}),
		DatasetsClassified: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "heatmap", Name: "datasets_classified_total"}, []string{"kind"}),
		MalformedKeys:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "heatmap", Name: "malformed_keys_total"}),
		UnresolvedZips:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: "heatmap", Name: "unresolved_zips_total"}),
		UploadDuration:     prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "heatmap", Name: "upload_duration_seconds"}),
		HeatPointsRendered: prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "heatmap", Name: "heat_points_rendered"}),
		GeocodeRequests:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "heatmap", Name: "geocode_requests_total"}, []string{"outcome"}),
		GeocodeCache:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "heatmap", Name: "geocode_cache_total"}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "heatmap", Name: "geocode_api_duration_seconds"}),
		GeocodeEnabled:     prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "heatmap", Name: "geocode_enabled"}),
	}
}
