package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are registered on the default Prometheus registry through 'promauto'.
// The host application decides whether and where to expose them.

var (
	// 1. Backend Requests Total (Counter)
	// Counts requests sent to the obz backend, labeled by endpoint name and status.
	// Status is the HTTP code, or "error" when no response was received.
	ClientRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "obz_client_requests_total",
			Help: "Total number of requests sent to the obz backend",
		},
		[]string{"endpoint", "status"},
	)

	// 2. Backend Request Duration (Histogram)
	// Image uploads dominate the upper buckets.
	ClientRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "obz_client_request_duration_seconds",
			Help:    "Duration of requests to the obz backend in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint"},
	)

	// 3. Projector Operation Duration (Histogram)
	// Measures fit/transform time per reducer slot ("pca" or "umap").
	ProjectorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "obz_projector_duration_seconds",
			Help:    "Duration of embedding projector fit and transform calls in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"reducer", "operation"},
	)

	// 4. Reference Samples (Gauge)
	// Number of rows in the most recent reference batch.
	ReferenceSamples = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "obz_projector_reference_samples",
			Help: "Number of samples in the last fitted reference batch",
		},
	)
)
