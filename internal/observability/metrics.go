package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpRequestsTotal     *prometheus.CounterVec
	httpLatencySeconds    *prometheus.HistogramVec
	httpErrorsTotal       *prometheus.CounterVec
	uploadRequestsTotal   *prometheus.CounterVec
	uploadRejectedTotal   *prometheus.CounterVec
	exportJobsTotal       *prometheus.CounterVec
	exportDurationSeconds prometheus.Histogram
)

// RegisterMetrics initialises the Prometheus collectors used by the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sga_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sga_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sga_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		uploadRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sga_uploads_total",
			Help: "Total number of accepted submission uploads.",
		}, []string{"result"})

		uploadRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sga_uploads_rejected_total",
			Help: "Total number of rejected submission uploads.",
		}, []string{"reason"})

		exportJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sga_export_jobs_total",
			Help: "Total number of bulk export jobs by outcome.",
		}, []string{"status"})

		exportDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sga_export_duration_seconds",
			Help:    "Wall time spent building bulk export archives.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			uploadRequestsTotal,
			uploadRejectedTotal,
			exportJobsTotal,
			exportDurationSeconds,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// UploadRequests exposes the counter for accepted uploads.
func UploadRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRequestsTotal
}

// UploadRejected exposes the counter for rejected uploads.
func UploadRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRejectedTotal
}

// ExportJobs exposes the counter for export job outcomes.
func ExportJobs() *prometheus.CounterVec {
	RegisterMetrics()
	return exportJobsTotal
}

// ExportDuration exposes the histogram of export build times.
func ExportDuration() prometheus.Histogram {
	RegisterMetrics()
	return exportDurationSeconds
}
