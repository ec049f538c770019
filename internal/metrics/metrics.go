// Package metrics registers the Prometheus instruments for the service.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Draft session tracker metrics
	SessionsActive      prometheus.Gauge
	SessionsOpenedTotal prometheus.Counter
	SessionsReapedTotal prometheus.Counter
	FilesTracked        prometheus.Gauge
	WSMessagesTotal     *prometheus.CounterVec

	// Cleanup executor metrics
	CleanupRunsTotal     prometheus.Counter
	CleanupDeletesTotal  prometheus.Counter
	CleanupFailuresTotal prometheus.Counter

	// Storage metrics
	UploadsTotal       prometheus.Counter
	UploadBytesTotal   prometheus.Counter
	StorageErrorsTotal prometheus.Counter
}

var (
	instance *Metrics
	once     sync.Once
)

// Initialize creates and registers all Prometheus metrics
func Initialize() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_duration_seconds",
					Help:    "HTTP request latency in seconds",
					Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
				},
				[]string{"method", "path", "status"},
			),
			SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "draftwatch_sessions_active",
				Help: "Number of draft sessions currently registered",
			}),
			SessionsOpenedTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "draftwatch_sessions_opened_total",
				Help: "Total draft sessions registered since start",
			}),
			SessionsReapedTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "draftwatch_sessions_reaped_total",
				Help: "Total sessions removed by the stale session reaper",
			}),
			FilesTracked: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "draftwatch_files_tracked",
				Help: "Number of draft files currently tracked across all sessions",
			}),
			WSMessagesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "draftwatch_ws_messages_total",
					Help: "WebSocket messages processed, by type",
				},
				[]string{"type"},
			),
			CleanupRunsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "draftwatch_cleanup_runs_total",
				Help: "Cleanup executor invocations",
			}),
			CleanupDeletesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "draftwatch_cleanup_deletes_total",
				Help: "Draft files successfully deleted by the cleanup executor",
			}),
			CleanupFailuresTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "draftwatch_cleanup_failures_total",
				Help: "Draft file delete attempts that failed",
			}),
			UploadsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "attachments_uploads_total",
				Help: "Draft attachment uploads accepted",
			}),
			UploadBytesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "attachments_upload_bytes_total",
				Help: "Bytes of draft attachments uploaded",
			}),
			StorageErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "storage_errors_total",
				Help: "Object storage operations that returned an error",
			}),
		}
	})
	return instance
}

// Get returns the registered metrics, initializing on first use
func Get() *Metrics {
	return Initialize()
}
