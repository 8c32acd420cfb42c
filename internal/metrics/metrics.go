// Package metrics provides Prometheus metrics for the log collector.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the log collector.
type Metrics struct {
	// File metrics
	FilesDownloaded *prometheus.CounterVec
	FilesSkipped    *prometheus.CounterVec
	FilesFailed     *prometheus.CounterVec
	FilesPurged     prometheus.Counter

	// Ledger metrics
	LocksAcquired  *prometheus.CounterVec
	LocksReclaimed *prometheus.CounterVec

	// Size metrics
	BytesDownloaded *prometheus.CounterVec
	BytesExtracted  *prometheus.CounterVec

	// Timing metrics
	DownloadDuration *prometheus.HistogramVec
	CycleDuration    prometheus.Histogram

	// Cycle metrics
	Cycles            *prometheus.CounterVec
	InFlightDownloads prometheus.Gauge

	// Error metrics
	ArchiveErrors  *prometheus.CounterVec
	MetadataErrors prometheus.Counter
	RetryAttempts  *prometheus.CounterVec
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool
	Address string // Address for metrics HTTP server (e.g., ":9090")
}

var defaultMetrics *Metrics

// Init registers the metrics with the default registry and makes them the
// package default. Call this once at startup.
func Init(namespace string) *Metrics {
	defaultMetrics = New(prometheus.DefaultRegisterer, namespace)
	return defaultMetrics
}

// New creates metrics registered with reg.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "saas_log_collector"
	}
	f := promauto.With(reg)

	return &Metrics{
		FilesDownloaded: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_downloaded_total",
				Help:      "Log files downloaded, extracted and marked succeeded",
			},
			[]string{"solution"},
		),
		FilesSkipped: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_skipped_total",
				Help:      "Log files skipped before download",
			},
			[]string{"solution", "reason"},
		),
		FilesFailed: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_failed_total",
				Help:      "Log files whose download or extraction failed",
			},
			[]string{"solution", "stage"},
		),
		FilesPurged: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_purged_total",
				Help:      "Local log files removed by retention",
			},
		),
		LocksAcquired: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "locks_acquired_total",
				Help:      "Lock markers written to the audit repository",
			},
			[]string{"solution"},
		),
		LocksReclaimed: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "locks_reclaimed_total",
				Help:      "Stale lock markers deleted",
			},
			[]string{"solution"},
		),
		BytesDownloaded: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_downloaded_total",
				Help:      "Compressed bytes downloaded",
			},
			[]string{"solution"},
		),
		BytesExtracted: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_extracted_total",
				Help:      "Decompressed bytes appended to local logs",
			},
			[]string{"solution"},
		),
		DownloadDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "download_duration_seconds",
				Help:      "Time to download and extract one log file",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
			},
			[]string{"solution"},
		),
		CycleDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cycle_duration_seconds",
				Help:      "Time to complete one synchronization cycle",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1h
			},
		),
		Cycles: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_total",
				Help:      "Synchronization cycles by outcome",
			},
			[]string{"outcome"},
		),
		InFlightDownloads: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "in_flight_downloads",
				Help:      "Downloads currently in progress",
			},
		),
		ArchiveErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "archive_errors_total",
				Help:      "Failed raw archive writes",
			},
			[]string{"solution"},
		),
		MetadataErrors: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "metadata_errors_total",
				Help:      "Failed catalog writes",
			},
		),
		RetryAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_attempts_total",
				Help:      "HTTP retry attempts",
			},
			[]string{"method"},
		),
	}
}

// Get returns the global metrics instance.
// Returns nil if Init has not been called.
func Get() *Metrics {
	return defaultMetrics
}

// StartServer starts an HTTP server for Prometheus metrics scraping.
// Blocks until the server exits.
func StartServer(address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return http.ListenAndServe(address, mux)
}

// IncFilesDownloaded records a completed file and its sizes.
func (m *Metrics) IncFilesDownloaded(solution string, compressed, extracted int64) {
	m.FilesDownloaded.WithLabelValues(solution).Inc()
	m.BytesDownloaded.WithLabelValues(solution).Add(float64(compressed))
	m.BytesExtracted.WithLabelValues(solution).Add(float64(extracted))
}

// IncFilesSkipped increments the skipped counter for reason.
func (m *Metrics) IncFilesSkipped(solution, reason string) {
	m.FilesSkipped.WithLabelValues(solution, reason).Inc()
}

// IncFilesFailed increments the failed counter for stage.
func (m *Metrics) IncFilesFailed(solution, stage string) {
	m.FilesFailed.WithLabelValues(solution, stage).Inc()
}

// AddFilesPurged adds n purged files.
func (m *Metrics) AddFilesPurged(n int) {
	m.FilesPurged.Add(float64(n))
}

// IncLocksAcquired increments the acquired locks counter.
func (m *Metrics) IncLocksAcquired(solution string) {
	m.LocksAcquired.WithLabelValues(solution).Inc()
}

// AddLocksReclaimed adds n reclaimed locks.
func (m *Metrics) AddLocksReclaimed(solution string, n int) {
	m.LocksReclaimed.WithLabelValues(solution).Add(float64(n))
}

// ObserveDownloadDuration records one file's download and extract time.
func (m *Metrics) ObserveDownloadDuration(solution string, seconds float64) {
	m.DownloadDuration.WithLabelValues(solution).Observe(seconds)
}

// ObserveCycle records a finished cycle.
func (m *Metrics) ObserveCycle(outcome string, seconds float64) {
	m.Cycles.WithLabelValues(outcome).Inc()
	m.CycleDuration.Observe(seconds)
}

// IncArchiveErrors increments the archive errors counter.
func (m *Metrics) IncArchiveErrors(solution string) {
	m.ArchiveErrors.WithLabelValues(solution).Inc()
}

// IncMetadataErrors increments the metadata errors counter.
func (m *Metrics) IncMetadataErrors() {
	m.MetadataErrors.Inc()
}

// IncRetryAttempts increments the retry attempts counter.
func (m *Metrics) IncRetryAttempts(method string) {
	m.RetryAttempts.WithLabelValues(method).Inc()
}
