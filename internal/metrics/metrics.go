package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_relay_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_relay_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_relay_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Dispatch metrics
var (
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_relay_dispatch_total",
			Help: "Total number of dispatch invocations by strategy and outcome",
		},
		[]string{"strategy", "outcome"}, // outcome: "converted", "fallback", "passthrough", "error"
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_relay_dispatch_duration_seconds",
			Help:    "Dispatch duration in seconds, including transcoding",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"strategy"},
	)

	DispatchFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_relay_dispatch_video_fallbacks_total",
			Help: "Number of videos sent untouched after a failed conversion",
		},
	)

	DispatchMimeDisagreements = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_relay_dispatch_mime_disagreements_total",
			Help: "Dispatches where the extension class overrode the MIME class",
		},
	)
)

// Transcoder metrics
var (
	TranscoderJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_relay_transcoder_jobs_total",
			Help: "Total number of transcoding jobs",
		},
		[]string{"intent", "status"}, // status: "success", "error", "timeout", "missing_output"
	)

	TranscoderJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_relay_transcoder_job_duration_seconds",
			Help:    "Transcoding job duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"intent"},
	)

	TranscoderJobsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_relay_transcoder_jobs_in_progress",
			Help: "Number of transcoding jobs currently in progress",
		},
	)

	TranscoderJobsWaiting = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_relay_transcoder_jobs_waiting",
			Help: "Number of transcoding jobs waiting for a worker slot",
		},
	)

	ProbeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_relay_probe_total",
			Help: "Total number of duration probes",
		},
		[]string{"status"},
	)
)

// Scratch directory metrics
var (
	TempArtifactsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_relay_temp_artifacts_created_total",
			Help: "Total number of temporary artifacts materialized or reserved",
		},
	)

	TempArtifactsReleased = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_relay_temp_artifacts_released_total",
			Help: "Total number of temporary artifact releases",
		},
		[]string{"mode"}, // "immediate", "delayed", "sweep", "flush"
	)

	TempCleanupFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_relay_temp_cleanup_failures_total",
			Help: "Number of temporary artifact deletions that failed",
		},
	)

	TempPendingReleases = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_relay_temp_pending_releases",
			Help: "Number of artifacts scheduled for delayed deletion",
		},
	)

	ScratchFiles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_relay_scratch_files",
			Help: "Number of files currently in the scratch directory",
		},
	)

	ScratchBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_relay_scratch_size_bytes",
			Help: "Total size of the scratch directory in bytes",
		},
	)
)

// Transport metrics
var (
	TransportSendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_relay_transport_send_total",
			Help: "Total number of payloads handed to the messaging transport",
		},
		[]string{"kind", "status"},
	)

	TransportRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_relay_transport_retries_total",
			Help: "Number of transport send retries after transient errors",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_relay_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_relay_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	JournalDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_relay_journal_dropped_total",
			Help: "Dispatch journal entries dropped because the writer was saturated",
		},
	)
)

// Filesystem retry metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_relay_filesystem_retry_attempts_total",
			Help: "Filesystem operation retries after stale file handle errors",
		},
		[]string{"operation"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_relay_filesystem_retry_success_total",
			Help: "Filesystem operations that succeeded after at least one retry",
		},
		[]string{"operation"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_relay_filesystem_retry_failures_total",
			Help: "Filesystem operations that failed after exhausting retries",
		},
		[]string{"operation"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_relay_filesystem_stale_errors_total",
			Help: "Stale file handle errors observed",
		},
		[]string{"operation"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_relay_filesystem_retry_duration_seconds",
			Help:    "Duration of filesystem operations including retries",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"operation"},
	)
)

// Runtime metrics
var (
	GoMemAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_relay_go_mem_alloc_bytes",
			Help: "Current heap allocation in bytes",
		},
	)

	GoGoroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_relay_go_goroutines",
			Help: "Number of running goroutines",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_relay_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
