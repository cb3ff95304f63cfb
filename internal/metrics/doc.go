// Package metrics provides Prometheus instrumentation for the media relay.
//
// All metrics are registered with the default registry through promauto and
// are prefixed with "media_relay_".
//
// # Metric Categories
//
// ## HTTP Metrics
//   - HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight
//
// ## Dispatch Metrics
//   - DispatchTotal: invocations by strategy (video/audio/image/document) and outcome
//   - DispatchDuration: end-to-end dispatch time by strategy
//   - DispatchFallbacks: videos sent untouched after a failed conversion
//   - DispatchMimeDisagreements: extension class overrode the MIME class
//
// ## Transcoder Metrics
//   - TranscoderJobsTotal: jobs by intent and status
//   - TranscoderJobDuration: ffmpeg wall time by intent
//   - TranscoderJobsInProgress / TranscoderJobsWaiting: worker slot usage
//   - ProbeTotal: ffprobe duration probes by status
//
// ## Scratch Metrics
//   - TempArtifactsCreated, TempArtifactsReleased (by mode), TempCleanupFailures
//   - TempPendingReleases, ScratchFiles, ScratchBytes (updated by the Collector)
//
// ## Transport Metrics
//   - TransportSendTotal: payloads sent by kind and status
//   - TransportRetries: retries after transient transport errors
//
// ## Database and Filesystem Metrics
//   - DBQueryTotal, DBQueryDuration, JournalDropped
//   - FilesystemRetry*: stale file handle retries per operation
//
// # Usage
//
// Mount promhttp.Handler() on the metrics listener:
//
//	mux.Handle("/metrics", promhttp.Handler())
//
// A [Collector] periodically refreshes gauges that are derived from external
// state (scratch directory size, pending releases, runtime memory).
//
// # Prometheus Queries
//
// Video fallback rate:
//
//	rate(media_relay_dispatch_video_fallbacks_total[1h]) /
//	sum(rate(media_relay_dispatch_total{strategy="video"}[1h]))
//
// P95 transcode time by intent:
//
//	histogram_quantile(0.95, sum(rate(media_relay_transcoder_job_duration_seconds_bucket[5m])) by (le, intent))
package metrics
