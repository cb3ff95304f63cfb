// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// All configuration is loaded from environment variables via [LoadConfig].
// A .env file in the working directory is read first; variables already set
// in the environment take precedence. Supported variables:
//
//   - PORT: HTTP API port (default: 8080)
//   - METRICS_PORT: Prometheus metrics server port (default: 9090)
//   - METRICS_ENABLED: Enable or disable the metrics server (default: true)
//   - SCRATCH_DIR: Directory for temporary artifacts (default: $TMPDIR/media-relay)
//   - DATABASE_DIR: Directory for the dispatch journal (default: /database)
//   - FFMPEG_PATH, FFPROBE_PATH: Engine executables (default: resolved from PATH)
//   - TRANSCODE_TIMEOUT: Per-job timeout as Go duration (default: 5m)
//   - TRANSCODE_WORKERS: Concurrent transcode jobs (default: derived from CPUs)
//   - VIDEO_RELEASE_DELAY: How long converted video stays on disk (default: 60s)
//   - SCRATCH_MAX_AGE: Age after which orphaned artifacts are swept (default: 1h)
//   - SCRATCH_SWEEP_SCHEDULE: Cron expression for the sweeper (default: @every 10m)
//   - JOURNAL_RETENTION: Age after which journal entries are pruned (default: 720h)
//   - MAX_UPLOAD_MB: Upload size limit (default: 50)
//   - TELEGRAM_BOT_TOKEN: Enables the Telegram transport when set
//   - LOG_LEVEL: debug, info, warn, error (default: info)
//   - LOG_HEALTH_CHECKS: Log health check requests (default: true)
//   - MEMORY_LIMIT, MEMORY_RATIO, GOMEMLIMIT: Heap sizing, see package memory
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
package startup
