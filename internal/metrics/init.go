package metrics

// Label values pre-populated by InitializeMetrics. Kept here so dashboards
// and the packages that record them agree on the vocabulary.
var (
	strategies       = []string{"video", "audio", "image", "document"}
	dispatchOutcomes = []string{"converted", "fallback", "passthrough", "error"}
	intents          = []string{"optimize", "transport-profile-convert", "size-target-compress", "voice-note", "generic-clip", "video"}
	jobStatuses      = []string{"success", "error", "timeout", "missing_output"}
	payloadKinds     = []string{"audio-ptt", "audio-file", "video", "image", "document"}
	releaseModes     = []string{"immediate", "delayed", "sweep", "flush"}
	retryOps         = []string{"stat", "open", "read"}
	dbOps            = []string{"initialize_schema", "record_dispatch", "recent_dispatches", "prune_dispatches", "vacuum"}
)

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup.
func InitializeMetrics() {
	for _, s := range strategies {
		for _, o := range dispatchOutcomes {
			DispatchTotal.WithLabelValues(s, o)
		}
		DispatchDuration.WithLabelValues(s)
	}

	for _, i := range intents {
		for _, st := range jobStatuses {
			TranscoderJobsTotal.WithLabelValues(i, st)
		}
		TranscoderJobDuration.WithLabelValues(i)
	}

	ProbeTotal.WithLabelValues("success")
	ProbeTotal.WithLabelValues("error")

	for _, k := range payloadKinds {
		TransportSendTotal.WithLabelValues(k, "success")
		TransportSendTotal.WithLabelValues(k, "error")
	}

	for _, m := range releaseModes {
		TempArtifactsReleased.WithLabelValues(m)
	}

	for _, op := range retryOps {
		FilesystemRetryAttempts.WithLabelValues(op)
		FilesystemRetrySuccess.WithLabelValues(op)
		FilesystemRetryFailures.WithLabelValues(op)
		FilesystemStaleErrors.WithLabelValues(op)
		FilesystemRetryDuration.WithLabelValues(op)
	}

	for _, op := range dbOps {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}
}
