package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler returns the Prometheus exposition handler. It is mounted on
// the metrics listener, not the API router.
func (h *Handlers) MetricsHandler() http.Handler {
	return promhttp.Handler()
}
