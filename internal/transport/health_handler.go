package transport

import (
	"net/http"

	"quizlive/internal/metrics"
)

// HealthHandler exposes the Metrics & Health collector over HTTP.
// Adapted from the teacher's HealthHandler, generalized from a fixed
// (Postgres, Redis) pair to the collector's arbitrary dependency set.
type HealthHandler struct {
	collector *metrics.Collector
}

func NewHealthHandler(collector *metrics.Collector) *HealthHandler {
	return &HealthHandler{collector: collector}
}

// Health returns the full dependency report. GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	report := h.collector.GetHealthStatus(r.Context())
	status := http.StatusOK
	if report.Status == metrics.StatusError {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// Readiness reports unready only when every dependency is down. GET /ready
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	report := h.collector.GetHealthStatus(r.Context())
	if report.Status == metrics.StatusError {
		writeJSON(w, http.StatusServiceUnavailable, report)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
}

// Liveness never checks dependencies: it only confirms the process is
// scheduling goroutines. GET /live
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"alive": true})
}
