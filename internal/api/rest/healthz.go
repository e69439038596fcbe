package rest

import (
	"net/http"
	"time"

	"github.com/kubilitics/kubeluma/internal/k8s"
)

// ClusterHealth reports the state of the cluster connection. *k8s.Client implements it.
type ClusterHealth interface {
	HealthStatus() (isHealthy bool, lastSuccess time.Time, lastErr error, circuitState k8s.CircuitBreakerState)
}

// HealthzHandler handles health check endpoints
type HealthzHandler struct {
	cluster ClusterHealth
}

// NewHealthzHandler creates a new healthz handler
func NewHealthzHandler(cluster ClusterHealth) *HealthzHandler {
	return &HealthzHandler{cluster: cluster}
}

// Live handles GET /healthz/live - liveness check (process is alive)
func (h *HealthzHandler) Live(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /healthz/ready. The process is not ready while the gateway circuit is open.
func (h *HealthzHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.cluster == nil {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	healthy, lastSuccess, lastErr, state := h.cluster.HealthStatus()
	body := map[string]interface{}{
		"status":  "ok",
		"circuit": state.String(),
	}
	if !lastSuccess.IsZero() {
		body["last_success"] = lastSuccess.UTC().Format(time.RFC3339)
	}
	if lastErr != nil {
		body["last_error"] = lastErr.Error()
	}
	if state == k8s.StateOpen {
		body["status"] = "unhealthy"
		body["reason"] = "cluster_unavailable"
		respondJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	if !healthy {
		body["status"] = "degraded"
	}
	respondJSON(w, http.StatusOK, body)
}
