package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// HealthChecker defines an interface for checking service health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// LLMHealthChecker reports the cached availability of the annotation
// model, without forcing a blocking probe on every readiness check.
type LLMHealthChecker interface {
	IsHealthy() bool
}

// DrainChecker reports whether the server has begun graceful
// shutdown.
type DrainChecker interface {
	Draining() bool
}

// HealthHandler manages health check endpoints.
type HealthHandler struct {
	db     HealthChecker
	cache  HealthChecker
	llm    LLMHealthChecker
	server DrainChecker
}

// NewHealthHandler creates a new HealthHandler.
// Pass nil for db, cache, or llm if they are not yet initialized.
func NewHealthHandler(db, cache HealthChecker, llm LLMHealthChecker) *HealthHandler {
	return &HealthHandler{
		db:    db,
		cache: cache,
		llm:   llm,
	}
}

// SetDrainChecker wires the server's shutdown state in after
// construction, since the *server.Server isn't available until after
// the handler is built and routed.
func (h *HealthHandler) SetDrainChecker(s DrainChecker) {
	h.server = s
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthz is a liveness probe endpoint.
// It returns 200 if the server is running.
// No dependency checks - this is for Kubernetes liveness probes.
//
// GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status: "ok",
	}
	writeJSON(w, http.StatusOK, response)
}

// Readyz is a readiness probe endpoint.
// MappingStore (Postgres) and HotCache (Redis) are load-bearing: if
// either is down, the redirect and create paths can't function, so
// the pod is pulled from the load balancer. The LLM annotation
// backend is best-effort by design (§4.10's health gate already
// degrades Analyze to a neutral Annotation when it's unreachable), so
// its status is reported but never flips the overall verdict.
//
// GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	healthy := true

	if h.server != nil && h.server.Draining() {
		checks["server"] = "draining"
		healthy = false
	}

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			checks["postgres"] = "error: " + err.Error()
			healthy = false
		} else {
			checks["postgres"] = "ok"
		}
	} else {
		checks["postgres"] = "not configured"
	}

	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			checks["redis"] = "error: " + err.Error()
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	} else {
		checks["redis"] = "not configured"
	}

	if h.llm != nil {
		if h.llm.IsHealthy() {
			checks["llm"] = "ok"
		} else {
			checks["llm"] = "degraded"
		}
	} else {
		checks["llm"] = "not configured"
	}

	status := "ok"
	statusCode := http.StatusOK
	if !healthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status: status,
		Checks: checks,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}
