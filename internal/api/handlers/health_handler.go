package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const readinessTimeout = 5 * time.Second

// ReadinessCheck reports whether the service can answer queries. The fallback file index is the
// one dependency every backend configuration needs.
type ReadinessCheck func(ctx context.Context) error

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	ready ReadinessCheck
}

// NewHealthHandler creates a health handler. A nil ready check makes /ready behave like /health.
func NewHealthHandler(ready ReadinessCheck) *HealthHandler {
	return &HealthHandler{ready: ready}
}

// Check handles GET /health. Liveness only; nothing is probed.
func (h *HealthHandler) Check(w http.ResponseWriter, _ *http.Request) {
	writePlain(w, http.StatusOK, "OK")
}

// Ready handles GET /ready: 200 when the readiness check passes, 503 otherwise.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		if err := h.ready(ctx); err != nil {
			slog.WarnContext(r.Context(), "readiness check failed", "error", err)
			writePlain(w, http.StatusServiceUnavailable, "NOT READY")

			return
		}
	}

	writePlain(w, http.StatusOK, "OK")
}

func writePlain(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)

	if _, err := w.Write([]byte(body)); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}
