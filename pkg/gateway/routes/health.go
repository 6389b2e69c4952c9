package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// DependencyCheck pings a backing service and returns an error when it is
// unreachable.
type DependencyCheck func(ctx context.Context) error

type HealthHandler struct {
	// Critical dependencies fail readiness when down.
	Critical map[string]DependencyCheck
	// Optional dependencies only degrade the reported status.
	Optional map[string]DependencyCheck
}

func RegisterHealthRoutes(router *mux.Router, h *HealthHandler) {
	if h == nil {
		panic("health handler must not be nil")
	}

	router.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/health/live", h.handleLive).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", h.handleReady).Methods(http.MethodGet)
}

func (h *HealthHandler) handleLive(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"alive"}`))
}

func (h *HealthHandler) handleReady(w http.ResponseWriter, r *http.Request) {
	status, _, code := h.check(r.Context())
	if status == "unhealthy" {
		http.Error(w, "not ready", code)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

func (h *HealthHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, deps, code := h.check(r.Context())
	writeJSON(w, code, map[string]interface{}{
		"status":       status,
		"dependencies": deps,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) check(parent context.Context) (string, map[string]string, int) {
	ctx, cancel := context.WithTimeout(parent, 3*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	deps := make(map[string]string, len(h.Critical)+len(h.Optional))

	for name, check := range h.Critical {
		if err := check(ctx); err != nil {
			deps[name] = "down: " + err.Error()
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		} else {
			deps[name] = "up"
		}
	}
	for name, check := range h.Optional {
		if err := check(ctx); err != nil {
			deps[name] = "down: " + err.Error()
			if status == "healthy" {
				status = "degraded"
			}
		} else {
			deps[name] = "up"
		}
	}

	return status, deps, code
}
