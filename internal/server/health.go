package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Ensure implementation satisfies interface at compile time.
var _ HealthChecker = (*Health)(nil)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Health is a HealthChecker driven by the application. It is alive from
// creation and ready once SetReady(true) is called.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	checks map[string]string
}

// NewHealth creates a Health that is alive but not ready.
func NewHealth() *Health {
	return &Health{checks: make(map[string]string)}
}

// SetReady marks the application ready or not ready for traffic.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// SetCheck records the status of a named component.
func (h *Health) SetCheck(name, status string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = status
}

func (h *Health) Liveness() bool { return true }

func (h *Health) Readiness(ctx context.Context) bool {
	return ctx.Err() == nil && h.ready.Load()
}

func (h *Health) IsHealthy() bool { return h.ready.Load() }

func (h *Health) GetStatus() map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return maps.Clone(h.checks)
}

// LivenessHandler returns a handler for Kubernetes liveness probes.
// Liveness probes should only fail if the process needs to be restarted.
func LivenessHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "alive"
		statusCode := http.StatusOK

		if !checker.Liveness() {
			status = "not alive"
			statusCode = http.StatusServiceUnavailable
		}

		writeJSON(w, statusCode, HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}, logger)
	}
}

// ReadinessHandler returns a handler for Kubernetes readiness probes.
// Readiness probes indicate if the application can handle traffic.
func ReadinessHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ready"
		statusCode := http.StatusOK

		if !checker.Readiness(r.Context()) {
			status = "not ready"
			statusCode = http.StatusServiceUnavailable
		}

		writeJSON(w, statusCode, HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    checker.GetStatus(),
		}, logger)
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}
