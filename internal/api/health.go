package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const healthTimeout = 5 * time.Second

// HealthResponse reports the server and database status.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := HealthResponse{
		Status: "healthy",
		Checks: map[string]string{"api": "ok", "database": "ok"},
	}
	status := http.StatusOK
	if err := h.repo.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Checks["database"] = "unreachable"
		status = http.StatusServiceUnavailable
	}
	JSON(w, status, resp)
}

// RegisterHealth registers the unauthenticated health route.
func (h *Handler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}

// GetConfig handles GET /api/config.
func (h *Handler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]any{
		"ai_enabled":       h.chats.Enabled(),
		"max_request_body": h.maxBodySize,
	})
}
