// Package api provides HTTP handlers for the MobileCoder API.
//
//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/mobilecoder/internal/chat"
	"github.com/ashureev/mobilecoder/internal/project"
	"github.com/ashureev/mobilecoder/internal/store"
)

// DefaultMaxRequestBodySize is the default cap on request bodies. Images travel base64-encoded.
const DefaultMaxRequestBodySize = 8 << 20

// Handler serves the workspace API for the device identified on each request.
type Handler struct {
	repo        store.Repository
	projects    *project.Registry
	chats       *chat.Manager
	limiter     *chat.RateLimiter
	maxBodySize int64
}

// Options configures a Handler.
type Options struct {
	Repo        store.Repository
	Projects    *project.Registry
	Chats       *chat.Manager
	Limiter     *chat.RateLimiter
	MaxBodySize int64
}

// NewHandler creates a new Handler.
func NewHandler(opts Options) *Handler {
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = DefaultMaxRequestBodySize
	}
	return &Handler{
		repo:        opts.Repo,
		projects:    opts.Projects,
		chats:       opts.Chats,
		limiter:     opts.Limiter,
		maxBodySize: opts.MaxBodySize,
	}
}

// RegisterRoutes registers the workspace routes. Callers apply identity and gate middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/config", h.GetConfig)

		r.Route("/files", func(r chi.Router) {
			r.Get("/", h.ListFiles)
			r.Post("/", h.CreateFile)
			r.Get("/{id}", h.GetFile)
			r.Put("/{id}", h.UpdateFile)
			r.Delete("/{id}", h.DeleteFile)
			r.Post("/{id}/toggle", h.ToggleFolder)
			r.Post("/{id}/select", h.SelectFile)
		})
		r.Post("/navigate", h.Navigate)
		r.Get("/preview", h.Preview)

		r.Get("/chat", h.GetChat)
		r.Post("/chat", h.PostChat)
		r.Delete("/chat", h.ClearChat)
		r.Get("/persona", h.GetPersona)
		r.Put("/persona", h.PutPersona)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a size-capped JSON body into dst. It writes the error
// response itself and reports whether decoding succeeded.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
