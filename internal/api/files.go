package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/mobilecoder/internal/domain"
	"github.com/ashureev/mobilecoder/internal/identity"
	"github.com/ashureev/mobilecoder/internal/preview"
	"github.com/ashureev/mobilecoder/internal/project"
)

type filesResponse struct {
	Nodes    []domain.FileNode `json:"nodes"`
	ActiveID string            `json:"activeId"`
}

type fileResponse struct {
	Node     domain.FileNode   `json:"node"`
	Path     string            `json:"path"`
	Children []domain.FileNode `json:"children,omitempty"`
}

type createFileRequest struct {
	Kind     domain.NodeKind `json:"kind"`
	Name     string          `json:"name"`
	ParentID string          `json:"parentId"`
	Content  string          `json:"content"`
}

type updateFileRequest struct {
	Content string `json:"content"`
}

// workspace loads the caller's project store, writing an error response on failure.
func (h *Handler) workspace(w http.ResponseWriter, r *http.Request) (*project.Store, bool) {
	userID := identity.DeviceIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	ws, err := h.projects.Get(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to load workspace", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load workspace")
		return nil, false
	}
	return ws, true
}

func writeFiles(w http.ResponseWriter, status int, ws *project.Store) {
	nodes, activeID := ws.Snapshot()
	JSON(w, status, filesResponse{Nodes: nodes, ActiveID: activeID})
}

// storeError maps project store errors to HTTP responses.
func storeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, project.ErrNameCollision):
		Error(w, http.StatusConflict, "name_collision")
	case errors.Is(err, project.ErrNodeNotFound), errors.Is(err, project.ErrParentNotFound):
		Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, project.ErrInvalidName),
		errors.Is(err, project.ErrInvalidKind),
		errors.Is(err, project.ErrNotAFolder),
		errors.Is(err, project.ErrIsFolder),
		errors.Is(err, project.ErrEmptyImage):
		Error(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("Workspace update failed", "user_id", identity.DeviceIDFromContext(r.Context()), "error", err)
		Error(w, http.StatusInternalServerError, "failed to update workspace")
	}
}

// ListFiles handles GET /api/files.
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	writeFiles(w, http.StatusOK, ws)
}

// GetFile handles GET /api/files/{id}.
func (h *Handler) GetFile(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	node, found := ws.Get(id)
	if !found {
		storeError(w, r, project.ErrNodeNotFound)
		return
	}
	path, err := ws.Path(id)
	if err != nil {
		storeError(w, r, err)
		return
	}
	resp := fileResponse{Node: node, Path: path}
	if node.Kind == domain.KindFolder {
		resp.Children = ws.Children(id)
	}
	JSON(w, http.StatusOK, resp)
}

// CreateFile handles POST /api/files.
func (h *Handler) CreateFile(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	var req createFileRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if req.Kind == "" {
		req.Kind = domain.KindFile
	}
	if _, err := ws.Create(r.Context(), req.Kind, req.Name, req.ParentID, req.Content); err != nil {
		storeError(w, r, err)
		return
	}
	writeFiles(w, http.StatusCreated, ws)
}

// UpdateFile handles PUT /api/files/{id}.
func (h *Handler) UpdateFile(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	var req updateFileRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if err := ws.Update(r.Context(), chi.URLParam(r, "id"), req.Content); err != nil {
		storeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteFile handles DELETE /api/files/{id}.
func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	if err := ws.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		storeError(w, r, err)
		return
	}
	writeFiles(w, http.StatusOK, ws)
}

// ToggleFolder handles POST /api/files/{id}/toggle.
func (h *Handler) ToggleFolder(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	if err := ws.ToggleFolder(r.Context(), chi.URLParam(r, "id")); err != nil {
		storeError(w, r, err)
		return
	}
	writeFiles(w, http.StatusOK, ws)
}

// SelectFile handles POST /api/files/{id}/select.
func (h *Handler) SelectFile(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	if err := ws.Select(r.Context(), chi.URLParam(r, "id")); err != nil {
		storeError(w, r, err)
		return
	}
	writeFiles(w, http.StatusOK, ws)
}

type navigateResponse struct {
	Resolved bool   `json:"resolved"`
	ID       string `json:"id,omitempty"`
	Path     string `json:"path"`
}

// Navigate handles POST /api/navigate, the host side of a link click in the preview.
func (h *Handler) Navigate(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	var msg preview.NavigateMessage
	if !h.decodeJSON(w, r, &msg) {
		return
	}
	if err := msg.Validate(); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	node, resolved, err := ws.Navigate(r.Context(), msg.Path)
	if err != nil {
		storeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, navigateResponse{Resolved: resolved, ID: node.ID, Path: msg.Path})
}
