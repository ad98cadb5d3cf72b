package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ashureev/mobilecoder/internal/chat"
	"github.com/ashureev/mobilecoder/internal/domain"
	"github.com/ashureev/mobilecoder/internal/identity"
	"github.com/ashureev/mobilecoder/internal/metrics"
)

type chatRequest struct {
	Question string `json:"question"`
}

type chatResponse struct {
	Turns   []domain.ChatTurn `json:"turns"`
	Busy    bool              `json:"busy"`
	Persona domain.Persona    `json:"persona"`
}

// session loads the caller's chat session, writing an error response on failure.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*chat.Session, bool) {
	userID := identity.DeviceIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	sess, err := h.chats.Session(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to load chat session", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load chat")
		return nil, false
	}
	return sess, true
}

// GetChat handles GET /api/chat.
func (h *Handler) GetChat(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, chatResponse{
		Turns:   sess.Transcript(ws.Active().Name),
		Busy:    sess.Busy(),
		Persona: sess.Persona(),
	})
}

// ClearChat handles DELETE /api/chat.
func (h *Handler) ClearChat(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	turns, err := sess.Clear(r.Context(), ws.Active().Name)
	if err != nil {
		slog.Error("Failed to clear chat", "user_id", identity.DeviceIDFromContext(r.Context()), "error", err)
		Error(w, http.StatusInternalServerError, "failed to clear chat")
		return
	}
	JSON(w, http.StatusOK, chatResponse{Turns: turns, Persona: sess.Persona()})
}

// PostChat handles POST /api/chat and streams the reply as server-sent events:
// "message" for each fragment, then "done" or "error" with the final turn.
func (h *Handler) PostChat(w http.ResponseWriter, r *http.Request) {
	userID := identity.DeviceIDFromContext(r.Context())
	if !h.chats.Enabled() {
		Error(w, http.StatusServiceUnavailable, "assistant_disabled")
		return
	}
	if h.limiter != nil && !h.limiter.Allow(userID) {
		metrics.RecordRateLimitHit()
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req chatRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error": "streaming not supported"}`, http.StatusInternalServerError)
		return
	}

	// SSE headers go out with the first fragment. Earlier rejections are plain JSON.
	started := false
	start := func() {
		if started {
			return
		}
		started = true
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
	}

	writeFailed := false
	onUpdate := func(u chat.Update) {
		if writeFailed {
			return
		}
		start()
		if err := writeSSEJSON(w, "message", u); err != nil {
			slog.Warn("failed to write SSE message event", "error", err)
			writeFailed = true
			return
		}
		flusher.Flush()
	}

	nodes := ws.Nodes()
	turn, err := sess.Submit(r.Context(), chat.SubmitRequest{
		Question:   req.Question,
		Files:      nodes,
		ActiveName: ws.Active().Name,
		SessionID:  identity.TabIDFromContext(r.Context()),
		RequestID:  chiMiddleware.GetReqID(r.Context()),
	}, onUpdate)

	switch {
	case errors.Is(err, chat.ErrBusy):
		Error(w, http.StatusConflict, "busy")
		return
	case errors.Is(err, chat.ErrEmptyQuestion):
		Error(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, chat.ErrDisabled):
		Error(w, http.StatusServiceUnavailable, "assistant_disabled")
		return
	case err != nil && !errors.Is(err, chat.ErrAssistantError):
		if !started {
			slog.Error("Chat submit failed", "user_id", userID, "error", err)
			Error(w, http.StatusInternalServerError, "failed to save chat")
			return
		}
	}

	if writeFailed {
		return
	}
	start()
	event := "done"
	if err != nil {
		event = "error"
	}
	if writeErr := writeSSEJSON(w, event, turn); writeErr != nil {
		slog.Warn("failed to write SSE final event", "event", event, "error", writeErr)
		return
	}
	flusher.Flush()
}

// GetPersona handles GET /api/persona.
func (h *Handler) GetPersona(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, sess.Persona())
}

// PutPersona handles PUT /api/persona.
func (h *Handler) PutPersona(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var p domain.Persona
	if !h.decodeJSON(w, r, &p) {
		return
	}
	saved, err := sess.SetPersona(r.Context(), p)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidPersona) {
			Error(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("Failed to save persona", "user_id", identity.DeviceIDFromContext(r.Context()), "error", err)
		Error(w, http.StatusInternalServerError, "failed to save persona")
		return
	}
	JSON(w, http.StatusOK, saved)
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func writeSSEJSON(w io.Writer, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}
	return writeSSE(w, event, string(data))
}
