package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/mobilecoder/internal/domain"
	"github.com/ashureev/mobilecoder/internal/identity"
	"github.com/ashureev/mobilecoder/internal/metrics"
	"github.com/ashureev/mobilecoder/internal/preview"
)

const maxMessageSize = 4096

// Navigator resolves a link path in a device's workspace.
type Navigator interface {
	Navigate(ctx context.Context, userID, linkPath string) (domain.FileNode, bool, error)
}

// LastSeenRecorder refreshes a device's activity timestamp.
type LastSeenRecorder interface {
	UpdateLastSeen(ctx context.Context, userID string, t time.Time) error
}

// Handler upgrades preview connections and serves their messages.
type Handler struct {
	hub           *Hub
	nav           Navigator
	seen          LastSeenRecorder
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a new preview channel handler. seen may be nil.
func NewHandler(hub *Hub, nav Navigator, seen LastSeenRecorder, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		hub:           hub,
		nav:           nav,
		seen:          seen,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// inbound accepts both "kind" and the iframe's "type" field.
type inbound struct {
	Kind string `json:"kind"`
	Type string `json:"type"`
	Path string `json:"path"`
}

func (m inbound) kind() string {
	if m.Kind != "" {
		return m.Kind
	}
	return m.Type
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.DeviceIDFromContext(r.Context())
	tabID := identity.TabIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	ws.SetReadLimit(maxMessageSize)
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	h.hub.Register(userID, tabID, ws)
	defer h.hub.Unregister(userID, tabID, ws)
	metrics.LiveConnectionOpened()
	defer metrics.LiveConnectionClosed()

	h.readLoop(r.Context(), ws, userID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, userID string) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else {
				slog.Debug("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(message, &msg); err != nil {
			h.reply(ctx, ws, Event{Kind: KindError, Error: "invalid message"})
			continue
		}

		switch msg.kind() {
		case "ping":
			h.reply(ctx, ws, Event{Kind: KindPong})
		case preview.NavigateKind:
			h.reply(ctx, ws, h.navigate(ctx, userID, msg))
		default:
			h.reply(ctx, ws, Event{Kind: KindError, Error: preview.ErrUnknownMessage.Error()})
			continue
		}

		if h.seen != nil {
			go func() {
				updateCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := h.seen.UpdateLastSeen(updateCtx, userID, time.Now()); err != nil {
					slog.Warn("Failed to update last seen", "error", err)
				}
			}()
		}
	}
}

func (h *Handler) navigate(ctx context.Context, userID string, msg inbound) Event {
	nav := preview.NavigateMessage{Kind: preview.NavigateKind, Path: msg.Path}
	if err := nav.Validate(); err != nil {
		return Event{Kind: KindError, Path: msg.Path, Error: err.Error()}
	}
	node, ok, err := h.nav.Navigate(ctx, userID, nav.Path)
	if err != nil {
		slog.Error("Preview navigation failed", "user_id", userID, "path", nav.Path, "error", err)
		return Event{Kind: KindError, Path: nav.Path, Error: "navigation failed"}
	}
	if !ok {
		return Event{Kind: KindUnresolved, Path: nav.Path}
	}
	return Event{Kind: KindSelected, ID: node.ID, Path: nav.Path}
}

func (h *Handler) reply(ctx context.Context, ws *websocket.Conn, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("Failed to encode preview reply", "error", err)
		return
	}
	if err := write(ctx, ws, data); err != nil {
		slog.Debug("Failed to send preview reply", "kind", ev.Kind, "error", err)
		return
	}
	metrics.RecordLiveEvent(ev.Kind)
}
