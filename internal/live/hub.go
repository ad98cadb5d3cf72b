// Package live pushes workspace changes to open previews over WebSocket and
// receives navigation requests from them.
package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/mobilecoder/internal/metrics"
)

// Event kinds sent to clients.
const (
	KindReload     = "reload"
	KindSelected   = "selected"
	KindUnresolved = "unresolved"
	KindPong       = "pong"
	KindError      = "error"
)

const writeTimeout = 5 * time.Second

// Event is a server-to-client message.
type Event struct {
	Kind  string `json:"kind"`
	ID    string `json:"id,omitempty"`
	Path  string `json:"path,omitempty"`
	Error string `json:"error,omitempty"`
}

// Conn is the subset of *websocket.Conn the hub writes to.
type Conn interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Hub tracks open preview connections per device and tab.
type Hub struct {
	mu     sync.RWMutex
	active map[string]map[string]Conn
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		active: make(map[string]map[string]Conn),
	}
}

// Register adds a connection for a device tab, closing any connection it replaces.
func (h *Hub) Register(userID, tabID string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.active[userID]; !exists {
		h.active[userID] = make(map[string]Conn)
	}
	if existing, exists := h.active[userID][tabID]; exists && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "session replaced")
	}
	h.active[userID][tabID] = conn
	slog.Info("Preview channel registered", "user_id", userID, "session_id", tabID)
}

// Unregister removes conn if it is still the tab's current connection.
func (h *Hub) Unregister(userID, tabID string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if tabs, ok := h.active[userID]; ok {
		if current, exists := tabs[tabID]; exists && current == conn {
			delete(tabs, tabID)
			if len(tabs) == 0 {
				delete(h.active, userID)
			}
			slog.Info("Preview channel unregistered", "user_id", userID, "session_id", tabID)
		}
	}
}

// Count returns the number of open connections for a device.
func (h *Hub) Count(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.active[userID])
}

// Broadcast sends ev to every connection of a device. Failed writes are logged
// and the connection is left for its read loop to clean up.
func (h *Hub) Broadcast(ctx context.Context, userID string, ev Event) {
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.active[userID]))
	for _, c := range h.active[userID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	if len(conns) == 0 {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("Failed to encode preview event", "kind", ev.Kind, "error", err)
		return
	}
	for _, c := range conns {
		if err := write(ctx, c, data); err != nil {
			slog.Debug("Preview event write failed", "user_id", userID, "kind", ev.Kind, "error", err)
			continue
		}
		metrics.RecordLiveEvent(ev.Kind)
	}
}

// CloseUser terminates every connection of a device.
func (h *Hub) CloseUser(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	tabs, ok := h.active[userID]
	if !ok {
		return
	}
	for tabID, conn := range tabs {
		_ = conn.Close(websocket.StatusNormalClosure, "workspace closed")
		slog.Info("Preview channel closed", "user_id", userID, "session_id", tabID)
	}
	delete(h.active, userID)
}

func write(ctx context.Context, c Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.Write(ctx, websocket.MessageText, data)
}
