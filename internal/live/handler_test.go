package live

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/mobilecoder/internal/domain"
	"github.com/ashureev/mobilecoder/internal/identity"
)

type fakeNavigator struct {
	nodes map[string]domain.FileNode
}

func (f fakeNavigator) Navigate(_ context.Context, _ string, linkPath string) (domain.FileNode, bool, error) {
	n, ok := f.nodes[strings.TrimPrefix(linkPath, "/")]
	return n, ok, nil
}

func dialPreview(t *testing.T, hub *Hub) (*websocket.Conn, context.Context) {
	t.Helper()
	nav := fakeNavigator{nodes: map[string]domain.FileNode{
		"about.html": {ID: "n-about", Name: "about.html"},
	}}
	h := NewHandler(hub, nav, nil, "*", true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeHTTP(w, r.WithContext(identity.WithDevice(r.Context(), "dev-1", "tab-1")))
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn, ctx
}

func roundTrip(t *testing.T, ctx context.Context, conn *websocket.Conn, msg any) Event {
	t.Helper()
	require.NoError(t, wsjson.Write(ctx, conn, msg))
	var ev Event
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	return ev
}

func TestHandlerPingPong(t *testing.T) {
	conn, ctx := dialPreview(t, NewHub())
	ev := roundTrip(t, ctx, conn, map[string]string{"kind": "ping"})
	assert.Equal(t, KindPong, ev.Kind)
}

func TestHandlerNavigate(t *testing.T) {
	conn, ctx := dialPreview(t, NewHub())

	ev := roundTrip(t, ctx, conn, map[string]string{"kind": "PREVIEW_NAVIGATE", "path": "/about.html"})
	assert.Equal(t, Event{Kind: KindSelected, ID: "n-about", Path: "/about.html"}, ev)

	ev = roundTrip(t, ctx, conn, map[string]string{"type": "PREVIEW_NAVIGATE", "path": "missing.html"})
	assert.Equal(t, KindUnresolved, ev.Kind)
	assert.Equal(t, "missing.html", ev.Path)

	ev = roundTrip(t, ctx, conn, map[string]string{"kind": "PREVIEW_NAVIGATE", "path": "https://example.com"})
	assert.Equal(t, KindError, ev.Kind)

	ev = roundTrip(t, ctx, conn, map[string]string{"kind": "resize"})
	assert.Equal(t, KindError, ev.Kind)
}

func TestHandlerReceivesBroadcast(t *testing.T) {
	hub := NewHub()
	conn, ctx := dialPreview(t, hub)

	// A ping round trip guarantees the server side has registered.
	roundTrip(t, ctx, conn, map[string]string{"kind": "ping"})
	require.Equal(t, 1, hub.Count("dev-1"))

	hub.Broadcast(ctx, "dev-1", Event{Kind: KindReload})
	var ev Event
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	assert.Equal(t, KindReload, ev.Kind)
}
