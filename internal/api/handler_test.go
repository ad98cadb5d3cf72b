//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"iter"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/mobilecoder/internal/assistant"
	"github.com/ashureev/mobilecoder/internal/chat"
	"github.com/ashureev/mobilecoder/internal/domain"
	"github.com/ashureev/mobilecoder/internal/identity"
	"github.com/ashureev/mobilecoder/internal/project"
	"github.com/ashureev/mobilecoder/internal/store"
)

const testDevice = "dev_0123456789abcdef0123456789abcdef"

type scriptedStreamer struct {
	fragments []string
	err       error
}

func (s *scriptedStreamer) Stream(_ context.Context, _ assistant.Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, f := range s.fragments {
			if !yield(f, nil) {
				return
			}
		}
		if s.err != nil {
			yield("", s.err)
		}
	}
}

type testEnv struct {
	repo   *store.SQLiteStore
	router chi.Router
}

func newTestEnv(t *testing.T, streamer assistant.Streamer, limiter *chat.RateLimiter) *testEnv {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	now := time.Now().UTC()
	require.NoError(t, repo.UpsertUser(context.Background(), &domain.User{
		UserID: testDevice, LastSeenAt: now, CreatedAt: now, UpdatedAt: now,
	}))

	h := NewHandler(Options{
		Repo:        repo,
		Projects:    project.NewRegistry(repo),
		Chats:       chat.NewManager(repo, streamer, nil),
		Limiter:     limiter,
		MaxBodySize: 1024,
	})
	r := chi.NewRouter()
	h.RegisterHealth(r)
	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(identity.WithDevice(req.Context(), testDevice, identity.DefaultTabID)))
			})
		})
		h.RegisterRoutes(r)
	})
	return &testEnv{repo: repo, router: r}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeFiles(t *testing.T, w *httptest.ResponseRecorder) filesResponse {
	t.Helper()
	var resp filesResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func findNode(nodes []domain.FileNode, name string) (domain.FileNode, bool) {
	for _, n := range nodes {
		if n.Name == name {
			return n, true
		}
	}
	return domain.FileNode{}, false
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestListFilesReturnsStarterProject(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(t, http.MethodGet, "/api/files", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeFiles(t, w)
	require.Len(t, resp.Nodes, 3)
	assert.Equal(t, "index.html", resp.Nodes[0].Name)
	assert.Equal(t, resp.Nodes[0].ID, resp.ActiveID)
}

func TestCreateFileErrors(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(t, http.MethodPost, "/api/files", createFileRequest{Kind: domain.KindFile, Name: "style.css"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, "/api/files", createFileRequest{Kind: domain.KindFile, Name: "a/b.js"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/files", createFileRequest{Kind: domain.KindFile, Name: "x.js", ParentID: "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/files", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/files", createFileRequest{Name: "big.txt", Content: strings.Repeat("x", 2048)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestFolderLifecycle(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(t, http.MethodPost, "/api/files", createFileRequest{Kind: domain.KindFolder, Name: "pages"})
	require.Equal(t, http.StatusCreated, w.Code)
	folder, ok := findNode(decodeFiles(t, w).Nodes, "pages")
	require.True(t, ok)

	w = env.do(t, http.MethodPost, "/api/files", createFileRequest{Kind: domain.KindFile, Name: "about.html", ParentID: folder.ID})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decodeFiles(t, w)
	about, ok := findNode(created.Nodes, "about.html")
	require.True(t, ok)
	assert.Equal(t, about.ID, created.ActiveID)

	w = env.do(t, http.MethodGet, "/api/files/"+folder.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detail fileResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&detail))
	assert.Equal(t, "pages", detail.Path)
	require.Len(t, detail.Children, 1)
	assert.Equal(t, "about.html", detail.Children[0].Name)

	w = env.do(t, http.MethodPut, "/api/files/"+folder.ID, updateFileRequest{Content: "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/files/"+folder.ID+"/toggle", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodDelete, "/api/files/"+folder.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	after := decodeFiles(t, w)
	assert.Len(t, after.Nodes, 3)
	_, ok = findNode(after.Nodes, "about.html")
	assert.False(t, ok)

	w = env.do(t, http.MethodDelete, "/api/files/"+folder.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateAndSelect(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	nodes := decodeFiles(t, env.do(t, http.MethodGet, "/api/files", nil)).Nodes
	css, _ := findNode(nodes, "style.css")

	w := env.do(t, http.MethodPut, "/api/files/"+css.ID, updateFileRequest{Content: "body{}"})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodPost, "/api/files/"+css.ID+"/select", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeFiles(t, w)
	assert.Equal(t, css.ID, resp.ActiveID)
	got, _ := findNode(resp.Nodes, "style.css")
	assert.Equal(t, "body{}", got.Content)
}

func TestNavigate(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(t, http.MethodPost, "/api/navigate", map[string]string{"type": "PREVIEW_NAVIGATE", "path": "/script.js?v=1"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp navigateResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Resolved)
	assert.NotEmpty(t, resp.ID)

	w = env.do(t, http.MethodPost, "/api/navigate", map[string]string{"type": "PREVIEW_NAVIGATE", "path": "nope.html"})
	require.Equal(t, http.StatusOK, w.Code)
	resp = navigateResponse{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.False(t, resp.Resolved)

	w = env.do(t, http.MethodPost, "/api/navigate", map[string]string{"type": "PREVIEW_NAVIGATE", "path": "https://example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/navigate", map[string]string{"type": "OTHER", "path": "a.html"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPreview(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(t, http.MethodGet, "/api/preview", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, PreviewCSP, w.Header().Get("Content-Security-Policy"))
	body := w.Body.String()
	assert.Contains(t, body, "<style>")
	assert.Contains(t, body, "PREVIEW_NAVIGATE")
	assert.NotContains(t, body, `href="/style.css"`)

	w = env.do(t, http.MethodGet, "/api/preview?format=json", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp previewResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.False(t, resp.Placeholder)
	assert.Equal(t, "index.html", resp.EntryName)
	assert.True(t, strings.HasPrefix(resp.DataURL, "data:text/html"))
}

func TestPostChatStreamsReply(t *testing.T) {
	env := newTestEnv(t, &scriptedStreamer{fragments: []string{"Olá", ", mundo"}}, nil)

	w := env.do(t, http.MethodPost, "/api/chat", chatRequest{Question: "oi"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.Equal(t, 2, strings.Count(body, "event: message\n"))
	assert.Contains(t, body, "event: done\n")
	assert.Contains(t, body, `"text":"Olá, mundo"`)

	w = env.do(t, http.MethodGet, "/api/chat", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp chatResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Turns, 2)
	assert.Equal(t, domain.RoleUser, resp.Turns[0].Role)
	assert.Equal(t, "Olá, mundo", resp.Turns[1].Text)
	assert.False(t, resp.Busy)
}

func TestPostChatAssistantFailure(t *testing.T) {
	env := newTestEnv(t, &scriptedStreamer{err: errors.New("upstream down")}, nil)

	w := env.do(t, http.MethodPost, "/api/chat", chatRequest{Question: "oi"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "event: error\n")
	assert.Contains(t, w.Body.String(), `"isError":true`)
}

func TestPostChatRejections(t *testing.T) {
	disabled := newTestEnv(t, nil, nil)
	w := disabled.do(t, http.MethodPost, "/api/chat", chatRequest{Question: "oi"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	limiter := chat.NewRateLimiter(1, time.Minute)
	t.Cleanup(limiter.Close)
	env := newTestEnv(t, &scriptedStreamer{fragments: []string{"ok"}}, limiter)

	w = env.do(t, http.MethodPost, "/api/chat", chatRequest{Question: "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/chat", chatRequest{Question: "again"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestClearChat(t *testing.T) {
	env := newTestEnv(t, &scriptedStreamer{fragments: []string{"ok"}}, nil)
	env.do(t, http.MethodPost, "/api/chat", chatRequest{Question: "oi"})

	w := env.do(t, http.MethodDelete, "/api/chat", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp chatResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Turns, 1)
	assert.True(t, resp.Turns[0].IsWelcome())
}

func TestPersona(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(t, http.MethodGet, "/api/persona", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var p domain.Persona
	require.NoError(t, json.NewDecoder(w.Body).Decode(&p))
	assert.Equal(t, "Hana", p.Name)

	w = env.do(t, http.MethodPut, "/api/persona", domain.Persona{Name: "Ana", SystemInstruction: "Seja breve."})
	require.Equal(t, http.StatusOK, w.Code)
	p = domain.Persona{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&p))
	assert.Equal(t, domain.DefaultAvatarURL, p.AvatarURL)

	w = env.do(t, http.MethodPut, "/api/persona", domain.Persona{Name: "Ana"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfigAndHealth(t *testing.T) {
	env := newTestEnv(t, &scriptedStreamer{}, nil)

	w := env.do(t, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cfg map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&cfg))
	assert.Equal(t, true, cfg["ai_enabled"])

	w = env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, env.repo.Close())
	w = env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var health HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&health))
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "unreachable", health.Checks["database"])
}
