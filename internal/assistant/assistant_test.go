package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Model    string `json:"model"`
	Stream   bool   `json:"stream"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func sseServer(t *testing.T, fragments []string, got *capturedRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if got != nil {
			_ = json.Unmarshal(body, got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for i, f := range fragments {
			chunk := map[string]any{
				"id":      "chunk",
				"object":  "chat.completion.chunk",
				"created": 1,
				"model":   "test",
				"choices": []map[string]any{{"index": 0, "delta": map[string]string{"content": f}}},
			}
			data, _ := json.Marshal(chunk)
			fmt.Fprintf(w, "data: %s\n\n", data)
			if i == 0 {
				// An empty keepalive chunk must not surface as a fragment.
				fmt.Fprint(w, "data: {\"id\":\"k\",\"object\":\"chat.completion.chunk\",\"choices\":[]}\n\n")
			}
			w.(http.Flusher).Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func TestStreamYieldsFragments(t *testing.T) {
	var got capturedRequest
	srv := sseServer(t, []string{"Ol", "á, ", "mundo"}, &got)
	defer srv.Close()

	c := NewOpenAIClient(Opts{APIKey: "k", BaseURL: srv.URL + "/v1", Model: "gemini-test"})

	var fragments []string
	for f, err := range c.Stream(context.Background(), Request{Prompt: "oi", SystemInstruction: "be nice"}) {
		require.NoError(t, err)
		fragments = append(fragments, f)
	}

	assert.Equal(t, []string{"Ol", "á, ", "mundo"}, fragments)
	assert.Equal(t, "gemini-test", got.Model)
	assert.True(t, got.Stream)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "be nice", got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "oi", got.Messages[1].Content)
}

func TestStreamStopsWhenConsumerBreaks(t *testing.T) {
	srv := sseServer(t, []string{"a", "b", "c"}, nil)
	defer srv.Close()

	c := NewOpenAIClient(Opts{APIKey: "k", BaseURL: srv.URL})
	count := 0
	for _, err := range c.Stream(context.Background(), Request{Prompt: "x"}) {
		require.NoError(t, err)
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestStreamRequestError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"boom","type":"server_error"}}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient(Opts{APIKey: "k", BaseURL: srv.URL})
	var errs []error
	for f, err := range c.Stream(context.Background(), Request{Prompt: "x"}) {
		assert.Empty(t, f)
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "creating chat completion stream")
}

func TestDefaults(t *testing.T) {
	c := NewOpenAIClient(Opts{APIKey: "k"})
	assert.Equal(t, DefaultModel, c.Model())
}

func TestPromptTokens(t *testing.T) {
	assert.Equal(t, 2, PromptTokens("hello world"))
	assert.Zero(t, PromptTokens(""))
}

func TestPromptTokensLargePromptUsesLength(t *testing.T) {
	// A 4 MiB image payload must not go through the tokenizer.
	big := "data:image/png;base64," + strings.Repeat("QUJD", 1<<20)
	start := time.Now()
	n := PromptTokens(big)
	assert.Equal(t, (len(big)+3)/4, n)
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	edge := strings.Repeat("a", maxEncodedBytes+1)
	assert.Equal(t, (maxEncodedBytes+4)/4, PromptTokens(edge))
}
