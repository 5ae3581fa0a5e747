package anthropic_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/abstractllm/abstractllm/pkg/config"
	"github.com/abstractllm/abstractllm/pkg/llm"
	"github.com/abstractllm/abstractllm/pkg/media"
	"github.com/abstractllm/abstractllm/pkg/providers/anthropic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *anthropic.Adapter) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a := anthropic.New(config.Params{
		config.BaseURL: srv.URL,
		config.APIKey:  "test-key",
		config.Model:   "claude-test",
	})

	return srv, a
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("failed to encode response: %v", err)
	}
}

func readBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}

	var req map[string]any
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("failed to unmarshal body: %v", err)
	}

	return req
}

func TestGenerate_SimpleText(t *testing.T) {
	_, adapter := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		req := readBody(t, r)

		assert.Equal(t, "claude-test", req["model"])
		assert.Equal(t, "You are helpful.", req["system"])
		assert.Equal(t, float64(4096), req["max_tokens"])

		msgs, ok := req["messages"].([]any)
		assert.True(t, ok)
		assert.Len(t, msgs, 1)

		writeJSON(t, w, map[string]any{
			"model": "claude-test",
			"content": []map[string]any{
				{"type": "text", "text": "Hello there!"},
			},
			"stop_reason": "end_turn",
			"usage": map[string]any{
				"input_tokens":  10,
				"output_tokens": 5,
			},
		})
	})

	resp, err := adapter.Generate(context.Background(), "Hi",
		llm.WithSystemPrompt("You are helpful."))
	require.NoError(t, err)

	assert.Equal(t, "Hello there!", resp.Text)
	assert.Equal(t, "end_turn", resp.FinishReason)

	last, ok := adapter.Usage.Last()
	require.True(t, ok)
	assert.Equal(t, 10, last.InputTokens)
	assert.Equal(t, 5, last.OutputTokens)
}

func TestGenerate_OverridesWin(t *testing.T) {
	_, adapter := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		req := readBody(t, r)

		assert.Equal(t, "claude-other", req["model"])
		assert.Equal(t, 0.2, req["temperature"])
		assert.Equal(t, float64(64), req["max_tokens"])

		writeJSON(t, w, map[string]any{
			"content":     []map[string]any{{"type": "text", "text": "OK"}},
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 3, "output_tokens": 1},
		})
	})

	_, err := adapter.Generate(context.Background(), "Hi",
		llm.WithModel("claude-other"),
		llm.WithTemperature(0.2),
		llm.WithMaxTokens(64))
	require.NoError(t, err)
}

func TestGenerate_ImageAttachment(t *testing.T) {
	img := media.Image{Filename: "cat.png", Data: []byte{1, 2, 3}, MIME: "image/png"}

	_, adapter := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		req := readBody(t, r)

		msgs := req["messages"].([]any)
		require.Len(t, msgs, 1)

		content := msgs[0].(map[string]any)["content"].([]any)
		require.Len(t, content, 2)

		block := content[0].(map[string]any)
		assert.Equal(t, "image", block["type"])

		source := block["source"].(map[string]any)
		assert.Equal(t, "base64", source["type"])
		assert.Equal(t, "image/png", source["media_type"])
		assert.Equal(t, img.Base64(), source["data"])

		last := content[1].(map[string]any)
		assert.Equal(t, "text", last["type"])
		assert.Equal(t, "What is in this image?", last["text"])

		writeJSON(t, w, map[string]any{
			"content":     []map[string]any{{"type": "text", "text": "A cat."}},
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 50, "output_tokens": 3},
		})
	})

	resp, err := adapter.Generate(context.Background(), "What is in this image?",
		llm.WithFiles(img))
	require.NoError(t, err)
	assert.Equal(t, "A cat.", resp.Text)
}

func TestGenerate_EmptyContent(t *testing.T) {
	_, adapter := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{
			"content":     []map[string]any{},
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 5, "output_tokens": 0},
		})
	})

	_, err := adapter.Generate(context.Background(), "Hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrNoResponse)
}

func TestGenerate_HTTPError(t *testing.T) {
	_, adapter := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	})

	_, err := adapter.Generate(context.Background(), "Hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestGenerateStream(t *testing.T) {
	const body = `event: message_start
data: {"type":"message_start","message":{"usage":{"input_tokens":12}}}

event: content_block_delta
data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"Hello"}}

event: content_block_delta
data: {"type":"content_block_delta","delta":{"type":"text_delta","text":" world"}}

event: message_delta
data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":4}}

event: message_stop
data: {"type":"message_stop"}

`

	_, adapter := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		req := readBody(t, r)
		assert.Equal(t, true, req["stream"])

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, body)
	})

	ch, err := adapter.GenerateStream(context.Background(), "Hi")
	require.NoError(t, err)

	var deltas []string
	var final llm.Chunk
	for c := range ch {
		require.NoError(t, c.Err)
		if c.Done {
			final = c
			continue
		}
		deltas = append(deltas, c.Delta)
	}

	assert.Equal(t, []string{"Hello", " world"}, deltas)
	assert.Equal(t, "Hello world", final.Text)

	total := adapter.Usage.Total()
	assert.Equal(t, 12, total.InputTokens)
	assert.Equal(t, 4, total.OutputTokens)
}

func TestGenerateStream_ErrorEvent(t *testing.T) {
	const body = `event: content_block_delta
data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"partial"}}

event: error
data: {"type":"error","error":{"message":"overloaded"}}

`

	_, adapter := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, body)
	})

	ch, err := adapter.GenerateStream(context.Background(), "Hi")
	require.NoError(t, err)

	var streamErr error
	for c := range ch {
		if c.Err != nil {
			streamErr = c.Err
		}
	}

	require.Error(t, streamErr)
	assert.Contains(t, streamErr.Error(), "overloaded")
}

func TestGenerateStream_CancelledConsumer(t *testing.T) {
	const body = `event: content_block_delta
data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"one"}}

event: content_block_delta
data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"two"}}

`

	// The handler keeps the connection open so the reader can only exit
	// through cancellation.
	_, adapter := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, body)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := adapter.GenerateStream(ctx, "Hi")
	require.NoError(t, err)

	// Take one chunk, then walk away without draining.
	<-ch
	cancel()

	require.Eventually(t, func() bool {
		return !strings.Contains(activeStacks(), "consumeStream")
	}, 2*time.Second, 10*time.Millisecond, "stream goroutine still running after cancellation")

	_, ok := <-ch
	assert.False(t, ok, "channel must be closed after the stream goroutine exits")
}

func activeStacks() string {
	buf := make([]byte, 1<<20)
	return string(buf[:runtime.Stack(buf, true)])
}

func TestGenerate_UnsupportedAttachment(t *testing.T) {
	_, adapter := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("request must not reach the server")
		writeJSON(t, w, map[string]any{})
	})

	_, err := adapter.Generate(context.Background(), "Hi",
		llm.WithFiles(fakeInput{}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, llm.ErrNotSupported))
}

type fakeInput struct{}

func (fakeInput) Kind() string     { return "audio" }
func (fakeInput) MIMEType() string { return "audio/mpeg" }

func TestCapabilities(t *testing.T) {
	a := anthropic.New(nil)

	caps := a.Capabilities()
	assert.True(t, caps.Streaming)
	assert.True(t, caps.SystemPrompt)
	assert.True(t, caps.Vision)
	assert.Equal(t, 4096, caps.MaxTokens)
}
