package abstractllm_test

import (
	"context"
	"testing"

	"github.com/abstractllm/abstractllm"
	"github.com/abstractllm/abstractllm/pkg/capability"
	"github.com/abstractllm/abstractllm/pkg/config"
	"github.com/abstractllm/abstractllm/pkg/handlers"
	"github.com/abstractllm/abstractllm/pkg/llm"
	"github.com/abstractllm/abstractllm/pkg/providers/anthropic"
	"github.com/abstractllm/abstractllm/pkg/providers/ollama"
	"github.com/abstractllm/abstractllm/pkg/providers/openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_UnknownProvider(t *testing.T) {
	_, err := abstractllm.New(context.Background(), "nope", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
	assert.Contains(t, err.Error(), "anthropic")
}

func TestNew_BuiltinProviders(t *testing.T) {
	cfg := config.Params{config.APIKey: "test-key"}

	p, err := abstractllm.New(context.Background(), "openai", cfg)
	require.NoError(t, err)
	assert.IsType(t, &openai.Adapter{}, p)

	p, err = abstractllm.New(context.Background(), "anthropic", cfg)
	require.NoError(t, err)
	assert.IsType(t, &anthropic.Adapter{}, p)

	p, err = abstractllm.New(context.Background(), "ollama", nil)
	require.NoError(t, err)
	assert.IsType(t, &ollama.Adapter{}, p)
}

func TestNew_EnvAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-key")

	p, err := abstractllm.New(context.Background(), "anthropic", nil)
	require.NoError(t, err)

	a := p.(*anthropic.Adapter)
	assert.Equal(t, "env-key", a.Auth.Key)
}

func TestNew_ExplicitKeyBeatsEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-key")

	p, err := abstractllm.New(context.Background(), "anthropic", config.Params{
		config.APIKey: "explicit-key",
	})
	require.NoError(t, err)

	a := p.(*anthropic.Adapter)
	assert.Equal(t, "explicit-key", a.Auth.Key)
}

func TestRegisterProvider(t *testing.T) {
	abstractllm.RegisterProvider("fake", func(_ context.Context, cfg config.Params, _ *handlers.Chain) (llm.Provider, error) {
		return fakeProvider{model: cfg.Model()}, nil
	})

	p, err := abstractllm.New(context.Background(), "fake", config.Params{
		config.Model: "fake-1",
	})
	require.NoError(t, err)

	f := p.(fakeProvider)
	assert.Equal(t, "fake-1", f.model)

	assert.Contains(t, abstractllm.Providers(), "fake")
}

func TestNew_HandlersAttached(t *testing.T) {
	rec := &countingHandler{}

	p, err := abstractllm.New(context.Background(), "ollama", nil,
		abstractllm.WithHandlers(rec))
	require.NoError(t, err)

	a := p.(*ollama.Adapter)
	a.Handlers.Request(handlers.Request{Provider: "ollama"})
	assert.Equal(t, 1, rec.requests)
}

type countingHandler struct {
	requests int
}

func (h *countingHandler) HandleRequest(handlers.Request)      { h.requests++ }
func (h *countingHandler) HandleChunk(llm.Chunk)               {}
func (h *countingHandler) HandleResponse(*llm.Response, error) {}

type fakeProvider struct {
	model string
}

func (f fakeProvider) Generate(context.Context, string, ...llm.GenerateOption) (*llm.Response, error) {
	return &llm.Response{Text: "ok", Model: f.model}, nil
}

func (f fakeProvider) GenerateStream(context.Context, string, ...llm.GenerateOption) (<-chan llm.Chunk, error) {
	ch := make(chan llm.Chunk, 1)
	ch <- llm.Chunk{Text: "ok", Done: true}
	close(ch)
	return ch, nil
}

func (f fakeProvider) Capabilities() capability.Set {
	return capability.Set{}
}
