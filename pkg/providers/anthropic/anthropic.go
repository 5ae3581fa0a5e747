// Package anthropic implements the provider contract for the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/abstractllm/abstractllm/pkg/backend"
	"github.com/abstractllm/abstractllm/pkg/capability"
	"github.com/abstractllm/abstractllm/pkg/config"
	"github.com/abstractllm/abstractllm/pkg/handlers"
	"github.com/abstractllm/abstractllm/pkg/llm"
	"github.com/abstractllm/abstractllm/pkg/media"
	"github.com/abstractllm/abstractllm/pkg/usage"
)

const (
	messagesPath = "/v1/messages"

	defaultBaseURL   = "https://api.anthropic.com"
	defaultModel     = "claude-3-5-haiku-20241022"
	defaultMaxTokens = 4096

	apiVersion = "2023-06-01"
)

var _ llm.Provider = (*Adapter)(nil)

// Adapter implements llm.Provider for the Anthropic Messages API.
type Adapter struct {
	backend.Backend
}

// New creates an Adapter. cfg is the instance configuration layered over the
// provider defaults; the api_key parameter is required to authenticate
// against the production API.
func New(cfg config.Params) *Adapter {
	mgr := config.NewManager(config.Params{
		config.Model:     defaultModel,
		config.MaxTokens: defaultMaxTokens,
	}, cfg)

	a := &Adapter{}
	a.Provider = "anthropic"
	a.Config = mgr
	a.BaseURL = mgr.GetString(config.BaseURL, defaultBaseURL)
	a.Auth = backend.Auth{
		Key:    mgr.GetString(config.APIKey, ""),
		Header: "x-api-key",
	}
	a.Headers = map[string]string{"anthropic-version": apiVersion}

	return a
}

// Capabilities reports what the Messages API supports.
func (a *Adapter) Capabilities() capability.Set {
	return capability.Set{
		Streaming:    true,
		SystemPrompt: true,
		Vision:       true,
		MaxTokens:    a.Config.GetInt(config.MaxTokens, defaultMaxTokens),
	}
}

// Generate sends the prompt to the Messages API and returns the complete
// reply.
func (a *Adapter) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (*llm.Response, error) {
	o := llm.Apply(opts)
	resolved := a.Config.Resolve(o.Overrides)

	req, err := a.buildRequest(prompt, o.Files, resolved, false)
	if err != nil {
		return nil, err
	}

	a.Handlers.Request(a.describe(prompt, o, resolved, false))

	var resp apiResponse
	if err := a.PostJSON(ctx, messagesPath, req, &resp); err != nil {
		err = fmt.Errorf("anthropic: %w", err)
		a.Handlers.Response(nil, err)
		return nil, err
	}

	result, err := a.parseResponse(resp, resolved)
	a.Handlers.Response(result, err)
	return result, err
}

// GenerateStream sends the prompt with streaming enabled and delivers the
// reply incrementally. The channel closes after the final chunk.
func (a *Adapter) GenerateStream(ctx context.Context, prompt string, opts ...llm.GenerateOption) (<-chan llm.Chunk, error) {
	o := llm.Apply(opts)
	resolved := a.Config.Resolve(o.Overrides)

	req, err := a.buildRequest(prompt, o.Files, resolved, true)
	if err != nil {
		return nil, err
	}

	a.Handlers.Request(a.describe(prompt, o, resolved, true))

	body, err := a.PostStream(ctx, messagesPath, req)
	if err != nil {
		err = fmt.Errorf("anthropic: %w", err)
		a.Handlers.Response(nil, err)
		return nil, err
	}

	ch := make(chan llm.Chunk)
	go a.consumeStream(ctx, body, resolved, ch)
	return ch, nil
}

func (a *Adapter) consumeStream(ctx context.Context, body io.ReadCloser, resolved config.Params, ch chan<- llm.Chunk) {
	defer close(ch)
	defer func() { _ = body.Close() }()

	sc := backend.NewSSEScanner(body)

	var (
		text         string
		finishReason string
		count        usage.TokenCount
	)

	// emit delivers a chunk unless ctx is cancelled first; a false return
	// means the consumer is gone and the stream must stop.
	emit := func(c llm.Chunk) bool {
		a.Handlers.Chunk(c)
		select {
		case ch <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}

	fail := func(err error) {
		err = fmt.Errorf("anthropic: %w", err)
		a.Handlers.Response(nil, err)
		emit(llm.Chunk{Text: text, Err: err})
	}

	for {
		ev, ok := sc.Next()
		if !ok {
			if err := sc.Err(); err != nil {
				fail(err)
				return
			}
			break
		}

		var payload streamEvent
		if err := json.Unmarshal([]byte(ev.Data), &payload); err != nil {
			fail(fmt.Errorf("decode stream event: %w", err))
			return
		}

		switch payload.Type {
		case "message_start":
			count.InputTokens = payload.Message.Usage.InputTokens
		case "content_block_delta":
			if payload.Delta.Text == "" {
				continue
			}
			text += payload.Delta.Text
			if !emit(llm.Chunk{Delta: payload.Delta.Text, Text: text}) {
				return
			}
		case "message_delta":
			if payload.Delta.StopReason != "" {
				finishReason = payload.Delta.StopReason
			}
			count.OutputTokens = payload.Usage.OutputTokens
		case "error":
			fail(fmt.Errorf("stream error: %s", payload.Error.Message))
			return
		}
	}

	a.Usage.Add(count)

	resp := &llm.Response{
		Text:         text,
		Model:        resolved.Model(),
		FinishReason: finishReason,
		Usage:        count,
	}
	a.Handlers.Response(resp, nil)
	emit(llm.Chunk{Text: text, Done: true})
}

func (a *Adapter) describe(prompt string, o llm.GenerateOptions, resolved config.Params, stream bool) handlers.Request {
	system, _ := resolved.String(config.SystemPrompt)
	return handlers.Request{
		Provider:     "anthropic",
		Model:        resolved.Model(),
		Prompt:       prompt,
		SystemPrompt: system,
		Stream:       stream,
		Params:       resolved,
		Files:        o.Files,
	}
}

// --- request types ---

type apiRequest struct {
	Model         string       `json:"model"`
	MaxTokens     int          `json:"max_tokens"`
	System        string       `json:"system,omitempty"`
	Messages      []apiMessage `json:"messages"`
	Temperature   *float64     `json:"temperature,omitempty"`
	TopP          *float64     `json:"top_p,omitempty"`
	StopSequences []string     `json:"stop_sequences,omitempty"`
	Stream        bool         `json:"stream,omitempty"`
}

type apiMessage struct {
	Role    string       `json:"role"`
	Content []apiContent `json:"content"`
}

type apiContent struct {
	Type   string          `json:"type"`
	Text   string          `json:"text,omitempty"`
	Source *apiImageSource `json:"source,omitempty"`
}

type apiImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// --- response types ---

type apiResponse struct {
	Model      string       `json:"model"`
	Content    []apiContent `json:"content"`
	StopReason string       `json:"stop_reason"`
	Usage      apiUsage     `json:"usage"`
}

type apiUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type streamEvent struct {
	Type    string `json:"type"`
	Message struct {
		Usage apiUsage `json:"usage"`
	} `json:"message"`
	Delta struct {
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage apiUsage `json:"usage"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// --- conversion helpers ---

func (a *Adapter) buildRequest(prompt string, files []media.Input, resolved config.Params, stream bool) (apiRequest, error) {
	req := apiRequest{
		Model:     resolved.Model(),
		MaxTokens: resolved.MaxTokensOr(defaultMaxTokens),
		Stream:    stream,
	}

	if system, ok := resolved.String(config.SystemPrompt); ok {
		req.System = system
	}
	if temp, ok := resolved.Float(config.Temperature); ok {
		req.Temperature = &temp
	}
	if topP, ok := resolved.Float(config.TopP); ok {
		req.TopP = &topP
	}
	if stops, ok := resolved.Strings(config.Stop); ok {
		req.StopSequences = stops
	}

	content, err := buildContent(prompt, files)
	if err != nil {
		return apiRequest{}, err
	}
	req.Messages = []apiMessage{{Role: "user", Content: content}}

	return req, nil
}

// buildContent orders attachments before the prompt text so attached context
// precedes the question.
func buildContent(prompt string, files []media.Input) ([]apiContent, error) {
	content := make([]apiContent, 0, len(files)+1)

	for _, f := range files {
		switch v := f.(type) {
		case media.Image:
			content = append(content, apiContent{
				Type: "image",
				Source: &apiImageSource{
					Type:      "base64",
					MediaType: v.MIMEType(),
					Data:      v.Base64(),
				},
			})
		case media.Text:
			content = append(content, apiContent{Type: "text", Text: v.Prompt()})
		default:
			return nil, fmt.Errorf("anthropic: %w: attachment kind %q", llm.ErrNotSupported, f.Kind())
		}
	}

	content = append(content, apiContent{Type: "text", Text: prompt})
	return content, nil
}

func (a *Adapter) parseResponse(resp apiResponse, resolved config.Params) (*llm.Response, error) {
	count := usage.TokenCount{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}
	a.Usage.Add(count)

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	if text == "" {
		return nil, fmt.Errorf("anthropic: %w", llm.ErrNoResponse)
	}

	model := resp.Model
	if model == "" {
		model = resolved.Model()
	}

	return &llm.Response{
		Text:         text,
		Model:        model,
		FinishReason: resp.StopReason,
		Usage:        count,
	}, nil
}
