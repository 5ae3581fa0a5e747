// Package ollama implements the provider contract for a local Ollama server.
//
// Ollama takes no API key and streams newline-delimited JSON rather than
// server-sent events.
package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/abstractllm/abstractllm/pkg/backend"
	"github.com/abstractllm/abstractllm/pkg/capability"
	"github.com/abstractllm/abstractllm/pkg/config"
	"github.com/abstractllm/abstractllm/pkg/handlers"
	"github.com/abstractllm/abstractllm/pkg/llm"
	"github.com/abstractllm/abstractllm/pkg/media"
	"github.com/abstractllm/abstractllm/pkg/usage"
)

const (
	generatePath = "/api/generate"

	defaultBaseURL = "http://localhost:11434"
	defaultModel   = "phi4-mini:latest"
)

var _ llm.Provider = (*Adapter)(nil)

// Adapter implements llm.Provider for the Ollama generate API.
type Adapter struct {
	backend.Backend
}

// New creates an Adapter. With an empty cfg it targets a default local
// server at http://localhost:11434.
func New(cfg config.Params) *Adapter {
	mgr := config.NewManager(config.Params{
		config.Model: defaultModel,
	}, cfg)

	a := &Adapter{}
	a.Provider = "ollama"
	a.Config = mgr
	a.BaseURL = strings.TrimSuffix(mgr.GetString(config.BaseURL, defaultBaseURL), "/")

	return a
}

// Capabilities reports what the local generate API supports. Vision depends
// on the loaded model; the adapter accepts images and lets the server decide.
func (a *Adapter) Capabilities() capability.Set {
	return capability.Set{
		Streaming:    true,
		SystemPrompt: true,
		Vision:       true,
		MaxTokens:    a.Config.GetInt(config.MaxTokens, 0),
	}
}

// Generate runs a single non-streaming completion.
func (a *Adapter) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (*llm.Response, error) {
	o := llm.Apply(opts)
	resolved := a.Config.Resolve(o.Overrides)

	req, err := a.buildRequest(prompt, o.Files, resolved, false)
	if err != nil {
		return nil, err
	}

	a.Handlers.Request(a.describe(prompt, o, resolved, false))

	var resp apiResponse
	if err := a.PostJSON(ctx, generatePath, req, &resp); err != nil {
		err = fmt.Errorf("ollama: %w", err)
		a.Handlers.Response(nil, err)
		return nil, err
	}

	result, err := a.parseResponse(resp, resolved)
	a.Handlers.Response(result, err)
	return result, err
}

// GenerateStream runs a streaming completion. Each line of the response body
// is one JSON object carrying a response fragment.
func (a *Adapter) GenerateStream(ctx context.Context, prompt string, opts ...llm.GenerateOption) (<-chan llm.Chunk, error) {
	o := llm.Apply(opts)
	resolved := a.Config.Resolve(o.Overrides)

	req, err := a.buildRequest(prompt, o.Files, resolved, true)
	if err != nil {
		return nil, err
	}

	a.Handlers.Request(a.describe(prompt, o, resolved, true))

	body, err := a.PostStream(ctx, generatePath, req)
	if err != nil {
		err = fmt.Errorf("ollama: %w", err)
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

	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

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

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		var part apiResponse
		if err := json.Unmarshal([]byte(line), &part); err != nil {
			err = fmt.Errorf("ollama: decode stream line: %w", err)
			a.Handlers.Response(nil, err)
			emit(llm.Chunk{Text: text, Err: err})
			return
		}

		if part.Error != "" {
			err := fmt.Errorf("ollama: %s", part.Error)
			a.Handlers.Response(nil, err)
			emit(llm.Chunk{Text: text, Err: err})
			return
		}

		if part.Response != "" {
			text += part.Response
			if !emit(llm.Chunk{Delta: part.Response, Text: text}) {
				return
			}
		}

		if part.Done {
			finishReason = part.DoneReason
			count.InputTokens = part.PromptEvalCount
			count.OutputTokens = part.EvalCount
			break
		}
	}

	if err := sc.Err(); err != nil {
		err = fmt.Errorf("ollama: read stream: %w", err)
		a.Handlers.Response(nil, err)
		emit(llm.Chunk{Text: text, Err: err})
		return
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
		Provider:     "ollama",
		Model:        resolved.Model(),
		Prompt:       prompt,
		SystemPrompt: system,
		Stream:       stream,
		Params:       resolved,
		Files:        o.Files,
	}
}

type apiRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Images  []string       `json:"images,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type apiResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error"`
}

func (a *Adapter) buildRequest(prompt string, files []media.Input, resolved config.Params, stream bool) (apiRequest, error) {
	req := apiRequest{
		Model:  resolved.Model(),
		Stream: stream,
	}

	if system, ok := resolved.String(config.SystemPrompt); ok {
		req.System = system
	}

	// Text attachments inline ahead of the prompt; images ride in the
	// base64 images array.
	var sb strings.Builder
	for _, f := range files {
		switch v := f.(type) {
		case media.Image:
			req.Images = append(req.Images, v.Base64())
		case media.Text:
			sb.WriteString(v.Prompt())
			sb.WriteString("\n\n")
		default:
			return apiRequest{}, fmt.Errorf("ollama: %w: attachment kind %q", llm.ErrNotSupported, f.Kind())
		}
	}
	sb.WriteString(prompt)
	req.Prompt = sb.String()

	opts := map[string]any{}
	if temp, ok := resolved.Float(config.Temperature); ok {
		opts["temperature"] = temp
	}
	if topP, ok := resolved.Float(config.TopP); ok {
		opts["top_p"] = topP
	}
	if maxTokens, ok := resolved.Int(config.MaxTokens); ok {
		opts["num_predict"] = maxTokens
	}
	if seed, ok := resolved.Int(config.Seed); ok {
		opts["seed"] = seed
	}
	if stops, ok := resolved.Strings(config.Stop); ok {
		opts["stop"] = stops
	}
	if len(opts) > 0 {
		req.Options = opts
	}

	return req, nil
}

func (a *Adapter) parseResponse(resp apiResponse, resolved config.Params) (*llm.Response, error) {
	if resp.Error != "" {
		return nil, fmt.Errorf("ollama: %s", resp.Error)
	}

	count := usage.TokenCount{
		InputTokens:  resp.PromptEvalCount,
		OutputTokens: resp.EvalCount,
	}
	a.Usage.Add(count)

	if resp.Response == "" {
		return nil, fmt.Errorf("ollama: %w", llm.ErrNoResponse)
	}

	model := resp.Model
	if model == "" {
		model = resolved.Model()
	}

	return &llm.Response{
		Text:         resp.Response,
		Model:        model,
		FinishReason: resp.DoneReason,
		Usage:        count,
	}, nil
}
