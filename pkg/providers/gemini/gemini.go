// Package gemini implements the provider contract for the Google Gemini API
// through the official generative-ai-go SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/abstractllm/abstractllm/pkg/capability"
	"github.com/abstractllm/abstractllm/pkg/config"
	"github.com/abstractllm/abstractllm/pkg/handlers"
	"github.com/abstractllm/abstractllm/pkg/llm"
	"github.com/abstractllm/abstractllm/pkg/media"
	"github.com/abstractllm/abstractllm/pkg/usage"
)

const (
	defaultModel     = "gemini-2.0-flash"
	defaultMaxTokens = 8192
)

var _ llm.Provider = (*Adapter)(nil)

// Adapter implements llm.Provider for the Gemini API.
type Adapter struct {
	Config   *config.Manager
	Handlers *handlers.Chain
	Usage    usage.Tracker

	api *genai.Client
}

// New creates an Adapter. The SDK client authenticates at construction time,
// so the api_key parameter is required here rather than at the first call.
func New(ctx context.Context, cfg config.Params) (*Adapter, error) {
	mgr := config.NewManager(config.Params{
		config.Model:     defaultModel,
		config.MaxTokens: defaultMaxTokens,
	}, cfg)

	apiKey := mgr.GetString(config.APIKey, "")
	if apiKey == "" {
		return nil, errors.New("gemini: api_key is required")
	}

	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if endpoint := mgr.GetString(config.BaseURL, ""); endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	return &Adapter{Config: mgr, api: client}, nil
}

// Close releases the underlying SDK client.
func (a *Adapter) Close() error {
	if a.api == nil {
		return nil
	}
	return a.api.Close()
}

// Capabilities reports what the Gemini API supports.
func (a *Adapter) Capabilities() capability.Set {
	return capability.Set{
		Streaming:    true,
		SystemPrompt: true,
		Vision:       true,
		JSONMode:     true,
		MaxTokens:    a.Config.GetInt(config.MaxTokens, defaultMaxTokens),
	}
}

// Generate sends the prompt and returns the complete reply.
func (a *Adapter) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (*llm.Response, error) {
	o := llm.Apply(opts)
	resolved := a.Config.Resolve(o.Overrides)

	model := a.model(resolved)
	parts, err := buildParts(prompt, o.Files)
	if err != nil {
		return nil, err
	}

	a.Handlers.Request(a.describe(prompt, o, resolved, false))

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		err = fmt.Errorf("gemini: %w", err)
		a.Handlers.Response(nil, err)
		return nil, err
	}

	result, err := a.parseResponse(resp, resolved)
	a.Handlers.Response(result, err)
	return result, err
}

// GenerateStream sends the prompt and delivers the reply incrementally
// through the SDK's response iterator.
func (a *Adapter) GenerateStream(ctx context.Context, prompt string, opts ...llm.GenerateOption) (<-chan llm.Chunk, error) {
	o := llm.Apply(opts)
	resolved := a.Config.Resolve(o.Overrides)

	model := a.model(resolved)
	parts, err := buildParts(prompt, o.Files)
	if err != nil {
		return nil, err
	}

	a.Handlers.Request(a.describe(prompt, o, resolved, true))

	iter := model.GenerateContentStream(ctx, parts...)

	ch := make(chan llm.Chunk)
	go a.consumeStream(ctx, iter, resolved, ch)
	return ch, nil
}

func (a *Adapter) consumeStream(ctx context.Context, iter *genai.GenerateContentResponseIterator, resolved config.Params, ch chan<- llm.Chunk) {
	defer close(ch)

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

	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			err = fmt.Errorf("gemini: %w", err)
			a.Handlers.Response(nil, err)
			emit(llm.Chunk{Text: text, Err: err})
			return
		}

		if resp.UsageMetadata != nil {
			count.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
			count.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		}
		if len(resp.Candidates) == 0 {
			continue
		}

		cand := resp.Candidates[0]
		if cand.FinishReason != genai.FinishReasonUnspecified {
			finishReason = cand.FinishReason.String()
		}

		delta := candidateText(cand)
		if delta == "" {
			continue
		}

		text += delta
		if !emit(llm.Chunk{Delta: delta, Text: text}) {
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

// model builds a per-call GenerativeModel carrying the resolved parameters.
func (a *Adapter) model(resolved config.Params) *genai.GenerativeModel {
	m := a.api.GenerativeModel(resolved.Model())

	m.SetMaxOutputTokens(int32(resolved.MaxTokensOr(defaultMaxTokens)))
	if temp, ok := resolved.Float(config.Temperature); ok {
		m.SetTemperature(float32(temp))
	}
	if topP, ok := resolved.Float(config.TopP); ok {
		m.SetTopP(float32(topP))
	}
	if stops, ok := resolved.Strings(config.Stop); ok {
		m.StopSequences = stops
	}
	if system, ok := resolved.String(config.SystemPrompt); ok {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	return m
}

func (a *Adapter) describe(prompt string, o llm.GenerateOptions, resolved config.Params, stream bool) handlers.Request {
	system, _ := resolved.String(config.SystemPrompt)
	return handlers.Request{
		Provider:     "gemini",
		Model:        resolved.Model(),
		Prompt:       prompt,
		SystemPrompt: system,
		Stream:       stream,
		Params:       resolved,
		Files:        o.Files,
	}
}

func buildParts(prompt string, files []media.Input) ([]genai.Part, error) {
	parts := make([]genai.Part, 0, len(files)+1)

	for _, f := range files {
		switch v := f.(type) {
		case media.Image:
			parts = append(parts, genai.Blob{MIMEType: v.MIMEType(), Data: v.Data})
		case media.Text:
			parts = append(parts, genai.Text(v.Prompt()))
		default:
			return nil, fmt.Errorf("gemini: %w: attachment kind %q", llm.ErrNotSupported, f.Kind())
		}
	}

	parts = append(parts, genai.Text(prompt))
	return parts, nil
}

func candidateText(cand *genai.Candidate) string {
	if cand.Content == nil {
		return ""
	}

	var text string
	for _, p := range cand.Content.Parts {
		if t, ok := p.(genai.Text); ok {
			text += string(t)
		}
	}
	return text
}

func (a *Adapter) parseResponse(resp *genai.GenerateContentResponse, resolved config.Params) (*llm.Response, error) {
	var count usage.TokenCount
	if resp.UsageMetadata != nil {
		count.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		count.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	a.Usage.Add(count)

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return nil, fmt.Errorf("gemini: prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini: %w", llm.ErrNoResponse)
	}

	cand := resp.Candidates[0]

	text := candidateText(cand)
	if text == "" {
		if cand.FinishReason == genai.FinishReasonSafety {
			return nil, fmt.Errorf("gemini: response blocked by safety settings")
		}
		return nil, fmt.Errorf("gemini: %w", llm.ErrNoResponse)
	}

	return &llm.Response{
		Text:         text,
		Model:        resolved.Model(),
		FinishReason: cand.FinishReason.String(),
		Usage:        count,
	}, nil
}
