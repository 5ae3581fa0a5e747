// Package openai implements the provider contract for the OpenAI Chat
// Completions API, including OpenAI-compatible endpoints behind a custom
// base URL.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	openai "github.com/sashabaranov/go-openai"

	"github.com/abstractllm/abstractllm/pkg/capability"
	"github.com/abstractllm/abstractllm/pkg/config"
	"github.com/abstractllm/abstractllm/pkg/handlers"
	"github.com/abstractllm/abstractllm/pkg/llm"
	"github.com/abstractllm/abstractllm/pkg/media"
	"github.com/abstractllm/abstractllm/pkg/usage"
)

const (
	defaultModel     = "gpt-4o"
	defaultMaxTokens = 4096
)

var _ llm.Provider = (*Adapter)(nil)

// Adapter implements llm.Provider on top of the go-openai SDK.
type Adapter struct {
	Config   *config.Manager
	Handlers *handlers.Chain
	Usage    usage.Tracker

	api *openai.Client
}

// New creates an Adapter. The api_key and base_url parameters bind at
// construction time since the underlying SDK client is built once; a
// base_url must include its path prefix (for example "https://host/v1").
func New(cfg config.Params) *Adapter {
	mgr := config.NewManager(config.Params{
		config.Model:     defaultModel,
		config.MaxTokens: defaultMaxTokens,
	}, cfg)

	clientCfg := openai.DefaultConfig(mgr.GetString(config.APIKey, ""))
	if baseURL := mgr.GetString(config.BaseURL, ""); baseURL != "" {
		clientCfg.BaseURL = baseURL
	}

	return &Adapter{
		Config: mgr,
		api:    openai.NewClientWithConfig(clientCfg),
	}
}

// Capabilities reports what the Chat Completions API supports.
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

	req, err := buildRequest(prompt, o.Files, resolved, false)
	if err != nil {
		return nil, err
	}

	a.Handlers.Request(a.describe(prompt, o, resolved, false))

	resp, err := a.api.CreateChatCompletion(ctx, req)
	if err != nil {
		err = fmt.Errorf("openai: %w", err)
		a.Handlers.Response(nil, err)
		return nil, err
	}

	result, err := a.parseResponse(resp)
	a.Handlers.Response(result, err)
	return result, err
}

// GenerateStream sends the prompt with streaming enabled and delivers the
// reply incrementally. The channel closes after the final chunk.
func (a *Adapter) GenerateStream(ctx context.Context, prompt string, opts ...llm.GenerateOption) (<-chan llm.Chunk, error) {
	o := llm.Apply(opts)
	resolved := a.Config.Resolve(o.Overrides)

	req, err := buildRequest(prompt, o.Files, resolved, true)
	if err != nil {
		return nil, err
	}

	a.Handlers.Request(a.describe(prompt, o, resolved, true))

	stream, err := a.api.CreateChatCompletionStream(ctx, req)
	if err != nil {
		err = fmt.Errorf("openai: %w", err)
		a.Handlers.Response(nil, err)
		return nil, err
	}

	ch := make(chan llm.Chunk)
	go a.consumeStream(ctx, stream, resolved, ch)
	return ch, nil
}

func (a *Adapter) consumeStream(ctx context.Context, stream *openai.ChatCompletionStream, resolved config.Params, ch chan<- llm.Chunk) {
	defer close(ch)
	defer func() { _ = stream.Close() }()

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
		part, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			err = fmt.Errorf("openai: %w", err)
			a.Handlers.Response(nil, err)
			emit(llm.Chunk{Text: text, Err: err})
			return
		}

		if part.Usage != nil {
			count.InputTokens = part.Usage.PromptTokens
			count.OutputTokens = part.Usage.CompletionTokens
		}
		if len(part.Choices) == 0 {
			continue
		}

		choice := part.Choices[0]
		if choice.FinishReason != "" {
			finishReason = string(choice.FinishReason)
		}
		if choice.Delta.Content == "" {
			continue
		}

		text += choice.Delta.Content
		if !emit(llm.Chunk{Delta: choice.Delta.Content, Text: text}) {
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
		Provider:     "openai",
		Model:        resolved.Model(),
		Prompt:       prompt,
		SystemPrompt: system,
		Stream:       stream,
		Params:       resolved,
		Files:        o.Files,
	}
}

func buildRequest(prompt string, files []media.Input, resolved config.Params, stream bool) (openai.ChatCompletionRequest, error) {
	req := openai.ChatCompletionRequest{
		Model:     resolved.Model(),
		MaxTokens: resolved.MaxTokensOr(defaultMaxTokens),
		Stream:    stream,
	}
	if stream {
		req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}

	if temp, ok := resolved.Float(config.Temperature); ok {
		// The SDK's Temperature field carries omitempty, which drops an
		// explicit 0 from the wire; the smallest positive float keeps it.
		if temp == 0 {
			req.Temperature = math.SmallestNonzeroFloat32
		} else {
			req.Temperature = float32(temp)
		}
	}
	if topP, ok := resolved.Float(config.TopP); ok {
		req.TopP = float32(topP)
	}
	if fp, ok := resolved.Float(config.FrequencyPenalty); ok {
		req.FrequencyPenalty = float32(fp)
	}
	if pp, ok := resolved.Float(config.PresencePenalty); ok {
		req.PresencePenalty = float32(pp)
	}
	if stops, ok := resolved.Strings(config.Stop); ok {
		req.Stop = stops
	}
	if seed, ok := resolved.Int(config.Seed); ok {
		req.Seed = &seed
	}
	if user, ok := resolved.String(config.User); ok {
		req.User = user
	}

	if system, ok := resolved.String(config.SystemPrompt); ok {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	user, err := buildUserMessage(prompt, files)
	if err != nil {
		return openai.ChatCompletionRequest{}, err
	}
	req.Messages = append(req.Messages, user)

	return req, nil
}

// buildUserMessage inlines text attachments ahead of the prompt and ships
// images as data-URI parts. MultiContent is used only when images are
// present since plain Content is what OpenAI-compatible servers expect for
// text-only calls.
func buildUserMessage(prompt string, files []media.Input) (openai.ChatCompletionMessage, error) {
	var (
		text   string
		images []media.Image
	)

	for _, f := range files {
		switch v := f.(type) {
		case media.Image:
			images = append(images, v)
		case media.Text:
			text += v.Prompt() + "\n\n"
		default:
			return openai.ChatCompletionMessage{}, fmt.Errorf("openai: %w: attachment kind %q", llm.ErrNotSupported, f.Kind())
		}
	}
	text += prompt

	msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}

	if len(images) == 0 {
		msg.Content = text
		return msg, nil
	}

	parts := []openai.ChatMessagePart{{
		Type: openai.ChatMessagePartTypeText,
		Text: text,
	}}
	for _, img := range images {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    img.DataURI(),
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}

	msg.MultiContent = parts
	return msg, nil
}

func (a *Adapter) parseResponse(resp openai.ChatCompletionResponse) (*llm.Response, error) {
	count := usage.TokenCount{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	a.Usage.Add(count)

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: %w", llm.ErrNoResponse)
	}

	choice := resp.Choices[0]

	return &llm.Response{
		Text:         choice.Message.Content,
		Model:        resp.Model,
		FinishReason: string(choice.FinishReason),
		Usage:        count,
	}, nil
}
