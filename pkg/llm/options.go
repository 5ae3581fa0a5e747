package llm

import (
	"github.com/abstractllm/abstractllm/pkg/config"
	"github.com/abstractllm/abstractllm/pkg/media"
)

// GenerateOptions carries per-call settings. Parameter-shaped options land in
// Overrides, which providers fold on top of their instance configuration via
// config.Manager.Resolve; attached files travel separately.
type GenerateOptions struct {
	Files     []media.Input
	Overrides config.Params
}

// GenerateOption mutates GenerateOptions. Options apply in order, so a later
// option wins over an earlier one for the same parameter.
type GenerateOption func(*GenerateOptions)

// Apply folds the options into a ready-to-use GenerateOptions value.
func Apply(opts []GenerateOption) GenerateOptions {
	o := GenerateOptions{Overrides: config.Params{}}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// WithSystemPrompt overrides the system prompt for this call.
func WithSystemPrompt(prompt string) GenerateOption {
	return func(o *GenerateOptions) { o.Overrides[config.SystemPrompt] = prompt }
}

// WithModel overrides the model for this call.
func WithModel(model string) GenerateOption {
	return func(o *GenerateOptions) { o.Overrides[config.Model] = model }
}

// WithTemperature overrides the sampling temperature for this call.
func WithTemperature(temp float64) GenerateOption {
	return func(o *GenerateOptions) { o.Overrides[config.Temperature] = temp }
}

// WithMaxTokens overrides the response token budget for this call.
func WithMaxTokens(tokens int) GenerateOption {
	return func(o *GenerateOptions) { o.Overrides[config.MaxTokens] = tokens }
}

// WithTopP overrides nucleus sampling for this call.
func WithTopP(topP float64) GenerateOption {
	return func(o *GenerateOptions) { o.Overrides[config.TopP] = topP }
}

// WithStop overrides the stop sequences for this call.
func WithStop(stop ...string) GenerateOption {
	return func(o *GenerateOptions) { o.Overrides[config.Stop] = stop }
}

// WithParam sets an arbitrary parameter override, including keys outside the
// recognized enumeration.
func WithParam(key config.Param, value any) GenerateOption {
	return func(o *GenerateOptions) { o.Overrides[key] = value }
}

// WithFiles attaches media inputs to the call.
func WithFiles(files ...media.Input) GenerateOption {
	return func(o *GenerateOptions) { o.Files = append(o.Files, files...) }
}
