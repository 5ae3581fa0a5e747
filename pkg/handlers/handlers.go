// Package handlers provides the pluggable chain that observes generation
// calls. Handlers see the resolved request, every streamed chunk, and the
// final response, but can never alter what the caller receives.
package handlers

import (
	"log/slog"

	"github.com/abstractllm/abstractllm/pkg/config"
	"github.com/abstractllm/abstractllm/pkg/llm"
	"github.com/abstractllm/abstractllm/pkg/media"
)

// Request describes a generation call after parameter resolution, as the
// backend will execute it.
type Request struct {
	Provider     string
	Model        string
	Prompt       string
	SystemPrompt string
	Stream       bool
	Params       config.Params
	Files        []media.Input
}

// Handler observes the lifecycle of a generation call. Implementations must
// not block for long; they run inline on the call path.
type Handler interface {
	HandleRequest(req Request)
	HandleChunk(chunk llm.Chunk)
	HandleResponse(resp *llm.Response, err error)
}

// Chain fans lifecycle events out to handlers in registration order. A nil
// *Chain is valid and does nothing, so providers can call it unconditionally.
// A panicking handler is logged and skipped; it never fails the call.
type Chain struct {
	handlers []Handler
	log      *slog.Logger
}

// NewChain creates a chain over the given handlers.
func NewChain(hs ...Handler) *Chain {
	return &Chain{handlers: hs, log: slog.Default()}
}

// Add appends a handler to the chain.
func (c *Chain) Add(h Handler) {
	c.handlers = append(c.handlers, h)
}

// Request notifies all handlers of a resolved request.
func (c *Chain) Request(req Request) {
	if c == nil {
		return
	}
	for _, h := range c.handlers {
		c.safely(func() { h.HandleRequest(req) })
	}
}

// Chunk notifies all handlers of a streamed chunk.
func (c *Chain) Chunk(chunk llm.Chunk) {
	if c == nil {
		return
	}
	for _, h := range c.handlers {
		c.safely(func() { h.HandleChunk(chunk) })
	}
}

// Response notifies all handlers of the call outcome.
func (c *Chain) Response(resp *llm.Response, err error) {
	if c == nil {
		return
	}
	for _, h := range c.handlers {
		c.safely(func() { h.HandleResponse(resp, err) })
	}
}

func (c *Chain) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Warn("output handler panicked", "panic", r)
		}
	}()
	fn()
}
