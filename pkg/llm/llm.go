// Package llm defines the provider contract every backend implements and the
// normalized request/response types shared across them.
package llm

import (
	"context"
	"errors"

	"github.com/abstractllm/abstractllm/pkg/capability"
	"github.com/abstractllm/abstractllm/pkg/usage"
)

var (
	// ErrNoResponse is returned when a backend answers without any usable
	// content (empty candidates, empty choices).
	ErrNoResponse = errors.New("llm: backend returned no response content")

	// ErrNotSupported is returned when a call asks for something the backend
	// cannot do, such as attaching images to a text-only model.
	ErrNotSupported = errors.New("llm: operation not supported by backend")
)

// Provider is the contract for an LLM backend. Implementations translate the
// resolved parameter set plus any attached files into their own wire shape.
//
// All methods must be safe for concurrent use and respect ctx cancellation.
type Provider interface {
	// Generate produces a complete response for the prompt.
	Generate(ctx context.Context, prompt string, opts ...GenerateOption) (*Response, error)

	// GenerateStream produces the response incrementally. The returned
	// channel always terminates: the final chunk has Done set, or Err set
	// when generation failed mid-stream.
	GenerateStream(ctx context.Context, prompt string, opts ...GenerateOption) (<-chan Chunk, error)

	// Capabilities reports what this backend supports.
	Capabilities() capability.Set
}

// Response is the normalized result of a completed generation.
type Response struct {
	Text         string
	Model        string
	FinishReason string
	Usage        usage.TokenCount
}

// Chunk is one increment of a streamed response.
type Chunk struct {
	Delta string // Text added by this chunk.
	Text  string // Accumulated text so far.
	Done  bool   // Set on the final chunk.
	Err   error  // Set when the stream failed; the channel closes after.
}

// Collect drains a stream and returns the accumulated text, or the first
// error the stream carried.
func Collect(ch <-chan Chunk) (string, error) {
	var text string
	for c := range ch {
		if c.Err != nil {
			return text, c.Err
		}
		if c.Text != "" {
			text = c.Text
		} else {
			text += c.Delta
		}
	}
	return text, nil
}
