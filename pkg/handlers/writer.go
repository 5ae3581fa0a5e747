package handlers

import (
	"io"

	"github.com/abstractllm/abstractllm/pkg/llm"
)

var _ Handler = (*Writer)(nil)

// Writer mirrors streamed output to an io.Writer as deltas arrive. It writes
// nothing for non-streamed calls; the caller already holds the full response.
type Writer struct {
	W io.Writer
}

// NewWriter creates a Writer handler over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{W: w}
}

func (wr *Writer) HandleRequest(Request) {}

func (wr *Writer) HandleChunk(chunk llm.Chunk) {
	if chunk.Delta == "" {
		return
	}
	_, _ = io.WriteString(wr.W, chunk.Delta)
}

func (wr *Writer) HandleResponse(*llm.Response, error) {}
