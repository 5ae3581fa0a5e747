package handlers

import (
	"log/slog"

	"github.com/abstractllm/abstractllm/pkg/llm"
)

var _ Handler = (*Logger)(nil)

// Logger emits structured logs for requests and outcomes. Chunks are not
// logged; a stream would flood the log.
type Logger struct {
	log *slog.Logger
}

// NewLogger creates a Logger handler. A nil logger falls back to
// slog.Default.
func NewLogger(log *slog.Logger) *Logger {
	if log == nil {
		log = slog.Default()
	}
	return &Logger{log: log}
}

func (l *Logger) HandleRequest(req Request) {
	l.log.Info("generation request",
		"provider", req.Provider,
		"model", req.Model,
		"prompt_len", len(req.Prompt),
		"files", len(req.Files),
		"stream", req.Stream,
	)
}

func (l *Logger) HandleChunk(llm.Chunk) {}

func (l *Logger) HandleResponse(resp *llm.Response, err error) {
	if err != nil {
		l.log.Error("generation failed", "error", err)
		return
	}
	l.log.Info("generation complete",
		"model", resp.Model,
		"finish_reason", resp.FinishReason,
		"text_len", len(resp.Text),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)
}
