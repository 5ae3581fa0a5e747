// Package capability describes what an LLM backend can do.
package capability

// Set reports the features a backend supports. Callers check it before
// attaching files or requesting a stream.
type Set struct {
	Streaming    bool // Incremental chunk delivery.
	SystemPrompt bool // Dedicated system prompt slot.
	Vision       bool // Image inputs.
	JSONMode     bool // Structured JSON output mode.
	MaxTokens    int  // Upper bound the backend will generate per call.
}
