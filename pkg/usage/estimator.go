package usage

import "github.com/abstractllm/abstractllm/pkg/media"

// perRequestOverhead is the estimated token overhead for message structure
// (role markers, delimiters, etc.).
const perRequestOverhead = 4

// perImageTokens is a flat estimate per attached image. Actual cost varies
// with resolution and provider; this sits near the cost of a mid-sized image.
const perImageTokens = 768

// charsToTokens converts a character count to an estimated token count using
// the 1-token-per-4-characters heuristic.
func charsToTokens(chars int) int {
	return (chars + 3) / 4 // round up
}

// Estimator estimates input tokens before a call is made, for debug output
// and budget checks where the backend has not yet reported real usage.
// The zero value is ready to use.
type Estimator struct{}

// EstimateRequest estimates the input tokens for a prompt with its system
// prompt and attachments. Text attachments count by content length; images
// count at a flat per-image rate.
func (e Estimator) EstimateRequest(system, prompt string, files []media.Input) int {
	tokens := perRequestOverhead + charsToTokens(len(prompt))

	if system != "" {
		tokens += perRequestOverhead + charsToTokens(len(system))
	}

	for _, f := range files {
		switch v := f.(type) {
		case media.Text:
			tokens += charsToTokens(len(v.Prompt()))
		case media.Image:
			tokens += perImageTokens
		}
	}

	return tokens
}
