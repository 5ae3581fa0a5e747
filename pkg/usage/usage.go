// Package usage accumulates token accounting across LLM calls.
package usage

import "sync"

// TokenCount holds the input and output token counts reported for one call.
type TokenCount struct {
	InputTokens  int
	OutputTokens int
}

// Total returns input plus output tokens.
func (tc TokenCount) Total() int {
	return tc.InputTokens + tc.OutputTokens
}

// Plus returns the element-wise sum of two counts.
func (tc TokenCount) Plus(other TokenCount) TokenCount {
	return TokenCount{
		InputTokens:  tc.InputTokens + other.InputTokens,
		OutputTokens: tc.OutputTokens + other.OutputTokens,
	}
}

// Tracker keeps a running total of token usage. It stores the aggregate and
// the latest count rather than every call, so memory stays constant no matter
// how long an adapter lives. The zero value is ready to use and safe for
// concurrent use.
type Tracker struct {
	mu    sync.Mutex
	sum   TokenCount
	last  TokenCount
	calls int
}

// Add folds the usage of one call into the running total.
func (t *Tracker) Add(tc TokenCount) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sum = t.sum.Plus(tc)
	t.last = tc
	t.calls++
}

// Last returns the most recently recorded count; false when nothing has been
// recorded yet.
func (t *Tracker) Last() (TokenCount, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.calls == 0 {
		return TokenCount{}, false
	}
	return t.last, true
}

// Total returns the aggregate of all recorded counts.
func (t *Tracker) Total() TokenCount {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.sum
}

// Count returns how many calls have been recorded.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.calls
}

// Reset discards all recorded usage.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sum = TokenCount{}
	t.last = TokenCount{}
	t.calls = 0
}
