package backend_test

import (
	"context"
	"testing"
	"time"

	"github.com/abstractllm/abstractllm/pkg/backend"
	"github.com/abstractllm/abstractllm/pkg/capability"
	"github.com/abstractllm/abstractllm/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProvider fails with the queued errors before succeeding.
type scriptedProvider struct {
	errs  []error
	calls int
}

func (s *scriptedProvider) Generate(context.Context, string, ...llm.GenerateOption) (*llm.Response, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	return &llm.Response{Text: "ok"}, nil
}

func (s *scriptedProvider) GenerateStream(ctx context.Context, prompt string, opts ...llm.GenerateOption) (<-chan llm.Chunk, error) {
	if _, err := s.Generate(ctx, prompt, opts...); err != nil {
		return nil, err
	}
	ch := make(chan llm.Chunk, 1)
	ch <- llm.Chunk{Delta: "ok", Text: "ok", Done: true}
	close(ch)
	return ch, nil
}

func (s *scriptedProvider) Capabilities() capability.Set {
	return capability.Set{Streaming: true}
}

func noSleep(t *testing.T, slept *[]time.Duration) func(context.Context, time.Duration) error {
	t.Helper()
	return func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
}

func TestThrottle_RetriesOnRateLimit(t *testing.T) {
	inner := &scriptedProvider{errs: []error{
		&backend.RateLimitError{},
		&backend.RateLimitError{},
	}}

	var slept []time.Duration
	th := backend.NewThrottle(inner, backend.ThrottleOpts{BaseDelay: time.Second})
	th.SetSleepFunc(noSleep(t, &slept))
	th.SetRandFunc(func() float64 { return 0 })

	resp, err := th.Generate(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, slept, "exponential backoff")
}

func TestThrottle_HonorsRetryAfter(t *testing.T) {
	inner := &scriptedProvider{errs: []error{
		&backend.RateLimitError{RetryAfter: 5 * time.Second},
	}}

	var slept []time.Duration
	th := backend.NewThrottle(inner, backend.ThrottleOpts{})
	th.SetSleepFunc(noSleep(t, &slept))

	_, err := th.Generate(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{5 * time.Second}, slept)
}

func TestThrottle_GivesUpAfterMaxRetries(t *testing.T) {
	inner := &scriptedProvider{errs: []error{
		&backend.RateLimitError{},
		&backend.RateLimitError{},
	}}

	var slept []time.Duration
	th := backend.NewThrottle(inner, backend.ThrottleOpts{MaxRetries: 1})
	th.SetSleepFunc(noSleep(t, &slept))

	_, err := th.Generate(context.Background(), "hi")
	require.Error(t, err)

	var rlErr *backend.RateLimitError
	assert.ErrorAs(t, err, &rlErr)
	assert.Equal(t, 2, inner.calls, "initial call plus one retry")
}

func TestThrottle_NonRateLimitErrorsPassThrough(t *testing.T) {
	inner := &scriptedProvider{errs: []error{assert.AnError}}

	th := backend.NewThrottle(inner, backend.ThrottleOpts{})
	_, err := th.Generate(context.Background(), "hi")
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, inner.calls, "no retry on ordinary errors")
}

func TestThrottle_StreamRetriesInitialError(t *testing.T) {
	inner := &scriptedProvider{errs: []error{&backend.RateLimitError{}}}

	var slept []time.Duration
	th := backend.NewThrottle(inner, backend.ThrottleOpts{})
	th.SetSleepFunc(noSleep(t, &slept))
	th.SetRandFunc(func() float64 { return 0 })

	ch, err := th.GenerateStream(context.Background(), "hi")
	require.NoError(t, err)

	text, err := llm.Collect(ch)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Len(t, slept, 1)
}

func TestThrottle_Capabilities(t *testing.T) {
	th := backend.NewThrottle(&scriptedProvider{}, backend.ThrottleOpts{})
	assert.True(t, th.Capabilities().Streaming)
}
