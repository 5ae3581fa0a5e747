package usage_test

import (
	"sync"
	"testing"

	"github.com/abstractllm/abstractllm/pkg/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCount_Total(t *testing.T) {
	assert.Equal(t, 150, usage.TokenCount{InputTokens: 100, OutputTokens: 50}.Total())
	assert.Equal(t, 0, usage.TokenCount{}.Total())
}

func TestTokenCount_Plus(t *testing.T) {
	a := usage.TokenCount{InputTokens: 10, OutputTokens: 5}
	b := usage.TokenCount{InputTokens: 3, OutputTokens: 7}

	assert.Equal(t, usage.TokenCount{InputTokens: 13, OutputTokens: 12}, a.Plus(b))
	assert.Equal(t, a, a.Plus(usage.TokenCount{}))
}

func TestTracker_AddLastTotal(t *testing.T) {
	var tr usage.Tracker

	_, ok := tr.Last()
	assert.False(t, ok)

	tr.Add(usage.TokenCount{InputTokens: 10, OutputTokens: 5})
	tr.Add(usage.TokenCount{InputTokens: 20, OutputTokens: 8})

	last, ok := tr.Last()
	require.True(t, ok)
	assert.Equal(t, usage.TokenCount{InputTokens: 20, OutputTokens: 8}, last)

	assert.Equal(t, usage.TokenCount{InputTokens: 30, OutputTokens: 13}, tr.Total())
	assert.Equal(t, 2, tr.Count())

	tr.Reset()
	assert.Equal(t, 0, tr.Count())
	assert.Equal(t, usage.TokenCount{}, tr.Total())
}

func TestTracker_Concurrent(t *testing.T) {
	var tr usage.Tracker
	var wg sync.WaitGroup

	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Add(usage.TokenCount{InputTokens: 1, OutputTokens: 2})
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, tr.Count())
	assert.Equal(t, usage.TokenCount{InputTokens: 50, OutputTokens: 100}, tr.Total())
}
