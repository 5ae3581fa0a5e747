package llm_test

import (
	"testing"

	"github.com/abstractllm/abstractllm/pkg/config"
	"github.com/abstractllm/abstractllm/pkg/llm"
	"github.com/abstractllm/abstractllm/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stream(chunks ...llm.Chunk) <-chan llm.Chunk {
	ch := make(chan llm.Chunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}

func TestCollect(t *testing.T) {
	text, err := llm.Collect(stream(
		llm.Chunk{Delta: "Hel", Text: "Hel"},
		llm.Chunk{Delta: "lo", Text: "Hello"},
		llm.Chunk{Text: "Hello", Done: true},
	))
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
}

func TestCollect_DeltaOnly(t *testing.T) {
	text, err := llm.Collect(stream(
		llm.Chunk{Delta: "Hel"},
		llm.Chunk{Delta: "lo"},
	))
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
}

func TestCollect_Error(t *testing.T) {
	text, err := llm.Collect(stream(
		llm.Chunk{Delta: "partial", Text: "partial"},
		llm.Chunk{Text: "partial", Err: assert.AnError},
	))
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, "partial", text)
}

func TestApply_LaterOptionWins(t *testing.T) {
	o := llm.Apply([]llm.GenerateOption{
		llm.WithModel("first"),
		llm.WithTemperature(0.1),
		llm.WithModel("second"),
	})

	assert.Equal(t, "second", o.Overrides[config.Model])
	assert.Equal(t, 0.1, o.Overrides[config.Temperature])
}

func TestApply_Files(t *testing.T) {
	img := media.Image{Filename: "a.png", MIME: "image/png"}
	txt := media.Text{Filename: "a.txt", MIME: "text/plain"}

	o := llm.Apply([]llm.GenerateOption{
		llm.WithFiles(img),
		llm.WithFiles(txt),
	})

	require.Len(t, o.Files, 2)
	assert.Equal(t, "image", o.Files[0].Kind())
	assert.Equal(t, "text", o.Files[1].Kind())
}
