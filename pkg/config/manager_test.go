package config_test

import (
	"testing"

	"github.com/abstractllm/abstractllm/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_Precedence(t *testing.T) {
	m := config.NewManager(
		config.Params{
			config.Model:       "default-model",
			config.Temperature: 0.7,
			config.MaxTokens:   2048,
		},
		config.Params{
			config.Model:  "instance-model",
			config.APIKey: "sk-test",
		},
	)

	resolved := m.Resolve(config.Params{
		config.Model: "call-model",
		config.TopP:  0.9,
	})

	model, ok := resolved.String(config.Model)
	require.True(t, ok)
	assert.Equal(t, "call-model", model, "per-call override must win")

	key, ok := resolved.String(config.APIKey)
	require.True(t, ok)
	assert.Equal(t, "sk-test", key, "instance layer must win over defaults")

	temp, ok := resolved.Float(config.Temperature)
	require.True(t, ok)
	assert.Equal(t, 0.7, temp, "untouched defaults must survive")

	topP, ok := resolved.Float(config.TopP)
	require.True(t, ok)
	assert.Equal(t, 0.9, topP)
}

func TestResolve_DoesNotMutateLayers(t *testing.T) {
	defaults := config.Params{config.Model: "base"}
	m := config.NewManager(defaults, nil)

	resolved := m.Resolve(config.Params{config.Model: "override"})
	resolved[config.Temperature] = 1.0

	model, _ := m.Snapshot().String(config.Model)
	assert.Equal(t, "base", model)
	assert.False(t, m.Snapshot().Has(config.Temperature))
	assert.Equal(t, config.Params{config.Model: "base"}, defaults)
}

func TestResolve_NilOverridesSkipped(t *testing.T) {
	m := config.NewManager(config.Params{config.Model: "base"}, nil)

	resolved := m.Resolve(config.Params{config.Model: nil})

	model, ok := resolved.String(config.Model)
	require.True(t, ok)
	assert.Equal(t, "base", model, "nil override must not mask the default")
}

func TestResolve_Deterministic(t *testing.T) {
	m := config.NewManager(
		config.Params{config.Temperature: 0.5},
		config.Params{config.Temperature: 0.6},
	)

	for range 10 {
		temp, _ := m.Resolve(nil).Float(config.Temperature)
		assert.Equal(t, 0.6, temp)
	}
}

func TestResolve_UnknownParamsCarried(t *testing.T) {
	custom := config.Param("anthropic_version")
	m := config.NewManager(nil, config.Params{custom: "2023-06-01"})

	v, ok := m.Resolve(nil).String(custom)
	require.True(t, ok)
	assert.Equal(t, "2023-06-01", v)
}

func TestSetAndUpdate(t *testing.T) {
	m := config.NewManager(config.Params{config.MaxTokens: 2048}, nil)

	m.Set(config.Model, "gpt-4o")
	m.Update(config.Params{
		config.Temperature: 0.2,
		config.MaxTokens:   nil, // nil values in Update are skipped
	})

	snap := m.Snapshot()

	model, _ := snap.String(config.Model)
	assert.Equal(t, "gpt-4o", model)

	temp, _ := snap.Float(config.Temperature)
	assert.Equal(t, 0.2, temp)

	tokens, _ := snap.Int(config.MaxTokens)
	assert.Equal(t, 2048, tokens)
}

func TestGetTyped_Defaults(t *testing.T) {
	m := config.NewManager(config.Params{
		config.Temperature: 0.3,
		config.MaxTokens:   512,
		config.Model:       "m1",
	}, nil)

	assert.Equal(t, "m1", m.GetString(config.Model, "fallback"))
	assert.Equal(t, "fallback", m.GetString(config.BaseURL, "fallback"))
	assert.Equal(t, 0.3, m.GetFloat(config.Temperature, 1.0))
	assert.Equal(t, 512, m.GetInt(config.MaxTokens, 0))
	assert.Equal(t, 7, m.GetInt(config.Seed, 7))
}

func TestParams_YAMLNumericTolerance(t *testing.T) {
	// YAML decoders hand back int for whole numbers and float64 otherwise.
	p := config.Params{
		config.Temperature: int(1),
		config.MaxTokens:   float64(4096),
		config.Seed:        int64(42),
	}

	temp, ok := p.Float(config.Temperature)
	require.True(t, ok)
	assert.Equal(t, 1.0, temp)

	tokens, ok := p.Int(config.MaxTokens)
	require.True(t, ok)
	assert.Equal(t, 4096, tokens)

	seed, ok := p.Int(config.Seed)
	require.True(t, ok)
	assert.Equal(t, 42, seed)
}

func TestParams_Strings(t *testing.T) {
	p := config.Params{config.Stop: "END"}
	stops, ok := p.Strings(config.Stop)
	require.True(t, ok)
	assert.Equal(t, []string{"END"}, stops)

	p[config.Stop] = []any{"a", "b"}
	stops, ok = p.Strings(config.Stop)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, stops)
}
