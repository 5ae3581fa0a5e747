// Package config implements layered parameter resolution for LLM providers.
//
// Parameters live in three layers: provider defaults, instance configuration,
// and per-call overrides. A Manager merges them deterministically — later
// layers win — into the flat parameter set a backend actually receives.
package config

import "fmt"

// Param names a recognized generation parameter. Providers may also carry
// parameters outside this enumeration; unknown keys pass through resolution
// untouched.
type Param string

const (
	Model            Param = "model"
	APIKey           Param = "api_key"
	Temperature      Param = "temperature"
	MaxTokens        Param = "max_tokens"
	SystemPrompt     Param = "system_prompt"
	TopP             Param = "top_p"
	FrequencyPenalty Param = "frequency_penalty"
	PresencePenalty  Param = "presence_penalty"
	Stop             Param = "stop"
	BaseURL          Param = "base_url"
	Timeout          Param = "timeout"
	Seed             Param = "seed"
	User             Param = "user"
	LoggingEnabled   Param = "logging_enabled"
)

// Params is a flat mapping from parameter names to values. Values are plain
// strings, numbers, booleans, or string slices.
type Params map[Param]any

// Clone returns a shallow copy of p. A nil receiver yields an empty map.
func (p Params) Clone() Params {
	cp := make(Params, len(p))
	for k, v := range p {
		cp[k] = v
	}
	return cp
}

// Has reports whether the parameter is present, regardless of its value.
// Presence distinguishes an explicit zero from an unset parameter.
func (p Params) Has(key Param) bool {
	_, ok := p[key]
	return ok
}

// String returns the parameter as a string. Non-string values are formatted
// with fmt. The bool is false when the parameter is unset.
func (p Params) String(key Param) (string, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}

// Float returns the parameter as a float64, converting the numeric types a
// YAML or JSON decoder produces.
func (p Params) Float(key Param) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Int returns the parameter as an int, converting the numeric types a YAML
// or JSON decoder produces. Fractional floats are truncated.
func (p Params) Int(key Param) (int, bool) {
	switch v := p[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case float32:
		return int(v), true
	}
	return 0, false
}

// Model returns the model parameter, or the empty string when unset.
func (p Params) Model() string {
	s, _ := p.String(Model)
	return s
}

// MaxTokensOr returns the max_tokens parameter, or def when unset.
func (p Params) MaxTokensOr(def int) int {
	if n, ok := p.Int(MaxTokens); ok {
		return n
	}
	return def
}

// Bool returns the parameter as a bool.
func (p Params) Bool(key Param) (bool, bool) {
	v, ok := p[key].(bool)
	return v, ok
}

// Strings returns the parameter as a string slice. A bare string becomes a
// one-element slice; []any elements are converted individually.
func (p Params) Strings(key Param) ([]string, bool) {
	switch v := p[key].(type) {
	case []string:
		return v, true
	case string:
		return []string{v}, true
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			out = append(out, fmt.Sprint(e))
		}
		return out, true
	}
	return nil, false
}
