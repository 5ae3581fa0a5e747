package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/abstractllm/abstractllm/pkg/config"
)

// Config is the CLI configuration file.
type Config struct {
	Provider string `yaml:"provider"`
	Stream   bool   `yaml:"stream"`
	System   string `yaml:"system"`
	DebugDir string `yaml:"debug_dir"`
	Timeout  string `yaml:"timeout"`

	// Per-provider parameter maps, keyed by provider name. Values are
	// plain parameter names: model, api_key, temperature, max_tokens, ...
	Providers map[string]map[string]any `yaml:"providers"`
}

// DefaultConfigPath returns the first config file that exists: ./query.yaml,
// then ~/.config/abstractllm/query.yaml. An empty string means none found.
func DefaultConfigPath() string {
	candidates := []string{"query.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "abstractllm", "query.yaml"))
	}

	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// LoadConfig reads a YAML file and returns a Config.
// Environment variables referenced as ${VAR} or $VAR in the YAML are expanded
// before parsing, so API keys can be kept in environment variables (e.g.
// loaded from a .env file) rather than committed in the config.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration, not user input
	if err != nil {
		return Config{}, fmt.Errorf("query: load config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("query: parse config: %w", err)
	}

	return cfg, nil
}

// ParamsFor returns the configured parameters for the named provider. The
// top-level system prompt applies when the provider map does not set its own.
func (c Config) ParamsFor(name string) config.Params {
	params := config.Params{}

	if c.System != "" {
		params[config.SystemPrompt] = c.System
	}
	for k, v := range c.Providers[name] {
		params[config.Param(k)] = v
	}

	return params
}
