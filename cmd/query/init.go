package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/huh"
	"gopkg.in/yaml.v3"
)

// runInit walks through an interactive form and writes a config file.
func runInit(path string) error {
	if _, err := os.Stat(path); err == nil {
		var overwrite bool
		if err := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().Title(fmt.Sprintf("%s already exists. Overwrite?", path)).Value(&overwrite),
		)).Run(); err != nil {
			return err
		}
		if !overwrite {
			return nil
		}
	}

	var (
		provider    string
		model       string
		apiKeyVar   string
		system      string
		temperature string
		stream      bool
	)

	if err := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Default provider").
			Options(
				huh.NewOption("Anthropic", "anthropic"),
				huh.NewOption("OpenAI", "openai"),
				huh.NewOption("Ollama", "ollama"),
				huh.NewOption("Gemini", "gemini"),
			).
			Value(&provider),
		huh.NewInput().Title("Model (empty = provider default)").Value(&model),
		huh.NewInput().Title("API key env var (e.g. ANTHROPIC_API_KEY)").Value(&apiKeyVar),
		huh.NewInput().Title("System prompt (optional)").Value(&system),
		huh.NewInput().Title("Temperature (optional)").Value(&temperature).Validate(validateOptionalFloat),
		huh.NewConfirm().Title("Stream responses by default?").Value(&stream),
	)).Run(); err != nil {
		return err
	}

	cfg := Config{
		Provider: provider,
		Stream:   stream,
		System:   system,
		Providers: map[string]map[string]any{
			provider: {},
		},
	}

	params := cfg.Providers[provider]
	if model != "" {
		params["model"] = model
	}
	if apiKeyVar != "" {
		params["api_key"] = "${" + apiKeyVar + "}"
	}
	if temperature != "" {
		t, _ := strconv.ParseFloat(temperature, 64)
		params["temperature"] = t
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("query: marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("query: write config: %w", err)
	}

	fmt.Printf("Wrote %s\n", path)
	return nil
}

func validateOptionalFloat(s string) error {
	if s == "" {
		return nil
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return fmt.Errorf("must be a number")
	}
	return nil
}
