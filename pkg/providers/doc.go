// Package providers groups the concrete llm.Provider adapters.
//
// Each sub-package binds one backend API:
//   - [github.com/abstractllm/abstractllm/pkg/providers/openai] — OpenAI Chat Completions, including OpenAI-compatible endpoints behind a custom base_url
//   - [github.com/abstractllm/abstractllm/pkg/providers/anthropic] — Anthropic Messages API
//   - [github.com/abstractllm/abstractllm/pkg/providers/ollama] — local Ollama generate API
//   - [github.com/abstractllm/abstractllm/pkg/providers/gemini] — Google Gemini via the generative-ai-go SDK
//
// This package contains no provider-specific code — shared HTTP plumbing
// lives in pkg/backend and parameter resolution in pkg/config.
package providers
