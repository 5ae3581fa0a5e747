// Package backend holds the shared scaffolding HTTP-based provider adapters
// embed: authenticated requests, JSON posting, stream bodies, usage tracking,
// and the handler chain hookup. SDK-based adapters use only the tracker and
// chain pieces.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/abstractllm/abstractllm/pkg/config"
	"github.com/abstractllm/abstractllm/pkg/handlers"
	"github.com/abstractllm/abstractllm/pkg/usage"
)

// RateLimitError is returned when the API responds with HTTP 429. It carries
// an optional RetryAfter duration parsed from the Retry-After header.
type RateLimitError struct {
	RetryAfter time.Duration
	Body       string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s): %s", e.RetryAfter, e.Body)
	}
	return fmt.Sprintf("rate limited: %s", e.Body)
}

// ParseRetryAfter parses a Retry-After header as seconds or an HTTP-date.
// Returns zero when unparseable or already in the past.
func ParseRetryAfter(val string) time.Duration {
	if val == "" {
		return 0
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(val); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// Auth holds authentication settings for a provider API.
type Auth struct {
	Key    string // API key value.
	Header string // Header name (default: "Authorization").
	Scheme string // Scheme prefix (default: "Bearer" when Header is "Authorization").
}

// Backend is embedded by provider adapters. It pairs the configuration
// manager that resolves each call's parameters with the HTTP plumbing that
// executes it.
type Backend struct {
	Provider string          // Provider name, e.g. "anthropic".
	Config   *config.Manager // Instance configuration; per-call Resolve source.
	Auth     Auth
	BaseURL  string            // API base URL (no trailing slash).
	Client   *http.Client      // Falls back to a cached default with a 10-minute timeout.
	Headers  map[string]string // Extra headers applied to every request.
	Usage    usage.Tracker
	Handlers *handlers.Chain // Observing chain; nil is valid.

	clientOnce    sync.Once
	defaultClient *http.Client
}

func (b *Backend) httpClient() *http.Client {
	if b.Client != nil {
		return b.Client
	}

	b.clientOnce.Do(func() {
		b.defaultClient = &http.Client{Timeout: 10 * time.Minute}
	})

	return b.defaultClient
}

// NewRequest builds an *http.Request with base URL, auth, and custom headers
// applied.
func (b *Backend) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, b.BaseURL+path, body)
	if err != nil {
		return nil, err
	}

	if b.Auth.Key != "" {
		header := b.Auth.Header
		if header == "" {
			header = "Authorization"
		}

		value := b.Auth.Key
		if header == "Authorization" {
			scheme := b.Auth.Scheme
			if scheme == "" {
				scheme = "Bearer"
			}
			value = scheme + " " + value
		} else if b.Auth.Scheme != "" {
			value = b.Auth.Scheme + " " + value
		}

		req.Header.Set(header, value)
	}

	for k, v := range b.Headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

// Do sends the request using the configured HTTP client.
func (b *Backend) Do(req *http.Request) (*http.Response, error) {
	return b.httpClient().Do(req)
}

// PostJSON marshals payload, POSTs it to path, checks for a 2xx status, and
// unmarshals the body into dest. A nil dest discards the body.
func (b *Backend) PostJSON(ctx context.Context, path string, payload any, dest any) error {
	resp, err := b.post(ctx, path, payload)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp); err != nil {
		return err
	}

	if dest == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

// PostStream POSTs payload to path and hands back the response body after the
// status check. The caller owns closing it.
func (b *Backend) PostStream(ctx context.Context, path string, payload any) (io.ReadCloser, error) {
	resp, err := b.post(ctx, path, payload)
	if err != nil {
		return nil, err
	}

	if err := checkStatus(resp); err != nil {
		_ = resp.Body.Close()
		return nil, err
	}

	return resp.Body, nil
}

func (b *Backend) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := b.NewRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := b.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}

	return resp, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusTooManyRequests {
		body, _ := io.ReadAll(resp.Body)
		return &RateLimitError{
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After")),
			Body:       string(body),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}
