package abstractllm

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/abstractllm/abstractllm/pkg/backend"
	"github.com/abstractllm/abstractllm/pkg/config"
	"github.com/abstractllm/abstractllm/pkg/handlers"
	"github.com/abstractllm/abstractllm/pkg/llm"
	"github.com/abstractllm/abstractllm/pkg/providers/anthropic"
	"github.com/abstractllm/abstractllm/pkg/providers/gemini"
	"github.com/abstractllm/abstractllm/pkg/providers/ollama"
	"github.com/abstractllm/abstractllm/pkg/providers/openai"
)

// Factory creates a provider from instance configuration. The chain observes
// every call the provider makes; factories for providers without handler
// support may ignore it.
type Factory func(ctx context.Context, cfg config.Params, chain *handlers.Chain) (llm.Provider, error)

var (
	factoryMu   sync.RWMutex
	factories   = map[string]Factory{}
	defaultsReg sync.Once
)

func ensureDefaults() {
	defaultsReg.Do(func() {
		factories["openai"] = newOpenAI
		factories["anthropic"] = newAnthropic
		factories["ollama"] = newOllama
		factories["gemini"] = newGemini
	})
}

// RegisterProvider registers a custom provider factory under the given name.
// It can be called before New to extend the library with additional backends.
func RegisterProvider(name string, factory Factory) {
	ensureDefaults()

	factoryMu.Lock()
	defer factoryMu.Unlock()

	factories[name] = factory
}

// Providers returns the registered provider names, sorted.
func Providers() []string {
	ensureDefaults()

	factoryMu.RLock()
	defer factoryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func getFactory(name string) (Factory, bool) {
	ensureDefaults()

	factoryMu.RLock()
	defer factoryMu.RUnlock()

	f, ok := factories[name]
	return f, ok
}

type options struct {
	handlers []handlers.Handler
	throttle *backend.ThrottleOpts
}

// Option configures New beyond the parameter set.
type Option func(*options)

// WithHandlers attaches output handlers that observe every request, chunk,
// and response the provider produces.
func WithHandlers(hs ...handlers.Handler) Option {
	return func(o *options) { o.handlers = append(o.handlers, hs...) }
}

// WithThrottle wraps the provider with client-side rate limiting and
// automatic retry on 429 responses.
func WithThrottle(t backend.ThrottleOpts) Option {
	return func(o *options) { o.throttle = &t }
}

// New creates a provider by name. cfg is the instance configuration layered
// over the provider's defaults; when it carries no api_key, the
// <PROVIDER>_API_KEY environment variable fills it in.
func New(ctx context.Context, name string, cfg config.Params, opts ...Option) (llm.Provider, error) {
	factory, ok := getFactory(name)
	if !ok {
		return nil, fmt.Errorf("abstractllm: unknown provider %q (have %s)", name, strings.Join(Providers(), ", "))
	}

	var o options
	for _, fn := range opts {
		fn(&o)
	}

	cfg = withEnvKey(name, cfg)
	chain := handlers.NewChain(o.handlers...)

	p, err := factory(ctx, cfg, chain)
	if err != nil {
		return nil, err
	}

	if o.throttle != nil {
		p = backend.NewThrottle(p, *o.throttle)
	}

	return p, nil
}

// withEnvKey fills in the api_key parameter from the environment without
// mutating the caller's map.
func withEnvKey(name string, cfg config.Params) config.Params {
	if cfg.Has(config.APIKey) {
		return cfg
	}

	key := os.Getenv(strings.ToUpper(name) + "_API_KEY")
	if key == "" {
		return cfg
	}

	cfg = cfg.Clone()
	cfg[config.APIKey] = key
	return cfg
}

func newOpenAI(_ context.Context, cfg config.Params, chain *handlers.Chain) (llm.Provider, error) {
	a := openai.New(cfg)
	a.Handlers = chain
	return a, nil
}

func newAnthropic(_ context.Context, cfg config.Params, chain *handlers.Chain) (llm.Provider, error) {
	a := anthropic.New(cfg)
	a.Handlers = chain
	return a, nil
}

func newOllama(_ context.Context, cfg config.Params, chain *handlers.Chain) (llm.Provider, error) {
	a := ollama.New(cfg)
	a.Handlers = chain
	return a, nil
}

func newGemini(ctx context.Context, cfg config.Params, chain *handlers.Chain) (llm.Provider, error) {
	a, err := gemini.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Handlers = chain
	return a, nil
}
