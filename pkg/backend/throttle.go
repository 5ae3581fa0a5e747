package backend

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"github.com/abstractllm/abstractllm/pkg/capability"
	"github.com/abstractllm/abstractllm/pkg/llm"
)

var _ llm.Provider = (*Throttle)(nil)

// ThrottleOpts configures a Throttle.
type ThrottleOpts struct {
	RPM        int           // Requests per minute (0 = no pacing).
	MaxRetries int           // Max retries on 429 (default 3).
	BaseDelay  time.Duration // Initial backoff delay (default 1s).
}

// Throttle wraps a Provider with requests-per-minute pacing and bounded
// retry with exponential backoff and jitter on RateLimitError. Mid-stream
// failures are not retried; the stream has already been handed to the caller.
type Throttle struct {
	inner      llm.Provider
	limiter    *rate.Limiter
	maxRetries int
	baseDelay  time.Duration

	// sleepFunc and randFunc are swappable for tests.
	sleepFunc func(ctx context.Context, d time.Duration) error
	randFunc  func() float64
}

// NewThrottle wraps inner with rate limiting.
func NewThrottle(inner llm.Provider, opts ThrottleOpts) *Throttle {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}

	var limiter *rate.Limiter
	if opts.RPM > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(opts.RPM)/60.0), 1)
	}

	return &Throttle{
		inner:      inner,
		limiter:    limiter,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		sleepFunc:  contextSleep,
		randFunc:   rand.Float64,
	}
}

// SetSleepFunc overrides the backoff sleep (for testing).
func (t *Throttle) SetSleepFunc(fn func(ctx context.Context, d time.Duration) error) {
	t.sleepFunc = fn
}

// SetRandFunc overrides the jitter source (for testing).
func (t *Throttle) SetRandFunc(fn func() float64) { t.randFunc = fn }

// Generate paces the call and retries on rate limiting.
func (t *Throttle) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (*llm.Response, error) {
	var resp *llm.Response
	err := t.attempt(ctx, func() error {
		var innerErr error
		resp, innerErr = t.inner.Generate(ctx, prompt, opts...)
		return innerErr
	})
	return resp, err
}

// GenerateStream paces the call and retries the initial request on rate
// limiting. Once a stream is open it is returned as-is.
func (t *Throttle) GenerateStream(ctx context.Context, prompt string, opts ...llm.GenerateOption) (<-chan llm.Chunk, error) {
	var ch <-chan llm.Chunk
	err := t.attempt(ctx, func() error {
		var innerErr error
		ch, innerErr = t.inner.GenerateStream(ctx, prompt, opts...)
		return innerErr
	})
	return ch, err
}

// Capabilities passes through to the wrapped provider.
func (t *Throttle) Capabilities() capability.Set {
	return t.inner.Capabilities()
}

func (t *Throttle) attempt(ctx context.Context, call func() error) error {
	for try := 0; ; try++ {
		if t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		err := call()
		if err == nil {
			return nil
		}

		var rlErr *RateLimitError
		if !errors.As(err, &rlErr) || try >= t.maxRetries {
			return err
		}

		delay := t.backoff(try, rlErr.RetryAfter)
		if sleepErr := t.sleepFunc(ctx, delay); sleepErr != nil {
			return sleepErr
		}
	}
}

// backoff picks the delay before retry try+1: the server's Retry-After when
// given, otherwise exponential backoff with up to 25% jitter.
func (t *Throttle) backoff(try int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return retryAfter
	}

	d := time.Duration(float64(t.baseDelay) * math.Pow(2, float64(try)))
	jitter := time.Duration(t.randFunc() * 0.25 * float64(d))
	return d + jitter
}

func contextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
