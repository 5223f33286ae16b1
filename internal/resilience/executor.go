// Package resilience wraps fallible remote operations with retries and
// a circuit breaker.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/openai/openai-go/v3"

	"github.com/recallhq/recall/internal/types"
)

const (
	defaultMaxRetries  = 3
	defaultThreshold   = 5
	defaultCooldown    = 60 * time.Second
	defaultBaseBackoff = time.Second
	defaultMaxBackoff  = 10 * time.Second
)

// Options tunes an Executor. Zero values fall back to defaults.
type Options struct {
	MaxRetries  int
	Threshold   int
	Cooldown    time.Duration
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// Now and Sleep are injectable for tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Executor runs remote operations for a single call family. Each family
// owns its own breaker so a flood of failures in one family does not
// blind the others.
type Executor struct {
	name        string
	maxRetries  int
	threshold   int
	cooldown    time.Duration
	baseBackoff time.Duration
	maxBackoff  time.Duration
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	failures int
	open     bool
	resetAt  time.Time
}

// New returns an Executor for the named call family.
func New(name string, opts Options) *Executor {
	e := &Executor{
		name:        name,
		maxRetries:  opts.MaxRetries,
		threshold:   opts.Threshold,
		cooldown:    opts.Cooldown,
		baseBackoff: opts.BaseBackoff,
		maxBackoff:  opts.MaxBackoff,
		now:         opts.Now,
		sleep:       opts.Sleep,
	}
	if e.maxRetries <= 0 {
		e.maxRetries = defaultMaxRetries
	}
	if e.threshold <= 0 {
		e.threshold = defaultThreshold
	}
	if e.cooldown <= 0 {
		e.cooldown = defaultCooldown
	}
	if e.baseBackoff <= 0 {
		e.baseBackoff = defaultBaseBackoff
	}
	if e.maxBackoff <= 0 {
		e.maxBackoff = defaultMaxBackoff
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.sleep == nil {
		e.sleep = sleepContext
	}
	return e
}

// Name returns the call family name.
func (e *Executor) Name() string { return e.name }

// Do runs op with retries and breaker protection. Transient failures
// (rate limit, server-side error class) are retried with exponential
// backoff; everything else fails on the first attempt. The terminal
// failure is returned as *types.RemoteCallError, or
// *types.CircuitOpenError when the breaker refuses the call outright.
func (e *Executor) Do(ctx context.Context, op func(ctx context.Context) error) error {
	if err := e.allow(); err != nil {
		return err
	}

	retries := e.maxRetries
	backoff := e.baseBackoff
	for {
		err := op(ctx)
		if err == nil {
			e.recordSuccess()
			return nil
		}

		transient := Transient(err)
		if transient && retries > 0 {
			slog.Warn("retrying remote call",
				"operation", e.name, "retries_left", retries, "backoff", backoff, "error", err)
			if serr := e.sleep(ctx, backoff); serr != nil {
				e.recordFailure()
				return &types.RemoteCallError{Name: e.name, Transient: true, Err: serr}
			}
			retries--
			backoff *= 2
			if backoff > e.maxBackoff {
				backoff = e.maxBackoff
			}
			continue
		}

		e.recordFailure()
		return &types.RemoteCallError{Name: e.name, Transient: transient, Err: err}
	}
}

// Execute runs a typed operation through the executor.
func Execute[T any](ctx context.Context, e *Executor, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := e.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// allow consults the breaker. When open past its reset time it admits
// exactly one trial call instead of failing pre-emptively.
func (e *Executor) allow() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.open {
		return nil
	}
	if e.now().Before(e.resetAt) {
		return &types.CircuitOpenError{Name: e.name, RetryAt: e.resetAt}
	}
	// Trial call: push the reset time forward so concurrent callers
	// keep failing fast until the trial resolves.
	e.resetAt = e.now().Add(e.cooldown)
	return nil
}

func (e *Executor) recordSuccess() {
	e.mu.Lock()
	e.failures = 0
	e.open = false
	e.mu.Unlock()
}

func (e *Executor) recordFailure() {
	e.mu.Lock()
	e.failures++
	if e.failures >= e.threshold {
		if !e.open {
			slog.Error("circuit breaker opened", "operation", e.name, "failures", e.failures)
		}
		e.open = true
		e.resetAt = e.now().Add(e.cooldown)
	}
	e.mu.Unlock()
}

// Transient reports whether err belongs to the retryable class: an
// explicit types.ErrTransient mark, or an API response with status 429
// or a 5xx.
func Transient(err error) bool {
	if errors.Is(err, types.ErrTransient) {
		return true
	}
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return apierr.StatusCode == http.StatusTooManyRequests || apierr.StatusCode >= 500
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
