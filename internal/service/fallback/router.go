// Package fallback tries an ordered list of providers for one capability
// until one of them succeeds.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// Capability tags what a provider list is able to do.
type Capability string

const (
	Generation    Capability = "generation"
	Transcription Capability = "transcription"
	Synthesis     Capability = "synthesis"
)

var (
	ErrNoProviders = errors.New("no providers configured")
	ErrExhausted   = errors.New("all providers failed")
)

// Provider is one external responder for a capability.
type Provider[Req, Resp any] interface {
	Name() string
	Invoke(ctx context.Context, req Req) (Resp, error)
}

// Func adapts a function into a Provider.
func Func[Req, Resp any](name string, fn func(ctx context.Context, req Req) (Resp, error)) Provider[Req, Resp] {
	return funcProvider[Req, Resp]{name: name, fn: fn}
}

type funcProvider[Req, Resp any] struct {
	name string
	fn   func(ctx context.Context, req Req) (Resp, error)
}

func (p funcProvider[Req, Resp]) Name() string { return p.name }

func (p funcProvider[Req, Resp]) Invoke(ctx context.Context, req Req) (Resp, error) {
	return p.fn(ctx, req)
}

// AttemptError records why a single provider attempt failed.
type AttemptError struct {
	Provider string
	Err      error
	Elapsed  time.Duration
}

func (e AttemptError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e AttemptError) Unwrap() error { return e.Err }

// AggregateError is returned when every provider failed.
type AggregateError struct {
	Capability Capability
	Attempts   []AttemptError
}

func (e *AggregateError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.Error())
	}
	return fmt.Sprintf("%s: %s: [%s]", e.Capability, ErrExhausted, strings.Join(parts, "; "))
}

// Is reports ErrExhausted so callers can match without a type assertion.
func (e *AggregateError) Is(target error) bool {
	return target == ErrExhausted
}

// Unwrap exposes every attempt error to errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a)
	}
	return errs
}

// Router invokes providers in configured order. Each attempt gets its own
// timeout; a provider is never retried within one Invoke.
type Router[Req, Resp any] struct {
	capability Capability
	timeout    time.Duration
	providers  []Provider[Req, Resp]
}

// New 创建路由器，timeout <= 0 表示单次尝试只受调用方 ctx 约束。
func New[Req, Resp any](capability Capability, timeout time.Duration, providers ...Provider[Req, Resp]) *Router[Req, Resp] {
	filtered := make([]Provider[Req, Resp], 0, len(providers))
	for _, p := range providers {
		if p != nil {
			filtered = append(filtered, p)
		}
	}
	return &Router[Req, Resp]{
		capability: capability,
		timeout:    timeout,
		providers:  filtered,
	}
}

// Capability returns the capability this router serves.
func (r *Router[Req, Resp]) Capability() Capability {
	return r.capability
}

// Names lists provider names in attempt order.
func (r *Router[Req, Resp]) Names() []string {
	names := make([]string, 0, len(r.providers))
	for _, p := range r.providers {
		names = append(names, p.Name())
	}
	return names
}

// Len reports how many providers are configured.
func (r *Router[Req, Resp]) Len() int {
	return len(r.providers)
}

// Invoke returns the first successful response. When the caller's context ends
// the remaining providers are skipped and the aggregate includes ctx.Err().
func (r *Router[Req, Resp]) Invoke(ctx context.Context, req Req) (Resp, error) {
	var zero Resp
	if len(r.providers) == 0 {
		return zero, fmt.Errorf("%s: %w", r.capability, ErrNoProviders)
	}

	agg := &AggregateError{Capability: r.capability}
	for idx, p := range r.providers {
		if err := ctx.Err(); err != nil {
			agg.Attempts = append(agg.Attempts, AttemptError{Provider: p.Name(), Err: err})
			break
		}

		start := time.Now()
		resp, err := r.attempt(ctx, p, req)
		elapsed := time.Since(start)
		if err == nil {
			if idx > 0 {
				log.Printf("[fallback] %s served by %s after %d failed attempt(s)", r.capability, p.Name(), idx)
			}
			return resp, nil
		}

		log.Printf("[fallback] %s provider %s failed after %s: %v", r.capability, p.Name(), elapsed.Round(time.Millisecond), err)
		agg.Attempts = append(agg.Attempts, AttemptError{Provider: p.Name(), Err: err, Elapsed: elapsed})
	}

	return zero, agg
}

type result[Resp any] struct {
	resp Resp
	err  error
}

// attempt runs one provider call and abandons it once its deadline passes,
// even if the provider ignores ctx.
func (r *Router[Req, Resp]) attempt(ctx context.Context, p Provider[Req, Resp], req Req) (Resp, error) {
	attemptCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	done := make(chan result[Resp], 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				var zero Resp
				done <- result[Resp]{resp: zero, err: fmt.Errorf("provider panic: %v", rec)}
			}
		}()
		resp, err := p.Invoke(attemptCtx, req)
		done <- result[Resp]{resp: resp, err: err}
	}()

	select {
	case res := <-done:
		if res.err == nil && attemptCtx.Err() != nil {
			// response raced the deadline; the attempt already timed out
			var zero Resp
			return zero, attemptCtx.Err()
		}
		return res.resp, res.err
	case <-attemptCtx.Done():
		var zero Resp
		return zero, attemptCtx.Err()
	}
}
