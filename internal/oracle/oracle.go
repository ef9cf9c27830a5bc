// Package oracle defines the text-generation service the engine consults
// for classification and structured output, and its Gemini adapter.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Part is an additional prompt part: inline text or binary data tagged with
// its media type.
type Part struct {
	MediaType string
	Text      string
	Data      []byte
}

// IsBinary reports whether the part carries binary data.
func (p Part) IsBinary() bool { return len(p.Data) > 0 }

// TextPart returns a text part.
func TextPart(text string) Part { return Part{MediaType: "text/plain", Text: text} }

// Request is one oracle call.
type Request struct {
	System string
	Prompt string
	Parts  []Part
}

// Response is the oracle's free-form answer. Text is usually, but not
// always, well-formed JSON.
type Response struct {
	Text   string
	Tokens int
}

// Oracle generates text for a request. Implementations block until the
// answer arrives or ctx ends; retries are the implementation's business.
type Oracle interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// Func adapts a function to the Oracle interface.
type Func func(ctx context.Context, req Request) (Response, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// ErrUnavailable is returned when no oracle is configured.
var ErrUnavailable = errors.New("oracle: unavailable")

// Unavailable is an Oracle that always fails with ErrUnavailable.
var Unavailable = Func(func(context.Context, Request) (Response, error) {
	return Response{}, ErrUnavailable
})

// Guarded wraps an Oracle with a per-call timeout and a rate limiter.
type Guarded struct {
	next    Oracle
	limiter *rate.Limiter
	timeout time.Duration
}

// Guard wraps next. A nil limiter or zero timeout disables that guard.
func Guard(next Oracle, limiter *rate.Limiter, timeout time.Duration) *Guarded {
	return &Guarded{next: next, limiter: limiter, timeout: timeout}
}

// Generate waits for the limiter, then calls the wrapped oracle under the timeout.
func (g *Guarded) Generate(ctx context.Context, req Request) (Response, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return Response{}, fmt.Errorf("oracle: rate limit: %w", err)
		}
	}
	return g.next.Generate(ctx, req)
}

// NewLimiter returns a limiter allowing perMinute calls per minute with the
// given burst, or nil when perMinute is not positive.
func NewLimiter(perMinute, burst int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst)
}
