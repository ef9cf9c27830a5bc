// Package handlers holds the capability handlers registered with the agent
// engine: filing, vault queries, bulk metadata edits and directive memory.
package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/starford/synapse/internal/agent"
	"github.com/starford/synapse/internal/directive"
)

// Option configures a handler.
type Option func(*base)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *base) { b.now = now }
}

// WithDirectives sets where standing directives are read from for prompts.
func WithDirectives(src agent.DirectiveSource) Option {
	return func(b *base) { b.directives = src }
}

type base struct {
	now        func() time.Time
	directives agent.DirectiveSource
}

func newBase(opts []Option) base {
	b := base{now: time.Now}
	for _, o := range opts {
		o(&b)
	}
	return b
}

// renderDirectives returns the directives block, or the placeholder when
// they cannot be read.
func (b base) renderDirectives(ctx context.Context, log *slog.Logger) string {
	if b.directives == nil {
		return directive.Placeholder
	}
	text, err := b.directives.Render(ctx)
	if err != nil {
		log.Warn("handlers: directives unavailable", slog.String("error", err.Error()))
		return directive.Placeholder
	}
	return text
}

func logger(mc agent.MessageContext) *slog.Logger {
	if mc.Logger != nil {
		return mc.Logger
	}
	return slog.Default()
}
