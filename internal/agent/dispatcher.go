package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
)

const (
	failedReply        = "Sorry, something went wrong while handling that. The details were logged."
	misconfiguredReply = "I can't handle %q requests: no handler is configured for them."
)

var errNoHandler = errors.New("agent: no handler registered for intent")

// Dispatcher routes a classified message to its handler and normalises the
// outcome. It never returns an error: every failure becomes reply text.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher over registry.
func NewDispatcher(registry *Registry, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, logger: logger}
}

// Dispatch runs the handler for d.Intent. The question intent is answered
// from the decision itself without a handler.
func (dp *Dispatcher) Dispatch(ctx context.Context, d Decision, mc MessageContext) Result {
	log := logger(mc, dp.logger).With(slog.String("intent", d.Intent))
	if d.Intent == IntentQuestion {
		answer := d.Answer
		if answer == "" {
			answer = emptyAnswer
		}
		return Result{ResponseText: answer, TokensUsed: d.Tokens}
	}

	h, ok := dp.registry.Lookup(d.Intent)
	if !ok {
		log.Error("dispatch: handler missing",
			slog.String("error", errNoHandler.Error()),
			slog.Any("registered", dp.registry.Names()))
		return Result{ResponseText: fmt.Sprintf(misconfiguredReply, d.Intent), TokensUsed: d.Tokens}
	}

	res, err := dp.run(ctx, h, mc.WithDecision(d))
	if err != nil {
		log.Error("dispatch: handler failed", slog.String("error", err.Error()))
		return Result{ResponseText: failedReply, TokensUsed: d.Tokens + res.TokensUsed}
	}
	if res.TokensUsed < 0 {
		res.TokensUsed = 0
	}
	res.TokensUsed += d.Tokens
	log.Info("dispatch: done",
		slog.String("filed_path", res.FiledPath),
		slog.Int("tokens", res.TokensUsed))
	return res
}

func (dp *Dispatcher) run(ctx context.Context, h Handler, mc MessageContext) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("agent: handler %s panicked: %v\n%s", h.Name(), r, debug.Stack())
		}
	}()
	return h.Handle(ctx, mc)
}
