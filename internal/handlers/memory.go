package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/starford/synapse/internal/agent"
	"github.com/starford/synapse/internal/directive"
)

// Memory actions.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
	ActionList   = "list"
)

var rememberPrefix = regexp.MustCompile(`(?i)^\s*(please\s+)?(remember|from now on|always)\s*[:,-]?\s*`)

// Memory manages the user's standing directives. It never calls the oracle.
type Memory struct {
	store *directive.Store
}

// NewMemory creates the memory handler over store.
func NewMemory(store *directive.Store) *Memory {
	return &Memory{store: store}
}

func (*Memory) Name() string { return "memory" }

func (*Memory) Description() string {
	return "Manages standing directives: rules the user wants applied to every future message. " +
		"Use it for \"remember: …\", \"from now on …\", \"forget directive 2\" or \"what do you remember?\"."
}

// Parameters describes the router fields the handler reads.
func (*Memory) Parameters() string {
	return `"action" ("add", "remove" or "list"), "directive" (the rule to add, without the "remember" prefix), ` +
		`"index" (the 1-based number of the directive to remove).`
}

func (m *Memory) Handle(ctx context.Context, mc agent.MessageContext) (agent.Result, error) {
	log := logger(mc)
	d := mc.Decision
	switch d.Action {
	case ActionAdd:
		text := strings.TrimSpace(d.Directive)
		if text == "" {
			text = rememberPrefix.ReplaceAllString(mc.Text, "")
		}
		n, err := m.store.Add(ctx, text)
		if errors.Is(err, directive.ErrEmpty) {
			return agent.Result{ResponseText: "What should I remember? Tell me the rule, for example \"remember: tag recipes with #cooking\"."}, nil
		}
		if errors.Is(err, directive.ErrTooLong) {
			return agent.Result{ResponseText: fmt.Sprintf("That rule is too long to remember. Keep directives under %d characters.", directive.MaxLength)}, nil
		}
		if err != nil {
			return agent.Result{}, fmt.Errorf("memory: add: %w", err)
		}
		log.Info("memory: directive added", slog.Int("index", n))
		return agent.Result{ResponseText: fmt.Sprintf("🧠 Got it. Directive #%d: %s", n, strings.Join(strings.Fields(text), " "))}, nil

	case ActionRemove:
		removed, ok, err := m.store.Remove(ctx, d.Index)
		if err != nil {
			return agent.Result{}, fmt.Errorf("memory: remove: %w", err)
		}
		if !ok {
			list, err := m.store.Render(ctx)
			if err != nil {
				return agent.Result{}, fmt.Errorf("memory: list: %w", err)
			}
			return agent.Result{ResponseText: fmt.Sprintf("There is no directive #%d. Current directives:\n%s", d.Index, list)}, nil
		}
		log.Info("memory: directive removed", slog.Int("index", d.Index))
		return agent.Result{ResponseText: fmt.Sprintf("🗑️ Removed directive #%d: %s", d.Index, removed)}, nil

	default:
		list, err := m.store.List(ctx)
		if err != nil {
			return agent.Result{}, fmt.Errorf("memory: list: %w", err)
		}
		if len(list) == 0 {
			return agent.Result{ResponseText: "I don't have any directives yet. Say \"remember: …\" to add one."}, nil
		}
		return agent.Result{ResponseText: "🧠 *Directives:*\n" + directive.Render(list)}, nil
	}
}
