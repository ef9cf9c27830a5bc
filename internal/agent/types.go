// Package agent is the intent-routing and dispatch engine: it classifies an
// incoming message, picks the registered handler for the intent and
// normalises what the handler returns.
package agent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/starford/synapse/internal/conversation"
	"github.com/starford/synapse/internal/oracle"
	"github.com/starford/synapse/internal/vault"
)

// IntentQuestion is the reserved intent answered by the Router itself.
const IntentQuestion = "question"

// Decision is the Router's classification of a message together with the
// intent-specific fields it produced (the router data).
type Decision struct {
	Intent string `json:"intent"`

	// question
	Answer string `json:"answer,omitempty"`

	// search-style intents
	SearchTerms []string `json:"search_terms,omitempty"`
	Folders     []string `json:"folders,omitempty"`
	Mode        string   `json:"mode,omitempty"`
	Question    string   `json:"question,omitempty"`

	// edit-style intents
	TargetFiles     []string `json:"target_files,omitempty"`
	EditDescription string   `json:"edit_description,omitempty"`

	// memory-style intents
	Action    string `json:"action,omitempty"`
	Directive string `json:"directive,omitempty"`
	Index     int    `json:"index,omitempty"`

	// Fields holds every field the oracle returned, including ones this
	// struct does not name, for handlers registered later.
	Fields map[string]any `json:"-"`
	// Tokens is what the classification call cost.
	Tokens int `json:"-"`
}

// MessageContext is everything a handler gets for one message. It is
// passed by value; WithDecision returns a modified copy.
type MessageContext struct {
	RequestID string
	Logger    *slog.Logger

	Text string
	// Attachments are prompt fragments prepared from the message's files:
	// text snippets and binary parts, each tagged with a media type.
	Attachments []oracle.Part
	History     []conversation.Turn
	Vault       *vault.Service

	Decision Decision
}

// WithDecision returns a copy of mc carrying d.
func (mc MessageContext) WithDecision(d Decision) MessageContext {
	mc.Decision = d
	return mc
}

// TextFragments returns the text attachment fragments. Binary parts are
// left out; they are reserved for the handler's own oracle call.
func (mc MessageContext) TextFragments() []string {
	var out []string
	for _, p := range mc.Attachments {
		if !p.IsBinary() && strings.TrimSpace(p.Text) != "" {
			out = append(out, p.Text)
		}
	}
	return out
}

// Result is what a handler returns and what is relayed to the transport.
type Result struct {
	ResponseText string `json:"reply,omitempty"`
	FiledPath    string `json:"filed_path,omitempty"`
	TokensUsed   int    `json:"tokens_used"`
}

// Handler is one capability keyed by an intent name. Handlers must not call
// each other; they share state only through the document store.
type Handler interface {
	Name() string
	Description() string
	Handle(ctx context.Context, mc MessageContext) (Result, error)
}
