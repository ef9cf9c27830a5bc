package agent

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/starford/synapse/internal/conversation"
	"github.com/starford/synapse/internal/models"
	"github.com/starford/synapse/internal/vault"
)

// Message is one inbound message as delivered by a transport.
type Message struct {
	Text        string              `json:"text"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
	History     []conversation.Turn `json:"history,omitempty"`
	ThreadID    string              `json:"thread_id,omitempty"`
}

// Engine ties the Router and Dispatcher together for one message at a time.
// It holds no per-message state and is safe for concurrent use.
type Engine struct {
	vault      *vault.Service
	router     *Router
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(v *vault.Service, router *Router, dispatcher *Dispatcher, logger *slog.Logger) *Engine {
	return &Engine{vault: v, router: router, dispatcher: dispatcher, logger: logger}
}

// Handle classifies msg and dispatches it. The returned Result always
// carries reply text; failures are logged, never returned.
func (e *Engine) Handle(ctx context.Context, msg Message) Result {
	reqID := uuid.NewString()
	log := e.logger.With(slog.String("request_id", reqID))
	if msg.ThreadID != "" {
		log = log.With(slog.String("thread_id", msg.ThreadID))
	}

	mc := MessageContext{
		RequestID: reqID,
		Logger:    log,
		Text:      msg.Text,
		History:   conversation.Normalize(msg.History),
		Vault:     e.vault,
	}
	if len(msg.Attachments) > 0 {
		mc.Attachments = PrepareAttachments(ctx, e.vault, msg.Attachments, log)
	}
	log.Info("engine: message received",
		slog.Int("attachments", len(msg.Attachments)),
		slog.Int("history", len(mc.History)))

	d, err := e.router.Classify(ctx, mc)
	if err != nil {
		log.Error("engine: classification failed", slog.String("error", err.Error()))
		return Result{ResponseText: failedReply}
	}
	return e.dispatcher.Dispatch(ctx, d, mc)
}
