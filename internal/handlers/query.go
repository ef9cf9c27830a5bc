package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/synapse/internal/agent"
	"github.com/starford/synapse/internal/conversation"
	"github.com/starford/synapse/internal/oracle"
	"github.com/starford/synapse/internal/search"
)

const (
	noMatchesReply = "I searched the vault but didn't find any matching notes. " +
		"Try rephrasing your question or being more specific about what you're looking for."
	noAnswerReply = "I found matching notes but couldn't put an answer together. Could you ask again?"
)

const querySystem = `You are a helpful assistant answering questions about the user's markdown vault,
a personal knowledge base organised into folders.

Below is a list of matching notes with their file names, file metadata (size
in bytes, word count, last modified date) and header fields, and for text
searches short excerpts around each match. Use this information to answer
the user's question. If it is not enough, say so.

Respond in concise, conversational plain text. Use bullet points or numbered
lists where appropriate. Do NOT return JSON.`

// Searcher runs document searches.
type Searcher interface {
	Search(ctx context.Context, q search.Query) (*search.Result, error)
}

// Query answers questions about stored documents.
type Query struct {
	base
	oracle   oracle.Oracle
	searcher Searcher
}

// NewQuery creates the vault query handler.
func NewQuery(o oracle.Oracle, s Searcher, opts ...Option) *Query {
	return &Query{base: newBase(opts), oracle: o, searcher: s}
}

func (*Query) Name() string { return "vault_query" }

func (*Query) Description() string {
	return "Answers questions about previously saved vault content: open actions, filed media, project notes, recent captures and so on."
}

// Parameters describes the router fields the handler reads.
func (*Query) Parameters() string {
	return `"search_terms" (list of keywords, may be empty), "folders" (list of folder names, or "all"), ` +
		`"mode" ("default" for keyword matches on names and metadata; "metadata" for aggregate questions like largest, most recent or how many; ` +
		`"grep" to find words inside note bodies), "question" (the question restated on its own).`
}

func (q *Query) Handle(ctx context.Context, mc agent.MessageContext) (agent.Result, error) {
	log := logger(mc)
	d := mc.Decision
	query := search.Query{Terms: d.SearchTerms, Folders: d.Folders, Mode: search.ParseMode(d.Mode)}

	res, err := q.searcher.Search(ctx, query)
	if err != nil {
		return agent.Result{}, fmt.Errorf("vault_query: search: %w", err)
	}
	// Aggregate questions phrased with keywords still deserve an answer.
	if res.Total == 0 && len(query.Terms) > 0 && query.Mode == search.ModeDefault {
		log.Info("vault_query: no keyword matches, retrying without terms", slog.Any("terms", query.Terms))
		query.Terms = nil
		if res, err = q.searcher.Search(ctx, query); err != nil {
			return agent.Result{}, fmt.Errorf("vault_query: search: %w", err)
		}
	}
	if res.Total == 0 {
		return agent.Result{ResponseText: noMatchesReply}, nil
	}

	question := strings.TrimSpace(d.Question)
	if question == "" {
		question = mc.Text
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Current time: %s\n", q.now().Format("2006-01-02 15:04"))
	b.WriteString("\n## Matching Notes\n" + search.Render(res) + "\n")
	b.WriteString("\n## Directives\n" + q.renderDirectives(ctx, log) + "\n")
	if h := conversation.Render(mc.History); h != "" {
		b.WriteString("\n" + h)
	}
	b.WriteString("\n## Question\n" + question + "\n")

	resp, err := q.oracle.Generate(ctx, oracle.Request{System: querySystem, Prompt: b.String()})
	if err != nil {
		return agent.Result{}, fmt.Errorf("vault_query: generate: %w", err)
	}
	log.Info("vault_query: answered",
		slog.String("mode", string(res.Mode)),
		slog.Int("matches", res.Total),
		slog.Int("tokens", resp.Tokens))
	answer := strings.TrimSpace(resp.Text)
	if answer == "" {
		answer = noAnswerReply
	}
	return agent.Result{ResponseText: answer, TokensUsed: resp.Tokens}, nil
}
