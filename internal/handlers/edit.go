package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/starford/synapse/internal/agent"
	"github.com/starford/synapse/internal/apperr"
	"github.com/starford/synapse/internal/bulkedit"
	"github.com/starford/synapse/internal/frontmatter"
	"github.com/starford/synapse/internal/search"
	"github.com/starford/synapse/internal/storage"
)

// MaxCandidates bounds how many documents are offered to the edit planner.
const MaxCandidates = 50

const (
	noCandidatesReply = "I couldn't find any vault notes matching that request. " +
		"Try being more specific about which files to edit."
	noPlanReply   = "I wasn't able to figure out what edits to make. Could you be more specific?"
	noEditsReply  = "No edits needed."
	tooManyFormat = "⚠️ That would modify %d files, but the safety limit is %d. " +
		"Please narrow your request or target specific files."
)

// Edit changes metadata fields of existing documents.
type Edit struct {
	base
	planner  *bulkedit.Planner
	searcher Searcher
	limit    int
}

// NewEdit creates the vault edit handler. searcher should return up to
// MaxCandidates hits.
func NewEdit(planner *bulkedit.Planner, s Searcher, opts ...Option) *Edit {
	return &Edit{base: newBase(opts), planner: planner, searcher: s, limit: bulkedit.MaxTargets}
}

func (*Edit) Name() string { return "vault_edit" }

func (*Edit) Description() string {
	return "Edits metadata (status, tags, due dates, project and other header fields) of notes already in the vault, " +
		"including notes shown earlier in the conversation."
}

// Parameters describes the router fields the handler reads.
func (*Edit) Parameters() string {
	return `"target_files" (file names taken from earlier results when the user refers to them), ` +
		`"search_terms" and "folders" (to find the notes otherwise), "edit_description" (what to change).`
}

func (e *Edit) Handle(ctx context.Context, mc agent.MessageContext) (agent.Result, error) {
	log := logger(mc)
	candidates, err := e.candidates(ctx, mc, log)
	if err != nil {
		return agent.Result{}, err
	}
	if len(candidates) == 0 {
		return agent.Result{ResponseText: noCandidatesReply}, nil
	}

	description := strings.TrimSpace(mc.Decision.EditDescription)
	if description == "" {
		description = mc.Text
	}
	plan, tokens, err := e.planner.Plan(ctx, bulkedit.PlanRequest{
		Description: description,
		Candidates:  candidates,
		History:     mc.History,
		Directives:  e.renderDirectives(ctx, log),
	})
	var xerr *apperr.ExtractionError
	switch {
	case errors.As(err, &xerr):
		log.Warn("vault_edit: unparseable plan", slog.String("error", err.Error()))
		return agent.Result{ResponseText: noPlanReply, TokensUsed: tokens}, nil
	case err != nil:
		return agent.Result{TokensUsed: tokens}, fmt.Errorf("vault_edit: plan: %w", err)
	}
	if plan.Targets() == 0 && len(plan.Rejected) == 0 {
		summary := plan.Summary
		if summary == "" {
			summary = noEditsReply
		}
		return agent.Result{ResponseText: summary, TokensUsed: tokens}, nil
	}

	report, err := bulkedit.Apply(ctx, frontmatter.NewEditor(mc.Vault), plan, e.limit, log)
	var tooMany *apperr.TooManyEditTargetsError
	if errors.As(err, &tooMany) {
		log.Warn("vault_edit: refused", slog.String("error", err.Error()))
		return agent.Result{ResponseText: fmt.Sprintf(tooManyFormat, tooMany.Requested, tooMany.Limit), TokensUsed: tokens}, nil
	}
	if err != nil {
		return agent.Result{TokensUsed: tokens}, fmt.Errorf("vault_edit: apply: %w", err)
	}
	return agent.Result{ResponseText: bulkedit.Render(report), TokensUsed: tokens}, nil
}

// candidates resolves explicitly named files first and falls back to a
// keyword search.
func (e *Edit) candidates(ctx context.Context, mc agent.MessageContext, log *slog.Logger) ([]bulkedit.Candidate, error) {
	d := mc.Decision
	var out []bulkedit.Candidate
	seen := make(map[string]bool)
	for _, name := range d.TargetFiles {
		p, err := mc.Vault.Find(ctx, name, "")
		if err != nil {
			log.Info("vault_edit: target not found", slog.String("name", name), slog.String("error", err.Error()))
			continue
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		meta, _, err := mc.Vault.ReadDocument(ctx, p)
		if err != nil {
			log.Warn("vault_edit: read target failed", slog.String("path", p), slog.String("error", err.Error()))
			meta = frontmatter.NewMetadata()
		}
		out = append(out, bulkedit.Candidate{Path: p, Folder: storage.FolderOf(p), Filename: path.Base(p), Metadata: meta})
	}
	if len(out) > 0 {
		return out, nil
	}

	res, err := e.searcher.Search(ctx, search.Query{Terms: d.SearchTerms, Folders: d.Folders, Mode: search.ModeDefault})
	if err != nil {
		return nil, fmt.Errorf("vault_edit: search: %w", err)
	}
	for i, h := range res.Hits {
		if i == MaxCandidates {
			break
		}
		out = append(out, bulkedit.Candidate{Path: h.Path, Folder: h.Folder, Filename: h.Filename, Metadata: h.Metadata})
	}
	return out, nil
}
