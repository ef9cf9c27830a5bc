package bulkedit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/synapse/internal/apperr"
	"github.com/starford/synapse/internal/frontmatter"
)

// Status of one document in a report.
type Status string

const (
	StatusApplied   Status = "applied"
	StatusUnchanged Status = "unchanged"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
	StatusRejected  Status = "rejected"
)

// Outcome is the result for one document.
type Outcome struct {
	Document string               `json:"document"`
	Status   Status               `json:"status"`
	Changes  []frontmatter.Change `json:"changes,omitempty"`
	Reason   string               `json:"reason,omitempty"`
}

// Report aggregates per-document outcomes.
type Report struct {
	Summary  string    `json:"summary"`
	Outcomes []Outcome `json:"outcomes"`
}

// Count returns how many outcomes have status s.
func (r *Report) Count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

// Editor applies header updates to one document.
type Editor interface {
	Update(ctx context.Context, path string, updates map[string]any) ([]frontmatter.Change, error)
}

// Apply mutates the plan's documents through editor. A plan targeting more
// than limit documents is refused as a whole with a
// *apperr.TooManyEditTargetsError and no document is touched. Otherwise
// every document is attempted independently: one failure does not stop
// the rest.
func Apply(ctx context.Context, editor Editor, p *Plan, limit int, logger *slog.Logger) (*Report, error) {
	if limit <= 0 {
		limit = MaxTargets
	}
	rep := &Report{Summary: p.Summary}
	if p.Targets() > limit {
		err := &apperr.TooManyEditTargetsError{Requested: p.Targets(), Limit: limit}
		for _, e := range p.Entries {
			rep.Outcomes = append(rep.Outcomes, Outcome{Document: e.Path, Status: StatusRejected, Reason: "too many targets"})
		}
		return rep, err
	}

	for _, e := range p.Entries {
		if _, ok := p.allowed[e.Path]; !ok {
			rep.Outcomes = append(rep.Outcomes, Outcome{Document: e.Path, Status: StatusRejected, Reason: "not among the candidate documents"})
			continue
		}
		if err := ctx.Err(); err != nil {
			rep.Outcomes = append(rep.Outcomes, Outcome{Document: e.Path, Status: StatusSkipped, Reason: "cancelled"})
			continue
		}
		changes, err := editor.Update(ctx, e.Path, e.Updates)
		switch {
		case err != nil:
			logger.Error("bulkedit: update failed", slog.String("path", e.Path), slog.String("error", err.Error()))
			rep.Outcomes = append(rep.Outcomes, Outcome{Document: e.Path, Status: StatusFailed, Reason: failureReason(err)})
		case len(changes) == 0:
			rep.Outcomes = append(rep.Outcomes, Outcome{Document: e.Path, Status: StatusUnchanged})
		default:
			logger.Info("bulkedit: updated", slog.String("path", e.Path), slog.Int("fields", len(changes)))
			rep.Outcomes = append(rep.Outcomes, Outcome{Document: e.Path, Status: StatusApplied, Changes: changes})
		}
	}
	rep.Outcomes = append(rep.Outcomes, p.Rejected...)
	logger.Info("bulkedit: applied",
		slog.Int("applied", rep.Count(StatusApplied)),
		slog.Int("unchanged", rep.Count(StatusUnchanged)),
		slog.Int("failed", rep.Count(StatusFailed)),
		slog.Int("rejected", rep.Count(StatusRejected)))
	return rep, nil
}

// failureReason maps an error to text that is safe to show the user.
func failureReason(err error) string {
	switch {
	case apperr.IsNotFound(err):
		return "document no longer exists"
	case apperr.IsConflict(err):
		return "document changed while editing, try again"
	case apperr.IsMalformedHeader(err):
		return "metadata header is malformed"
	case apperr.IsPathEscape(err):
		return "path is outside the vault"
	default:
		return "could not be updated"
	}
}

// Render formats a report for the user.
func Render(r *Report) string {
	var lines []string
	if r.Summary != "" {
		lines = append(lines, "✏️ "+r.Summary)
	}
	var applied, unchanged, problems []Outcome
	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusApplied:
			applied = append(applied, o)
		case StatusUnchanged:
			unchanged = append(unchanged, o)
		default:
			problems = append(problems, o)
		}
	}
	if len(applied) > 0 {
		lines = append(lines, fmt.Sprintf("\n*Updated %d file(s):*", len(applied)))
		for _, o := range applied {
			parts := make([]string, len(o.Changes))
			for i, c := range o.Changes {
				parts[i] = c.String()
			}
			lines = append(lines, fmt.Sprintf("  • `%s` (%s)", o.Document, strings.Join(parts, ", ")))
		}
	}
	if len(unchanged) > 0 {
		lines = append(lines, fmt.Sprintf("\n%d file(s) already had those values.", len(unchanged)))
	}
	if len(problems) > 0 {
		lines = append(lines, fmt.Sprintf("\n⚠️ %d file(s) were not updated:", len(problems)))
		for _, o := range problems {
			reason := o.Reason
			if reason == "" {
				reason = string(o.Status)
			}
			lines = append(lines, fmt.Sprintf("  • `%s`: %s", o.Document, reason))
		}
	}
	if len(lines) == 0 {
		return "No changes were made."
	}
	return strings.Join(lines, "\n")
}
