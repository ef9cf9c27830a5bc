package bulkedit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/synapse/internal/conversation"
	"github.com/starford/synapse/internal/extract"
	"github.com/starford/synapse/internal/oracle"
)

const systemPrompt = `You plan metadata edits for notes in the user's markdown vault.

You receive a list of candidate notes with their current metadata fields,
the user's standing directives, the recent conversation and an edit request.
Decide which candidate notes the request applies to and which header fields
to change. Phrases like "those", "all of them" or "the first two" refer to
notes shown earlier in the conversation.

Rules:
- Only edit notes from the candidate list. Never invent file names.
- Only change metadata fields; never the note body.
- To remove a field, set its value to null.
- Dates use YYYY-MM-DD. Tags are a list of strings without '#'.
- If nothing should change, return an empty "edits" list and explain in "summary".

Return only JSON:
{"edits": [{"filename": "name.md", "folder": "Folder", "frontmatter_updates": {"field": "value"}}],
 "summary": "one sentence describing the change"}`

// PlanRequest is the input to Planner.Plan.
type PlanRequest struct {
	Description string
	Candidates  []Candidate
	History     []conversation.Turn
	Directives  string
}

// Planner asks the oracle for an edit plan and validates it.
type Planner struct {
	oracle oracle.Oracle
	logger *slog.Logger
	now    func() time.Time
}

// NewPlanner creates a Planner. A nil logger discards output.
func NewPlanner(o oracle.Oracle, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Planner{oracle: o, logger: logger, now: time.Now}
}

type planReply struct {
	Edits   []Proposal `json:"edits"`
	Summary string     `json:"summary"`
}

// Plan makes one oracle call and returns the validated plan together with
// the tokens it used. Unparseable output yields an *apperr.ExtractionError.
func (p *Planner) Plan(ctx context.Context, req PlanRequest) (*Plan, int, error) {
	resp, err := p.oracle.Generate(ctx, oracle.Request{
		System: systemPrompt,
		Prompt: p.prompt(req),
	})
	if err != nil {
		return nil, 0, err
	}

	var reply planReply
	obj, err := extract.Object(resp.Text)
	if err != nil {
		return nil, resp.Tokens, err
	}
	// Decode field by field so one odd entry does not discard the plan.
	if s, ok := obj["summary"].(string); ok {
		reply.Summary = s
	}
	if raw, ok := obj["edits"].([]any); ok {
		for _, item := range raw {
			b, _ := json.Marshal(item)
			var prop Proposal
			if err := json.Unmarshal(b, &prop); err != nil {
				p.logger.Warn("bulkedit: dropping malformed proposal", slog.String("error", err.Error()))
				continue
			}
			if prop.Updates == nil {
				// Accept "updates" as an alias.
				var alt struct {
					Updates map[string]any `json:"updates"`
				}
				_ = json.Unmarshal(b, &alt)
				prop.Updates = alt.Updates
			}
			reply.Edits = append(reply.Edits, prop)
		}
	}

	plan := Validate(req.Candidates, reply.Edits, reply.Summary)
	p.logger.Info("bulkedit: planned",
		slog.Int("proposed", len(reply.Edits)),
		slog.Int("targets", plan.Targets()),
		slog.Int("rejected", len(plan.Rejected)),
		slog.Int("tokens", resp.Tokens))
	return plan, resp.Tokens, nil
}

func (p *Planner) prompt(req PlanRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current time: %s\n\n", p.now().Format("2006-01-02 15:04"))
	b.WriteString("## Candidate Notes\n")
	for _, c := range req.Candidates {
		fmt.Fprintf(&b, "- %s (in %s/) [%s]\n", c.Filename, c.Folder, c.Metadata.Inline())
	}
	if req.Directives != "" {
		b.WriteString("\n## Directives\n" + req.Directives + "\n")
	}
	if h := conversation.Render(req.History); h != "" {
		b.WriteString("\n" + h)
	}
	b.WriteString("\n## Edit Request\n" + req.Description + "\n")
	return b.String()
}
