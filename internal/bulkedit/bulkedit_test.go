package bulkedit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/synapse/internal/apperr"
	"github.com/starford/synapse/internal/checksum"
	"github.com/starford/synapse/internal/frontmatter"
	"github.com/starford/synapse/internal/oracle"
)

var discard = slog.New(slog.NewJSONHandler(io.Discard, nil))

type memStore struct {
	docs    map[string][]byte
	writes  map[string]int
	failing map[string]error
}

func newMemStore() *memStore {
	return &memStore{docs: map[string][]byte{}, writes: map[string]int{}, failing: map[string]error{}}
}

func (s *memStore) Read(_ context.Context, p string) ([]byte, error) {
	if err := s.failing[p]; err != nil {
		return nil, err
	}
	b, ok := s.docs[p]
	if !ok {
		return nil, &apperr.DocumentNotFoundError{Path: p}
	}
	return b, nil
}

func (s *memStore) Write(_ context.Context, p string, content []byte, ifMatch string) error {
	if cur, ok := s.docs[p]; ok && !checksum.Matches(cur, ifMatch) {
		return apperr.ErrConflict
	}
	s.docs[p] = content
	s.writes[p]++
	return nil
}

func (s *memStore) totalWrites() int {
	n := 0
	for _, w := range s.writes {
		n += w
	}
	return n
}

func setup(paths ...string) (*memStore, *frontmatter.Editor, []Candidate) {
	store := newMemStore()
	var cands []Candidate
	for _, p := range paths {
		store.docs[p] = []byte("---\ntitle: T\npriority: low\n---\nbody of " + p + "\n")
		folder, file, _ := strings.Cut(p, "/")
		meta, _, _ := frontmatter.Split(store.docs[p])
		cands = append(cands, Candidate{Path: p, Folder: folder, Filename: file, Metadata: meta})
	}
	return store, frontmatter.NewEditor(store), cands
}

func TestApplyOnlyTouchesCandidates(t *testing.T) {
	store, ed, cands := setup("Actions/a.md", "Actions/b.md")
	store.docs["Reference/secret.md"] = []byte("---\npriority: low\n---\n")

	plan := Validate(cands, []Proposal{
		{Filename: "a.md", Updates: map[string]any{"priority": "high"}},
		{Filename: "secret.md", Folder: "Reference", Updates: map[string]any{"priority": "high"}},
		{Path: "Reference/secret.md", Updates: map[string]any{"priority": "high"}},
		{Filename: "../../etc/passwd", Updates: map[string]any{"x": 1.0}},
	}, "raise priority")

	rep, err := Apply(context.Background(), ed, plan, MaxTargets, discard)
	if err != nil {
		t.Fatal(err)
	}
	if store.writes["Reference/secret.md"] != 0 {
		t.Fatal("non-candidate document was mutated")
	}
	if store.totalWrites() != 1 || store.writes["Actions/a.md"] != 1 {
		t.Errorf("writes = %v", store.writes)
	}
	if rep.Count(StatusApplied) != 1 || rep.Count(StatusRejected) != 3 {
		t.Errorf("outcomes = %+v", rep.Outcomes)
	}
}

func TestApplyRefusesHandBuiltEntries(t *testing.T) {
	store, ed, _ := setup("Actions/a.md")
	plan := &Plan{Entries: []Entry{{Path: "Actions/a.md", Updates: map[string]any{"priority": "high"}}}}
	rep, err := Apply(context.Background(), ed, plan, MaxTargets, discard)
	if err != nil {
		t.Fatal(err)
	}
	if store.totalWrites() != 0 || rep.Count(StatusRejected) != 1 {
		t.Errorf("writes = %d outcomes = %+v", store.totalWrites(), rep.Outcomes)
	}
}

func TestApplyOverCapMutatesNothing(t *testing.T) {
	var paths []string
	for i := 0; i < 11; i++ {
		paths = append(paths, fmt.Sprintf("Actions/task-%02d.md", i))
	}
	store, ed, cands := setup(paths...)
	var props []Proposal
	for _, c := range cands {
		props = append(props, Proposal{Filename: c.Filename, Folder: c.Folder, Updates: map[string]any{"status": "done"}})
	}

	rep, err := Apply(context.Background(), ed, Validate(cands, props, "close all"), MaxTargets, discard)
	var tooMany *apperr.TooManyEditTargetsError
	if !errors.As(err, &tooMany) {
		t.Fatalf("err = %v, want TooManyEditTargetsError", err)
	}
	if tooMany.Requested != 11 || tooMany.Limit != 10 {
		t.Errorf("err = %+v", tooMany)
	}
	if store.totalWrites() != 0 {
		t.Errorf("%d documents mutated, want 0", store.totalWrites())
	}
	if rep.Count(StatusRejected) != 11 {
		t.Errorf("outcomes = %+v", rep.Outcomes)
	}
}

func TestNullDeletesField(t *testing.T) {
	store, ed, cands := setup("Actions/a.md")
	plan := Validate(cands, []Proposal{{Filename: "a", Updates: map[string]any{"priority": nil, "estimate": 3.0}}}, "")
	rep, err := Apply(context.Background(), ed, plan, MaxTargets, discard)
	if err != nil {
		t.Fatal(err)
	}
	want := "---\ntitle: T\nestimate: 3\n---\nbody of Actions/a.md\n"
	if got := string(store.docs["Actions/a.md"]); got != want {
		t.Errorf("document = %q, want %q", got, want)
	}
	if !strings.Contains(Render(rep), frontmatter.RemovedMarker) {
		t.Errorf("report does not mark removal:\n%s", Render(rep))
	}
}

func TestPartialFailureIsIndependent(t *testing.T) {
	store, ed, cands := setup("Actions/a.md", "Actions/b.md", "Actions/c.md")
	store.failing["Actions/b.md"] = errors.New("disk on fire")
	var props []Proposal
	for _, c := range cands {
		props = append(props, Proposal{Path: c.Path, Updates: map[string]any{"status": "done"}})
	}
	rep, err := Apply(context.Background(), ed, Validate(cands, props, ""), MaxTargets, discard)
	if err != nil {
		t.Fatal(err)
	}
	var got []Status
	for _, o := range rep.Outcomes {
		got = append(got, o.Status)
	}
	if diff := cmp.Diff([]Status{StatusApplied, StatusFailed, StatusApplied}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if strings.Contains(Render(rep), "disk on fire") {
		t.Error("internal error detail leaked into report")
	}
}

func TestValidateAmbiguityAndMerge(t *testing.T) {
	_, _, cands := setup("Actions/call.md", "Inbox/call.md")
	plan := Validate(cands, []Proposal{
		{Filename: "call.md", Updates: map[string]any{"a": "1"}},
		{Filename: "call", Folder: "inbox", Updates: map[string]any{"a": "1"}},
		{Filename: "CALL.md", Folder: "Inbox", Updates: map[string]any{"b": "2"}},
		{Filename: "call.md", Folder: "Actions"},
	}, "")
	if len(plan.Entries) != 1 || plan.Entries[0].Path != "Inbox/call.md" {
		t.Fatalf("entries = %+v", plan.Entries)
	}
	if diff := cmp.Diff(map[string]any{"a": "1", "b": "2"}, plan.Entries[0].Updates); diff != "" {
		t.Errorf("merged updates (-want +got):\n%s", diff)
	}
	if len(plan.Rejected) != 2 {
		t.Errorf("rejected = %+v", plan.Rejected)
	}
}

func TestPlannerParsesFencedReply(t *testing.T) {
	_, _, cands := setup("Media/dune.md", "Media/alien.md")
	var prompt string
	o := oracle.Func(func(_ context.Context, req oracle.Request) (oracle.Response, error) {
		prompt = req.Prompt
		return oracle.Response{
			Text:   "Here is the plan:\n```json\n{\"edits\": [{\"filename\": \"dune.md\", \"folder\": \"Media\", \"frontmatter_updates\": {\"status\": \"watched\"}}], \"summary\": \"Marked Dune as watched\"}\n```",
			Tokens: 42,
		}, nil
	})
	plan, tokens, err := NewPlanner(o, nil).Plan(context.Background(), PlanRequest{
		Description: "mark dune as watched",
		Candidates:  cands,
	})
	if err != nil {
		t.Fatal(err)
	}
	if tokens != 42 || plan.Summary != "Marked Dune as watched" || plan.Targets() != 1 {
		t.Errorf("plan = %+v tokens = %d", plan, tokens)
	}
	if !strings.Contains(prompt, "- dune.md (in Media/) [title=T, priority=low]") {
		t.Errorf("candidate listing missing from prompt:\n%s", prompt)
	}
}

func TestPlannerUnparseable(t *testing.T) {
	o := oracle.Func(func(context.Context, oracle.Request) (oracle.Response, error) {
		return oracle.Response{Text: "I'm not sure what you mean.", Tokens: 3}, nil
	})
	_, tokens, err := NewPlanner(o, nil).Plan(context.Background(), PlanRequest{Description: "?"})
	var ee *apperr.ExtractionError
	if !errors.As(err, &ee) || tokens != 3 {
		t.Fatalf("err = %v tokens = %d", err, tokens)
	}
}
