package handlers

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/synapse/internal/agent"
	"github.com/starford/synapse/internal/bulkedit"
	"github.com/starford/synapse/internal/directive"
	"github.com/starford/synapse/internal/oracle"
	"github.com/starford/synapse/internal/search"
	"github.com/starford/synapse/internal/testutil"
	"github.com/starford/synapse/internal/vault"
)

func clock() Option {
	return WithClock(func() time.Time { return testutil.Clock })
}

func messageContext(v *vault.Service, text string, d agent.Decision) agent.MessageContext {
	return agent.MessageContext{RequestID: "test", Logger: testutil.Logger(), Text: text, Vault: v, Decision: d}
}

func engine(v *vault.Service, opts ...search.Option) *search.Engine {
	return search.NewEngine(v, append([]search.Option{search.WithFolders(v.Categories())}, opts...)...)
}

func TestFileFilesDocument(t *testing.T) {
	v := testutil.TestVault(t, map[string]string{"Projects/Homelab/plan.md": "---\ntitle: Plan\n---\n"})
	o := testutil.NewScriptedOracle("```json\n" +
		`{"folder": "actions", "slug": "buy-milk", "content": "---\ntitle: Buy milk\ncategory: Actions\n---\nBuy milk.\n"}` +
		"\n```")
	parts := []oracle.Part{{MediaType: "image/png", Data: []byte{1, 2}}}
	mc := messageContext(v, "buy milk tomorrow", agent.Decision{Intent: "file"})
	mc.Attachments = parts

	res, err := NewFile(o, clock()).Handle(context.Background(), mc)
	if err != nil {
		t.Fatal(err)
	}
	want := agent.Result{
		ResponseText: "📂 Filed to `Actions/` as `buy-milk.md` (10 tokens)",
		FiledPath:    "Actions/buy-milk.md",
		TokensUsed:   10,
	}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("result (-want +got):\n%s", diff)
	}
	got := testutil.ReadFile(t, v, "Actions/buy-milk.md")
	if got != "---\ntitle: Buy milk\ncategory: Actions\ntokens_used: 10\n---\nBuy milk.\n" {
		t.Errorf("document = %q", got)
	}

	req := o.Requests[0]
	if !strings.Contains(req.Prompt, "Existing projects in the vault: [Homelab]") {
		t.Errorf("projects missing from prompt:\n%s", req.Prompt)
	}
	if !strings.Contains(req.Prompt, "## Input\nbuy milk tomorrow") {
		t.Errorf("input missing from prompt:\n%s", req.Prompt)
	}
	if diff := cmp.Diff(parts, req.Parts); diff != "" {
		t.Errorf("parts (-want +got):\n%s", diff)
	}
}

func TestFileDefaultSlug(t *testing.T) {
	v := testutil.TestVault(t, nil)
	o := testutil.NewScriptedOracle(`{"folder": "Nowhere", "content": "---\ntitle: x\n---\nx\n"}`)
	res, err := NewFile(o, clock()).Handle(context.Background(), messageContext(v, "x", agent.Decision{}))
	if err != nil {
		t.Fatal(err)
	}
	if res.FiledPath != "Inbox/capture-20240514-0930.md" {
		t.Errorf("path = %q", res.FiledPath)
	}
}

func TestFileRelaysPlainText(t *testing.T) {
	for name, reply := range map[string]string{
		"prose":      "Hello! Nothing to file here.",
		"incomplete": `{"slug": "x"}`,
	} {
		t.Run(name, func(t *testing.T) {
			v := testutil.TestVault(t, nil)
			o := testutil.NewScriptedOracle(reply)
			res, err := NewFile(o).Handle(context.Background(), messageContext(v, "hi", agent.Decision{}))
			if err != nil {
				t.Fatal(err)
			}
			if res.ResponseText != reply || res.FiledPath != "" || res.TokensUsed != 10 {
				t.Errorf("res = %+v", res)
			}
			rows, _ := v.List(context.Background(), nil)
			if len(rows) != 0 {
				t.Errorf("documents created: %d", len(rows))
			}
		})
	}
}

func mediaVault(t *testing.T) *vault.Service {
	return testutil.TestVault(t, map[string]string{
		"Media/dune.md":     "---\ntitle: Dune\nmedia_type: book\nstatus: backlog\n---\nDesert planet, spice and Kubernetes jokes.\n",
		"Media/hyperion.md": "---\ntitle: Hyperion\nmedia_type: book\n---\nPilgrims.\n",
		"Actions/taxes.md":  "---\ntitle: Taxes\nstatus: open\n---\nFile them.\n",
	})
}

func TestQueryRetriesWithoutTerms(t *testing.T) {
	v := mediaVault(t)
	o := testutil.NewScriptedOracle("You have two books: Dune and Hyperion.")
	d := agent.Decision{Intent: "vault_query", SearchTerms: []string{"zzz"}, Folders: []string{"media"}, Question: "how many books?"}

	res, err := NewQuery(o, engine(v)).Handle(context.Background(), messageContext(v, "books?", d))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(agent.Result{ResponseText: "You have two books: Dune and Hyperion.", TokensUsed: 10}, res); diff != "" {
		t.Errorf("result (-want +got):\n%s", diff)
	}
	prompt := o.LastPrompt()
	for _, want := range []string{"**dune.md** (in Media/)", "**hyperion.md** (in Media/)", "## Question\nhow many books?"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if strings.Contains(prompt, "taxes.md") {
		t.Error("folder filter ignored")
	}
	if strings.Contains(prompt, "Desert planet") {
		t.Error("body leaked into default-mode prompt")
	}
}

func TestQueryGrepSnippets(t *testing.T) {
	v := mediaVault(t)
	o := testutil.NewScriptedOracle("Dune mentions it.")
	d := agent.Decision{SearchTerms: []string{"kubernetes"}, Mode: "grep"}
	if _, err := NewQuery(o, engine(v)).Handle(context.Background(), messageContext(v, "which note mentions kubernetes?", d)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(o.LastPrompt(), "Kubernetes jokes") {
		t.Errorf("snippet missing:\n%s", o.LastPrompt())
	}
}

func TestQueryNoMatches(t *testing.T) {
	v := testutil.TestVault(t, nil)
	o := testutil.NewScriptedOracle("unused")
	res, err := NewQuery(o, engine(v)).Handle(context.Background(), messageContext(v, "anything?", agent.Decision{SearchTerms: []string{"x"}}))
	if err != nil {
		t.Fatal(err)
	}
	if res.ResponseText != noMatchesReply || o.Calls() != 0 {
		t.Errorf("res = %+v, calls = %d", res, o.Calls())
	}
}

func newEdit(o oracle.Oracle, v *vault.Service) *Edit {
	return NewEdit(bulkedit.NewPlanner(o, testutil.Logger()), engine(v, search.WithTopN(MaxCandidates)), clock())
}

func TestEditTargetFiles(t *testing.T) {
	v := mediaVault(t)
	o := testutil.NewScriptedOracle(`{"edits": [{"filename": "taxes.md", "folder": "Actions", "frontmatter_updates": {"status": "done"}}], "summary": "Marked taxes done."}`)
	d := agent.Decision{Intent: "vault_edit", TargetFiles: []string{"taxes"}, EditDescription: "mark it done"}

	res, err := newEdit(o, v).Handle(context.Background(), messageContext(v, "mark taxes done", d))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"✏️ Marked taxes done.", "*Updated 1 file(s):*", "status: open → done"} {
		if !strings.Contains(res.ResponseText, want) {
			t.Errorf("reply missing %q:\n%s", want, res.ResponseText)
		}
	}
	meta, body, err := v.ReadDocument(context.Background(), "Actions/taxes.md")
	if err != nil {
		t.Fatal(err)
	}
	if meta.String("status") != "done" || string(body) != "File them.\n" {
		t.Errorf("status = %q, body = %q", meta.String("status"), body)
	}
	prompt := o.LastPrompt()
	if !strings.Contains(prompt, "taxes.md (in Actions/)") || strings.Contains(prompt, "dune.md") {
		t.Errorf("candidates not limited to targets:\n%s", prompt)
	}
}

func TestEditRefusesOverCap(t *testing.T) {
	files := make(map[string]string)
	var edits []string
	for i := 1; i <= 11; i++ {
		name := fmt.Sprintf("task-%02d.md", i)
		files["Actions/"+name] = "---\nstatus: open\n---\n"
		edits = append(edits, fmt.Sprintf(`{"filename": %q, "frontmatter_updates": {"status": "done"}}`, name))
	}
	v := testutil.TestVault(t, files)
	o := testutil.NewScriptedOracle(`{"edits": [` + strings.Join(edits, ",") + `], "summary": "all done"}`)

	res, err := newEdit(o, v).Handle(context.Background(), messageContext(v, "mark all tasks done", agent.Decision{Folders: []string{"Actions"}}))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.ResponseText, "modify 11 files, but the safety limit is 10") {
		t.Errorf("reply = %q", res.ResponseText)
	}
	for name := range files {
		if got := testutil.ReadFile(t, v, name); got != "---\nstatus: open\n---\n" {
			t.Errorf("%s mutated: %q", name, got)
		}
	}
}

func TestEditNoCandidates(t *testing.T) {
	v := testutil.TestVault(t, nil)
	o := testutil.NewScriptedOracle("unused")
	res, err := newEdit(o, v).Handle(context.Background(), messageContext(v, "tag everything", agent.Decision{}))
	if err != nil {
		t.Fatal(err)
	}
	if res.ResponseText != noCandidatesReply || o.Calls() != 0 {
		t.Errorf("res = %+v, calls = %d", res, o.Calls())
	}
}

func TestEditUnparseablePlan(t *testing.T) {
	v := mediaVault(t)
	o := testutil.NewScriptedOracle("I'm not sure which notes you mean.")
	res, err := newEdit(o, v).Handle(context.Background(), messageContext(v, "fix them", agent.Decision{}))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(agent.Result{ResponseText: noPlanReply, TokensUsed: 10}, res); diff != "" {
		t.Errorf("result (-want +got):\n%s", diff)
	}
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	v := testutil.TestVault(t, nil)
	store := directive.NewStore(v, "")
	h := NewMemory(store)
	run := func(text string, d agent.Decision) string {
		t.Helper()
		res, err := h.Handle(ctx, messageContext(v, text, d))
		if err != nil {
			t.Fatal(err)
		}
		return res.ResponseText
	}

	if got := run("what do you remember?", agent.Decision{Action: ActionList}); !strings.Contains(got, "don't have any directives") {
		t.Errorf("empty list reply = %q", got)
	}
	if got := run("remember: tag recipes with #cooking", agent.Decision{Action: ActionAdd, Directive: "tag recipes with #cooking"}); !strings.Contains(got, "Directive #1") {
		t.Errorf("add reply = %q", got)
	}
	if got := run("remember: be brief", agent.Decision{Action: ActionAdd}); !strings.Contains(got, "#2: be brief") {
		t.Errorf("add from text reply = %q", got)
	}
	if got := run("list", agent.Decision{Action: ActionList}); !strings.Contains(got, "1. tag recipes with #cooking\n2. be brief") {
		t.Errorf("list reply = %q", got)
	}
	if got := run("forget 5", agent.Decision{Action: ActionRemove, Index: 5}); !strings.Contains(got, "no directive #5") {
		t.Errorf("out of range reply = %q", got)
	}
	if got := run("forget 1", agent.Decision{Action: ActionRemove, Index: 1}); !strings.Contains(got, "Removed directive #1: tag recipes with #cooking") {
		t.Errorf("remove reply = %q", got)
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"be brief"}, list); diff != "" {
		t.Errorf("stored list (-want +got):\n%s", diff)
	}
}
