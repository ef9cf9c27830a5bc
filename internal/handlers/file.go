package handlers

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/starford/synapse/internal/agent"
	"github.com/starford/synapse/internal/conversation"
	"github.com/starford/synapse/internal/extract"
	"github.com/starford/synapse/internal/frontmatter"
	"github.com/starford/synapse/internal/oracle"
)

//go:embed prompts/filing.md
var filingPrompt string

// File archives a message as a new vault document.
type File struct {
	base
	oracle oracle.Oracle
}

// NewFile creates the filing handler.
func NewFile(o oracle.Oracle, opts ...Option) *File {
	return &File{base: newBase(opts), oracle: o}
}

func (*File) Name() string { return "file" }

func (*File) Description() string {
	return "Archives content into the vault: notes, links, images, tasks, bookmarks, reference material or anything else to save. " +
		"Use it for URLs or attachments sent with little or no text, and for requests like \"save this\"."
}

func (f *File) Handle(ctx context.Context, mc agent.MessageContext) (agent.Result, error) {
	log := logger(mc)
	resp, err := f.oracle.Generate(ctx, oracle.Request{
		System: filingPrompt,
		Prompt: f.prompt(ctx, mc, log),
		Parts:  mc.Attachments,
	})
	if err != nil {
		return agent.Result{}, fmt.Errorf("file: generate: %w", err)
	}
	tokens := resp.Tokens

	obj, err := extract.Object(resp.Text)
	if err != nil {
		log.Info("file: reply is not a filing, relaying it")
		return agent.Result{ResponseText: strings.TrimSpace(resp.Text), TokensUsed: tokens}, nil
	}
	folder, _ := obj["folder"].(string)
	content, _ := obj["content"].(string)
	if strings.TrimSpace(folder) == "" || strings.TrimSpace(content) == "" {
		log.Warn("file: incomplete filing", slog.Any("keys", keys(obj)))
		return agent.Result{ResponseText: strings.TrimSpace(resp.Text), TokensUsed: tokens}, nil
	}
	slug, _ := obj["slug"].(string)
	if strings.TrimSpace(slug) == "" {
		slug = f.now().Format("capture-20060102-1504")
	}

	data := []byte(content)
	if stamped, err := frontmatter.InjectContent(data, "tokens_used", tokens); err != nil {
		log.Warn("file: cannot stamp token count", slog.String("error", err.Error()))
	} else {
		data = stamped
	}

	p, err := mc.Vault.Create(ctx, folder, slug, data)
	if err != nil {
		return agent.Result{TokensUsed: tokens}, fmt.Errorf("file: save: %w", err)
	}
	log.Info("file: filed", slog.String("path", p), slog.Int("tokens", tokens))
	return agent.Result{
		ResponseText: fmt.Sprintf("📂 Filed to `%s/` as `%s` (%d tokens)", path.Dir(p), path.Base(p), tokens),
		FiledPath:    p,
		TokensUsed:   tokens,
	}, nil
}

func (f *File) prompt(ctx context.Context, mc agent.MessageContext, log *slog.Logger) string {
	var b strings.Builder
	b.WriteString("## Context\n")
	fmt.Fprintf(&b, "Current time: %s\n", f.now().Format("2006-01-02T15:04:05"))
	fmt.Fprintf(&b, "Folders: %s\n", strings.Join(mc.Vault.Categories(), ", "))
	projects, err := mc.Vault.ListProjects(ctx)
	if err != nil {
		log.Warn("file: list projects failed", slog.String("error", err.Error()))
	}
	if len(projects) > 0 {
		fmt.Fprintf(&b, "Existing projects in the vault: [%s]. If the input relates to one, set project to its name.\n",
			strings.Join(projects, ", "))
	}
	if h := conversation.Render(mc.History); h != "" {
		b.WriteString("\n" + h)
	}
	b.WriteString("\n## Directives\n" + f.renderDirectives(ctx, log) + "\n")
	b.WriteString("\n## Input\n" + mc.Text + "\n")
	return b.String()
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
