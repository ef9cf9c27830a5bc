// Package briefing builds the daily summary of open actions, recent
// captures and media backlog, and publishes it on a cron schedule.
package briefing

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/starford/synapse/internal/frontmatter"
	"github.com/starford/synapse/internal/index"
)

// Folders read by Build.
const (
	ActionsFolder = "Actions"
	MediaFolder   = "Media"
)

const maxRecent = 5

// Source lists catalogued documents.
type Source interface {
	List(ctx context.Context, folders []string) ([]index.Row, error)
}

// Item is one line of a briefing section.
type Item struct {
	Path     string `json:"path"`
	Title    string `json:"title"`
	Project  string `json:"project,omitempty"`
	Priority string `json:"priority,omitempty"`
	Folder   string `json:"folder,omitempty"`
	Kind     string `json:"kind,omitempty"`
	Days     int    `json:"days,omitempty"` // overdue: days late; upcoming: days left
}

// Briefing is the structured daily summary.
type Briefing struct {
	Date         time.Time `json:"date"`
	Overdue      []Item    `json:"overdue,omitempty"`
	DueToday     []Item    `json:"due_today,omitempty"`
	Upcoming     []Item    `json:"upcoming,omitempty"`
	Recent       []Item    `json:"recent,omitempty"`
	RecentTotal  int       `json:"recent_total"`
	MediaSuggest *Item     `json:"media_suggestion,omitempty"`
}

// Builder assembles briefings from the catalog.
type Builder struct {
	src          Source
	categories   []string
	recentWindow time.Duration
	pick         func(n int) int
}

// NewBuilder creates a Builder. categories scopes the recent captures;
// recentWindow is how far back a capture counts as recent.
func NewBuilder(src Source, categories []string, recentWindow time.Duration) *Builder {
	if recentWindow <= 0 {
		recentWindow = 24 * time.Hour
	}
	return &Builder{src: src, categories: categories, recentWindow: recentWindow, pick: rand.IntN}
}

// Build computes the briefing for now.
func (b *Builder) Build(ctx context.Context, now time.Time) (*Briefing, error) {
	today := day(now)
	br := &Briefing{Date: today}

	actions, err := b.src.List(ctx, []string{ActionsFolder})
	if err != nil {
		return nil, fmt.Errorf("briefing: actions: %w", err)
	}
	for _, r := range actions {
		meta := parse(r)
		status := strings.ToLower(meta.String("status"))
		if status == "done" || status == "completed" {
			continue
		}
		due, err := time.ParseInLocation("2006-01-02", meta.String("due_date"), now.Location())
		if err != nil {
			continue
		}
		it := item(r, meta)
		diff := int(math.Round(due.Sub(today).Hours() / 24))
		switch {
		case diff < 0:
			it.Days = -diff
			br.Overdue = append(br.Overdue, it)
		case diff == 0:
			br.DueToday = append(br.DueToday, it)
		case diff <= 3:
			it.Days = diff
			br.Upcoming = append(br.Upcoming, it)
		}
	}
	sort.SliceStable(br.Overdue, func(i, j int) bool { return br.Overdue[i].Days > br.Overdue[j].Days })
	sort.SliceStable(br.Upcoming, func(i, j int) bool { return br.Upcoming[i].Days < br.Upcoming[j].Days })

	all, err := b.src.List(ctx, b.categories)
	if err != nil {
		return nil, fmt.Errorf("briefing: recent: %w", err)
	}
	var recent []index.Row
	for _, r := range all {
		if now.Sub(r.UpdatedAt) <= b.recentWindow && !r.UpdatedAt.After(now) {
			recent = append(recent, r)
		}
	}
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].UpdatedAt.After(recent[j].UpdatedAt) })
	br.RecentTotal = len(recent)
	for i, r := range recent {
		if i == maxRecent {
			break
		}
		br.Recent = append(br.Recent, item(r, parse(r)))
	}

	media, err := b.src.List(ctx, []string{MediaFolder})
	if err != nil {
		return nil, fmt.Errorf("briefing: media: %w", err)
	}
	var backlog []Item
	for _, r := range media {
		meta := parse(r)
		switch strings.ToLower(meta.String("status")) {
		case "", "backlog", "to-do", "todo", "want":
			backlog = append(backlog, item(r, meta))
		}
	}
	if len(backlog) > 0 {
		pick := backlog[b.pick(len(backlog))]
		br.MediaSuggest = &pick
	}
	return br, nil
}

// Empty reports whether there is nothing to mention.
func (br *Briefing) Empty() bool {
	return len(br.Overdue)+len(br.DueToday)+len(br.Upcoming)+len(br.Recent) == 0 && br.MediaSuggest == nil
}

// Render formats the briefing as a chat message.
func (br *Briefing) Render() string {
	if br.Empty() {
		return "☀️ All clear, nothing urgent today!"
	}
	var sections []string
	if len(br.Overdue) > 0 {
		lines := []string{"*🔴 Overdue*"}
		for _, it := range br.Overdue {
			lines = append(lines, fmt.Sprintf("  • ‼️ %s%s (%dd overdue)", it.Title, project(it), it.Days))
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}
	if len(br.DueToday) > 0 {
		lines := []string{"*📌 Due Today*"}
		for _, it := range br.DueToday {
			prio := ""
			if it.Priority != "" {
				prio = " [" + it.Priority + "]"
			}
			lines = append(lines, fmt.Sprintf("  • %s%s%s", it.Title, project(it), prio))
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}
	if len(br.Upcoming) > 0 {
		lines := []string{"*📅 Upcoming*"}
		for _, it := range br.Upcoming {
			lines = append(lines, fmt.Sprintf("  • %s%s (in %dd)", it.Title, project(it), it.Days))
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}
	if len(br.Recent) > 0 {
		lines := []string{"*📥 Recent Captures*"}
		for _, it := range br.Recent {
			lines = append(lines, fmt.Sprintf("  • %s → `%s/`", it.Title, it.Folder))
		}
		if more := br.RecentTotal - len(br.Recent); more > 0 {
			lines = append(lines, fmt.Sprintf("  _...and %d more_", more))
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}
	if br.MediaSuggest != nil {
		kind := br.MediaSuggest.Kind
		if kind == "" {
			kind = "media"
		}
		sections = append(sections, fmt.Sprintf("*🎬 Maybe today?*\n  • _%s_ (%s)", br.MediaSuggest.Title, kind))
	}
	return fmt.Sprintf("*☀️ Morning Briefing, %s*\n", br.Date.Format("Monday 02 January")) + strings.Join(sections, "\n\n")
}

func project(it Item) string {
	if it.Project == "" {
		return ""
	}
	return " (" + it.Project + ")"
}

func parse(r index.Row) *frontmatter.Metadata {
	meta, _, err := frontmatter.Parse(r.Content)
	if err != nil {
		return frontmatter.NewMetadata()
	}
	return meta
}

func item(r index.Row, meta *frontmatter.Metadata) Item {
	title := r.Title
	if title == "" {
		title = strings.TrimSuffix(r.Filename, ".md")
	}
	return Item{
		Path:     r.Path,
		Title:    title,
		Project:  meta.String("project"),
		Priority: meta.String("priority"),
		Folder:   r.Folder,
		Kind:     meta.String("media_type"),
	}
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
