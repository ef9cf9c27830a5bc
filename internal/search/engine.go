// Package search implements the three document search strategies used to
// answer questions about the vault: keyword/metadata match, a full metadata
// index, and a full-text grep with bounded context snippets.
package search

import (
	"context"
	"io"
	"log/slog"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/starford/synapse/internal/frontmatter"
	"github.com/starford/synapse/internal/index"
)

// Mode selects a search strategy.
type Mode string

const (
	ModeDefault  Mode = "default"
	ModeMetadata Mode = "metadata"
	ModeGrep     Mode = "grep"
)

// ParseMode maps a router-supplied mode name to a Mode, defaulting to ModeDefault.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeMetadata:
		return ModeMetadata
	case ModeGrep:
		return ModeGrep
	default:
		return ModeDefault
	}
}

// AllFolders is the folder name that selects every searchable folder.
const AllFolders = "all"

// Defaults.
const (
	DefaultTopN        = 30
	DefaultWindow      = 120
	DefaultDocSnippets = 3
)

// Source lists catalogued documents.
type Source interface {
	List(ctx context.Context, folders []string) ([]index.Row, error)
}

// Query describes one search.
type Query struct {
	Terms   []string
	Folders []string
	Mode    Mode
}

// Snippet is a bounded piece of body text around one grep match.
type Snippet struct {
	Term string `json:"term"`
	Text string `json:"text"`
}

// Hit is one matching document. Bodies are never included; grep hits carry
// snippets instead.
type Hit struct {
	Path      string                `json:"path"`
	Folder    string                `json:"folder"`
	Filename  string                `json:"filename"`
	Title     string                `json:"title"`
	Category  string                `json:"category"`
	Tags      []string              `json:"tags,omitempty"`
	Size      int64                 `json:"size_bytes"`
	WordCount int                   `json:"word_count"`
	UpdatedAt time.Time             `json:"updated_at"`
	Metadata  *frontmatter.Metadata `json:"metadata"`
	Score     int                   `json:"score,omitempty"`
	Matches   int                   `json:"matches,omitempty"`
	Snippets  []Snippet             `json:"snippets,omitempty"`
}

// Result is the outcome of a search.
type Result struct {
	Mode  Mode  `json:"mode"`
	Hits  []Hit `json:"hits"`
	Total int   `json:"total"` // matching documents before the top-N cap
}

// Engine runs searches over a Source.
type Engine struct {
	src         Source
	folders     []string
	topN        int
	window      int
	docSnippets int
	logger      *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithFolders restricts searches to folders; requested folders outside
// this list are ignored.
func WithFolders(folders []string) Option {
	return func(e *Engine) { e.folders = append([]string(nil), folders...) }
}

// WithTopN caps default and grep results.
func WithTopN(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.topN = n
		}
	}
}

// WithWindow sets the grep snippet width in bytes.
func WithWindow(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.window = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a search engine.
func NewEngine(src Source, opts ...Option) *Engine {
	e := &Engine{
		src:         src,
		topN:        DefaultTopN,
		window:      DefaultWindow,
		docSnippets: DefaultDocSnippets,
		logger:      slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Search runs q.
func (e *Engine) Search(ctx context.Context, q Query) (*Result, error) {
	rows, err := e.src.List(ctx, e.resolveFolders(q.Folders))
	if err != nil {
		return nil, err
	}
	terms := cleanTerms(q.Terms)
	mode := q.Mode
	if mode == "" {
		mode = ModeDefault
	}

	var res *Result
	switch mode {
	case ModeMetadata:
		res = e.metadata(rows)
	case ModeGrep:
		res = e.grep(rows, terms)
	default:
		res = e.keyword(rows, terms)
	}
	e.logger.Debug("search: done",
		slog.String("mode", string(res.Mode)),
		slog.Int("terms", len(terms)),
		slog.Int("documents", len(rows)),
		slog.Int("total", res.Total))
	return res, nil
}

// keyword scores each document by how many terms occur in its file stem or
// metadata values. Without terms every document matches.
func (e *Engine) keyword(rows []index.Row, terms []string) *Result {
	lower := make([]string, len(terms))
	for i, t := range terms {
		lower[i] = strings.ToLower(t)
	}
	var hits []Hit
	for _, r := range rows {
		meta, _ := header(r.Content)
		score := 0
		if len(lower) > 0 {
			haystack := searchable(r, meta)
			for _, t := range lower {
				if strings.Contains(haystack, t) {
					score++
				}
			}
			if score == 0 {
				continue
			}
		}
		h := newHit(r, meta)
		h.Score = score
		hits = append(hits, h)
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Path < hits[j].Path
	})
	return e.capped(ModeDefault, hits)
}

// metadata returns every document in scope, ordered by path.
func (e *Engine) metadata(rows []index.Row) *Result {
	hits := make([]Hit, 0, len(rows))
	for _, r := range rows {
		meta, _ := header(r.Content)
		hits = append(hits, newHit(r, meta))
	}
	return &Result{Mode: ModeMetadata, Hits: hits, Total: len(hits)}
}

// grep scans bodies for case-insensitive literal occurrences of each term.
func (e *Engine) grep(rows []index.Row, terms []string) *Result {
	if len(terms) == 0 {
		return &Result{Mode: ModeGrep}
	}
	patterns := make([]*regexp.Regexp, len(terms))
	for i, t := range terms {
		patterns[i] = regexp.MustCompile("(?i)" + regexp.QuoteMeta(t))
	}

	var hits []Hit
	for _, r := range rows {
		meta, body := header(r.Content)
		text := string(body)
		total := 0
		var snippets []Snippet
		for i, re := range patterns {
			locs := re.FindAllStringIndex(text, -1)
			total += len(locs)
			for _, loc := range locs {
				if len(snippets) >= e.docSnippets {
					break
				}
				snippets = append(snippets, Snippet{Term: terms[i], Text: excerpt(text, loc[0], loc[1], e.window)})
			}
		}
		if total == 0 {
			continue
		}
		h := newHit(r, meta)
		h.Matches = total
		h.Snippets = snippets
		hits = append(hits, h)
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Matches != hits[j].Matches {
			return hits[i].Matches > hits[j].Matches
		}
		return hits[i].Path < hits[j].Path
	})
	return e.capped(ModeGrep, hits)
}

func (e *Engine) capped(mode Mode, hits []Hit) *Result {
	res := &Result{Mode: mode, Total: len(hits), Hits: hits}
	if len(hits) > e.topN {
		res.Hits = hits[:e.topN]
	}
	return res
}

// resolveFolders maps requested folder names onto the configured folder
// list. "all", no folders, or no recognised folder selects everything.
func (e *Engine) resolveFolders(requested []string) []string {
	var out []string
	for _, f := range requested {
		f = strings.Trim(strings.TrimSpace(f), "/")
		if strings.EqualFold(f, AllFolders) {
			return e.folders
		}
		if len(e.folders) == 0 {
			if f != "" {
				out = append(out, f)
			}
			continue
		}
		for _, known := range e.folders {
			if strings.EqualFold(known, f) {
				out = append(out, known)
				break
			}
		}
	}
	if len(out) == 0 {
		if len(requested) > 0 {
			e.logger.Debug("search: no recognised folders, searching all", slog.Any("requested", requested))
		}
		return e.folders
	}
	return out
}

func newHit(r index.Row, meta *frontmatter.Metadata) Hit {
	return Hit{
		Path:      r.Path,
		Folder:    r.Folder,
		Filename:  r.Filename,
		Title:     r.Title,
		Category:  r.Category,
		Tags:      r.Tags,
		Size:      r.Size,
		WordCount: len(strings.Fields(string(r.Content))),
		UpdatedAt: r.UpdatedAt,
		Metadata:  meta,
	}
}

// header parses the metadata header, treating a malformed one as absent.
func header(content []byte) (*frontmatter.Metadata, []byte) {
	meta, body, err := frontmatter.Parse(content)
	if err != nil {
		return frontmatter.NewMetadata(), content
	}
	return meta, body
}

func searchable(r index.Row, meta *frontmatter.Metadata) string {
	var b strings.Builder
	b.WriteString(strings.TrimSuffix(path.Base(r.Path), ".md"))
	for _, k := range meta.Keys() {
		b.WriteByte(' ')
		b.WriteString(meta.String(k))
	}
	return strings.ToLower(b.String())
}

func cleanTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

var whitespace = regexp.MustCompile(`\s+`)

// excerpt returns about width bytes of text centred on [start, end),
// aligned to rune boundaries, with whitespace collapsed.
func excerpt(text string, start, end, width int) string {
	pad := (width - (end - start)) / 2
	if pad < 0 {
		pad = 0
	}
	from, to := start-pad, end+pad
	if from < 0 {
		from = 0
	}
	if to > len(text) {
		to = len(text)
	}
	for from > 0 && !runeStart(text[from]) {
		from--
	}
	for to < len(text) && !runeStart(text[to]) {
		to++
	}
	s := strings.TrimSpace(whitespace.ReplaceAllString(text[from:to], " "))
	if from > 0 {
		s = "…" + s
	}
	if to < len(text) {
		s += "…"
	}
	return s
}

func runeStart(b byte) bool { return b&0xC0 != 0x80 }
