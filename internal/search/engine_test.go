package search

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/synapse/internal/index"
)

type rows []index.Row

func (r rows) List(_ context.Context, folders []string) ([]index.Row, error) {
	if len(folders) == 0 {
		return r, nil
	}
	var out []index.Row
	for _, row := range r {
		for _, f := range folders {
			if strings.EqualFold(row.Folder, f) {
				out = append(out, row)
			}
		}
	}
	return out, nil
}

func doc(p, content string) index.Row {
	folder := ""
	if i := strings.Index(p, "/"); i >= 0 {
		folder = p[:i]
	}
	return index.Row{
		Path:      p,
		Folder:    folder,
		Filename:  p[strings.LastIndex(p, "/")+1:],
		Size:      int64(len(content)),
		Content:   []byte(content),
		UpdatedAt: time.Date(2024, 1, 2, 3, 4, 0, 0, time.UTC),
	}
}

func paths(res *Result) []string {
	var out []string
	for _, h := range res.Hits {
		out = append(out, h.Path)
	}
	return out
}

var folders = []string{"Projects", "Actions", "Media", "Reference", "Inbox"}

func TestGrepFindsSingleDocument(t *testing.T) {
	var src rows
	for i := 0; i < 9; i++ {
		src = append(src, doc(fmt.Sprintf("Reference/other-%d.md", i),
			"---\ntitle: Other\n---\nNotes about gardening, cooking and the weather.\n"))
	}
	src = append(src, doc("Reference/cluster.md",
		"---\ntitle: Cluster\n---\nWe migrated the homelab to Kubernetes last spring and it has been stable.\n"))

	res, err := NewEngine(src, WithFolders(folders)).Search(context.Background(), Query{Terms: []string{"Kubernetes"}, Mode: ModeGrep})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Hits) != 1 || res.Hits[0].Path != "Reference/cluster.md" {
		t.Fatalf("hits = %v", paths(res))
	}
	if len(res.Hits[0].Snippets) == 0 || !strings.Contains(res.Hits[0].Snippets[0].Text, "Kubernetes") {
		t.Errorf("snippets = %+v", res.Hits[0].Snippets)
	}
}

func TestGrepIsCaseInsensitiveAndSkipsHeader(t *testing.T) {
	src := rows{
		doc("Inbox/a.md", "---\ntitle: kubernetes in header only\n---\nnothing here\n"),
		doc("Inbox/b.md", "---\ntitle: b\n---\nKUBERNETES shouted\nand kubernetes whispered\n"),
	}
	res, _ := NewEngine(src).Search(context.Background(), Query{Terms: []string{"Kubernetes"}, Mode: ModeGrep})
	if diff := cmp.Diff([]string{"Inbox/b.md"}, paths(res)); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if res.Hits[0].Matches != 2 {
		t.Errorf("matches = %d, want 2", res.Hits[0].Matches)
	}
}

func TestGrepSnippetIsBounded(t *testing.T) {
	body := strings.Repeat("lorem ipsum ", 500) + "needle" + strings.Repeat(" dolor sit", 500)
	src := rows{doc("Reference/long.md", body)}
	res, _ := NewEngine(src, WithWindow(80)).Search(context.Background(), Query{Terms: []string{"needle"}, Mode: ModeGrep})
	if len(res.Hits) != 1 {
		t.Fatalf("hits = %d", len(res.Hits))
	}
	s := res.Hits[0].Snippets[0].Text
	if !strings.Contains(s, "needle") || len(s) > 100 {
		t.Errorf("snippet (%d bytes) = %q", len(s), s)
	}
}

func TestKeywordRanksByMatchCountThenPath(t *testing.T) {
	src := rows{
		doc("Media/b-film.md", "---\ntitle: Dune\nmedia_type: film\n---\n"),
		doc("Media/a-film.md", "---\ntitle: Alien\nmedia_type: film\n---\n"),
		doc("Media/dune-book.md", "---\ntitle: Dune\nmedia_type: book\n---\n"),
		doc("Actions/call.md", "---\ntitle: Call mum\n---\nabout dune\n"),
	}
	res, _ := NewEngine(src, WithFolders(folders)).Search(context.Background(), Query{Terms: []string{"dune", "film"}})
	// b-film matches both terms; a-film and dune-book one each, ordered by path.
	want := []string{"Media/b-film.md", "Media/a-film.md", "Media/dune-book.md"}
	if diff := cmp.Diff(want, paths(res)); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if res.Hits[0].Score != 2 {
		t.Errorf("top score = %d", res.Hits[0].Score)
	}
}

func TestKeywordFoldersAndCap(t *testing.T) {
	var src rows
	for i := 0; i < 40; i++ {
		src = append(src, doc(fmt.Sprintf("Actions/task-%02d.md", i), "---\nstatus: open\n---\n"))
	}
	src = append(src, doc("Inbox/task-x.md", "---\nstatus: open\n---\n"))

	res, _ := NewEngine(src, WithFolders(folders)).Search(context.Background(), Query{Terms: []string{"open"}, Folders: []string{"actions"}})
	if res.Total != 40 || len(res.Hits) != DefaultTopN {
		t.Errorf("total = %d, hits = %d", res.Total, len(res.Hits))
	}
	if res.Hits[0].Path != "Actions/task-00.md" {
		t.Errorf("first = %s", res.Hits[0].Path)
	}

	all, _ := NewEngine(src, WithFolders(folders), WithTopN(100)).Search(context.Background(), Query{Folders: []string{"all"}})
	if all.Total != 41 {
		t.Errorf("all folders total = %d, want 41", all.Total)
	}
}

func TestMetadataIgnoresTerms(t *testing.T) {
	src := rows{
		doc("Media/a.md", "---\ntitle: A\n---\none two three\n"),
		doc("Reference/b.md", "no header here"),
	}
	res, _ := NewEngine(src).Search(context.Background(), Query{Terms: []string{"zzz"}, Mode: ModeMetadata})
	if diff := cmp.Diff([]string{"Media/a.md", "Reference/b.md"}, paths(res)); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if res.Hits[0].Metadata.String("title") != "A" {
		t.Errorf("metadata = %v", res.Hits[0].Metadata.Map())
	}
	if res.Hits[1].WordCount != 3 {
		t.Errorf("word count = %d", res.Hits[1].WordCount)
	}
}

func TestHitsCarryCatalogFields(t *testing.T) {
	row := doc("Media/dune.md", "---\ntitle: Dune\ntags: [scifi, book]\n---\nSpice.\n")
	row.Title, row.Category, row.Tags = "Dune", "Media", []string{"scifi", "book"}

	res, err := NewEngine(rows{row}).Search(context.Background(), Query{Mode: ModeMetadata})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Hits) != 1 {
		t.Fatalf("hits = %v", paths(res))
	}
	h := res.Hits[0]
	if h.Title != "Dune" || h.Category != "Media" {
		t.Errorf("title = %q, category = %q", h.Title, h.Category)
	}
	if diff := cmp.Diff([]string{"scifi", "book"}, h.Tags); diff != "" {
		t.Errorf("tags (-want +got):\n%s", diff)
	}
}

func TestRenderExcludesBodies(t *testing.T) {
	src := rows{doc("Media/a.md", "---\ntitle: A\nstatus: to_consume\n---\nSECRET BODY TEXT\n")}
	res, _ := NewEngine(src).Search(context.Background(), Query{})
	out := Render(res)
	if strings.Contains(out, "SECRET") {
		t.Errorf("body leaked into render:\n%s", out)
	}
	if !strings.Contains(out, "**a.md** (in Media/)") || !strings.Contains(out, "status: to_consume") {
		t.Errorf("render:\n%s", out)
	}
	if Render(&Result{}) != "_No matching documents._" {
		t.Error("empty render")
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"grep": ModeGrep, "METADATA": ModeMetadata, "": ModeDefault, "fuzzy": ModeDefault} {
		if got := ParseMode(in); got != want {
			t.Errorf("ParseMode(%q) = %q, want %q", in, got, want)
		}
	}
}
