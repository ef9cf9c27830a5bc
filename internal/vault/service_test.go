package vault

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/synapse/internal/apperr"
	"github.com/starford/synapse/internal/checksum"
	"github.com/starford/synapse/internal/index"
	"github.com/starford/synapse/internal/storage"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) record(kind, p string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kind+":"+p)
}

func newTestService(t *testing.T, opts ...Option) (*Service, *index.DB) {
	t.Helper()
	store, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	db, err := index.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return NewService(store, db, opts...), db
}

func TestCreateDedupesAndIndexes(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	svc, db := newTestService(t, WithChangeFunc(rec.record))

	first, err := svc.Create(ctx, "Actions", "Fix Garden Fence", []byte("---\ntitle: Fence\n---\nbody"))
	if err != nil {
		t.Fatal(err)
	}
	second, _ := svc.Create(ctx, "Actions", "fix-garden-fence", []byte("two"))
	third, _ := svc.Create(ctx, "Actions", "fix-garden-fence", []byte("three"))

	want := []string{"Actions/fix-garden-fence.md", "Actions/fix-garden-fence-1.md", "Actions/fix-garden-fence-2.md"}
	if diff := cmp.Diff(want, []string{first, second, third}); diff != "" {
		t.Errorf("paths (-want +got):\n%s", diff)
	}
	row, _ := db.Get(first)
	if row == nil || row.Title != "Fence" {
		t.Errorf("catalog row = %+v", row)
	}
	if len(rec.events) != 3 || rec.events[0] != index.EventCreated+":"+first {
		t.Errorf("events = %v", rec.events)
	}
}

func TestCreateFallsBackToDefaultCategory(t *testing.T) {
	svc, _ := newTestService(t)
	p, err := svc.Create(context.Background(), "../../etc", "x", []byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	if p != "Inbox/x.md" {
		t.Errorf("path = %q, want Inbox/x.md", p)
	}
	p, _ = svc.Create(context.Background(), "media", "film", []byte("x"))
	if p != "Media/film.md" {
		t.Errorf("path = %q, want Media/film.md", p)
	}
}

func TestWriteConflict(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	p, _ := svc.Create(ctx, "Inbox", "note", []byte("v1"))

	if err := svc.Write(ctx, p, []byte("v2"), "not-the-hash"); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if err := svc.Write(ctx, p, []byte("v2"), checksum.Sum([]byte("v1"))); err != nil {
		t.Fatalf("conditional write: %v", err)
	}
	got, _ := svc.Read(ctx, p)
	if string(got) != "v2" {
		t.Errorf("content = %q", got)
	}
	if err := svc.Write(ctx, "Inbox/new.md", []byte("x"), "abc"); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("conditional write to missing doc: err = %v", err)
	}
}

func TestWriteAbsentCreatesOnce(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	if err := svc.Write(ctx, "_brain/rules.md", []byte("first"), checksum.Absent); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Write(ctx, "_brain/rules.md", []byte("second"), checksum.Absent); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("second create: err = %v, want ErrConflict", err)
	}
	got, _ := svc.Read(ctx, "_brain/rules.md")
	if string(got) != "first" {
		t.Errorf("content = %q", got)
	}
}

func TestWriteRejectsEscape(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.Write(context.Background(), "../outside.md", []byte("x"), "")
	if !errors.Is(err, apperr.ErrPathEscape) {
		t.Fatalf("err = %v, want ErrPathEscape", err)
	}
}

func TestReadDocumentMalformedHeader(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	_ = svc.Write(ctx, "Inbox/bad.md", []byte("---\ntitle: open\n"), "")
	meta, body, err := svc.ReadDocument(ctx, "Inbox/bad.md")
	if err != nil {
		t.Fatal(err)
	}
	if meta.Len() != 0 || string(body) != "---\ntitle: open\n" {
		t.Errorf("meta=%v body=%q", meta.Keys(), body)
	}
}

func TestFind(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	_ = svc.Write(ctx, "Actions/call-bob.md", []byte("x"), "")
	_ = svc.Write(ctx, "Inbox/call-bob.md", []byte("x"), "")

	cases := []struct {
		name, folder, want string
	}{
		{"call-bob", "", "Actions/call-bob.md"},
		{"call-bob.md", "Inbox", "Inbox/call-bob.md"},
		{"Inbox/call-bob.md", "", "Inbox/call-bob.md"},
	}
	for _, tc := range cases {
		got, err := svc.Find(ctx, tc.name, tc.folder)
		if err != nil || got != tc.want {
			t.Errorf("Find(%q, %q) = %q, %v; want %q", tc.name, tc.folder, got, err, tc.want)
		}
	}

	if _, err := svc.Find(ctx, "missing", ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing: err = %v", err)
	}
	if _, err := svc.Find(ctx, "../../etc/passwd", ""); !errors.Is(err, apperr.ErrPathEscape) {
		t.Errorf("escape: err = %v", err)
	}
}

func TestSaveAttachment(t *testing.T) {
	fixed := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	svc, _ := newTestService(t, WithClock(func() time.Time { return fixed }))
	name, err := svc.SaveAttachment(context.Background(), "../My Photo (1).jpg", []byte{0xff, 0xd8})
	if err != nil {
		t.Fatal(err)
	}
	if name != "20240309_140507_MyPhoto1.jpg" {
		t.Errorf("name = %q", name)
	}
	data, err := os.ReadFile(filepath.Join(svc.Root(), "Attachments", name))
	if err != nil || len(data) != 2 {
		t.Errorf("attachment not on disk: %v", err)
	}
}

func TestListProjects(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	_ = svc.Write(ctx, "Projects/garden.md", []byte("x"), "")
	_ = svc.Write(ctx, "Projects/Homelab/k8s.md", []byte("x"), "")
	_ = svc.Write(ctx, "Projects/Homelab/dns.md", []byte("x"), "")
	_ = svc.Write(ctx, "Actions/todo.md", []byte("x"), "")

	got, err := svc.ListProjects(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"Homelab", "garden"}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestSyncPicksUpExternalFiles(t *testing.T) {
	svc, db := newTestService(t)
	_ = os.MkdirAll(filepath.Join(svc.Root(), "Reference"), 0o755)
	_ = os.WriteFile(filepath.Join(svc.Root(), "Reference", "ext.md"), []byte("external"), 0o644)
	if err := svc.Sync(); err != nil {
		t.Fatal(err)
	}
	if cs, _ := db.GetChecksum("Reference/ext.md"); cs == "" {
		t.Error("external file not catalogued")
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Fix Garden Fence!": "fix-garden-fence",
		"  --a--b--  ":      "a-b",
		"note.md":           "note",
		"日本":                "",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}
