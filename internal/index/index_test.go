package index

import (
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/synapse/internal/storage"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "synapse-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	n, err := db.Count()
	if err != nil {
		t.Fatalf("documents table missing: %v", err)
	}
	if n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
}

func TestUpsertAndGet(t *testing.T) {
	db := testDB(t)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	row := Row{
		Path:      "Projects/alpha.md",
		Folder:    "Projects",
		Filename:  "alpha.md",
		Title:     "Alpha",
		Category:  "Projects",
		Tags:      []string{"go", "infra"},
		Size:      12,
		Checksum:  "abc123",
		Content:   []byte("---\n---\nbody"),
		UpdatedAt: now,
	}
	if err := db.Upsert(row); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	got, err := db.Get("Projects/alpha.md")
	if err != nil || got == nil {
		t.Fatalf("Get: %v, %v", got, err)
	}
	if diff := cmp.Diff(row.Tags, got.Tags); diff != "" {
		t.Errorf("tags (-want +got):\n%s", diff)
	}
	if string(got.Content) != string(row.Content) || got.Title != "Alpha" || got.Size != 12 {
		t.Errorf("row = %+v", got)
	}
	if !got.UpdatedAt.Equal(now) {
		t.Errorf("updated_at = %v, want %v", got.UpdatedAt, now)
	}
}

func TestGetMissing(t *testing.T) {
	db := testDB(t)
	got, err := db.Get("nope.md")
	if err != nil || got != nil {
		t.Fatalf("Get = %v, %v; want nil, nil", got, err)
	}
	cs, err := db.GetChecksum("nope.md")
	if err != nil || cs != "" {
		t.Fatalf("GetChecksum = %q, %v", cs, err)
	}
}

func TestUpsertReplaces(t *testing.T) {
	db := testDB(t)
	_ = db.Upsert(Row{Path: "a.md", Checksum: "1", UpdatedAt: time.Now()})
	_ = db.Upsert(Row{Path: "a.md", Checksum: "2", UpdatedAt: time.Now()})
	cs, _ := db.GetChecksum("a.md")
	if cs != "2" {
		t.Errorf("checksum = %q, want 2", cs)
	}
	if n, _ := db.Count(); n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestDelete(t *testing.T) {
	db := testDB(t)
	_ = db.Upsert(Row{Path: "del.md", Checksum: "x", UpdatedAt: time.Now()})
	if err := db.Delete("del.md"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if cs, _ := db.GetChecksum("del.md"); cs != "" {
		t.Errorf("deleted row still has checksum %q", cs)
	}
	if err := db.Delete("del.md"); err != nil {
		t.Errorf("second delete: %v", err)
	}
}

func TestListFiltersFoldersIgnoringCase(t *testing.T) {
	db := testDB(t)
	for _, p := range []struct{ path, folder string }{
		{"Projects/b.md", "Projects"},
		{"Projects/a.md", "Projects"},
		{"Media/film.md", "Media"},
		{"root.md", ""},
	} {
		_ = db.Upsert(Row{Path: p.path, Folder: p.folder, UpdatedAt: time.Now()})
	}

	rows, err := db.List([]string{"projects"})
	if err != nil {
		t.Fatal(err)
	}
	var paths []string
	for _, r := range rows {
		paths = append(paths, r.Path)
	}
	if diff := cmp.Diff([]string{"Projects/a.md", "Projects/b.md"}, paths); diff != "" {
		t.Errorf("paths (-want +got):\n%s", diff)
	}

	all, _ := db.List(nil)
	if len(all) != 4 {
		t.Errorf("List(nil) = %d rows, want 4", len(all))
	}
}

func TestFindByFilename(t *testing.T) {
	db := testDB(t)
	_ = db.Upsert(Row{Path: "Actions/call.md", Folder: "Actions", Filename: "call.md", UpdatedAt: time.Now()})
	_ = db.Upsert(Row{Path: "Inbox/call.md", Folder: "Inbox", Filename: "call.md", UpdatedAt: time.Now()})

	paths, err := db.FindByFilename("CALL.md", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 {
		t.Fatalf("paths = %v", paths)
	}
	paths, _ = db.FindByFilename("call.md", "inbox")
	if diff := cmp.Diff([]string{"Inbox/call.md"}, paths); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestSyncIndexesAndPrunes(t *testing.T) {
	db := testDB(t)
	store, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	_ = store.Write("Reference/k8s.md", []byte("---\ntitle: K8s notes\ntags: [ops]\n---\nKubernetes tips\n"))
	_ = store.Write("Inbox/plain.md", []byte("no header"))
	_ = db.Upsert(Row{Path: "gone.md", Checksum: "stale", UpdatedAt: time.Now()})

	if err := Sync(db, store, quietLogger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	r, _ := db.Get("Reference/k8s.md")
	if r == nil {
		t.Fatal("Reference/k8s.md not indexed")
	}
	if r.Title != "K8s notes" || r.Category != "Reference" || r.Folder != "Reference" {
		t.Errorf("row = %+v", r)
	}
	if diff := cmp.Diff([]string{"ops"}, r.Tags); diff != "" {
		t.Errorf("tags (-want +got):\n%s", diff)
	}

	plain, _ := db.Get("Inbox/plain.md")
	if plain == nil || plain.Title != "plain" {
		t.Errorf("plain row = %+v", plain)
	}
	if cs, _ := db.GetChecksum("gone.md"); cs != "" {
		t.Error("stale row not pruned")
	}
}

func TestSyncKeepsMalformedDocuments(t *testing.T) {
	db := testDB(t)
	store, _ := storage.NewFS(t.TempDir())
	_ = store.Write("Inbox/broken.md", []byte("---\ntitle: never closed\n"))
	if err := Sync(db, store, quietLogger()); err != nil {
		t.Fatal(err)
	}
	r, _ := db.Get("Inbox/broken.md")
	if r == nil || r.Category != "Inbox" {
		t.Errorf("broken row = %+v", r)
	}
}
