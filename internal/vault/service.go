// Package vault implements the document store the engine reads from and
// writes to: a directory of markdown documents with metadata headers,
// catalogued in SQLite for search.
package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/starford/synapse/internal/apperr"
	"github.com/starford/synapse/internal/checksum"
	"github.com/starford/synapse/internal/frontmatter"
	"github.com/starford/synapse/internal/index"
	"github.com/starford/synapse/internal/storage"
)

// ChangeFunc is called after the service creates or updates a document.
type ChangeFunc func(kind, path string)

// Service coordinates storage and catalog operations.
type Service struct {
	store  storage.Provider
	db     index.Catalog
	logger *slog.Logger

	categories      []string
	defaultCategory string
	attachments     string
	projects        string

	now      func() time.Time
	onChange ChangeFunc

	mu sync.Mutex // serialises read-check-write cycles within the process
}

// Option configures a Service.
type Option func(*Service)

// WithCategories sets the folders documents may be filed into and the
// fallback used for anything else.
func WithCategories(categories []string, fallback string) Option {
	return func(s *Service) {
		s.categories = append([]string(nil), categories...)
		s.defaultCategory = fallback
	}
}

// WithAttachmentsFolder sets where binary attachments are stored.
func WithAttachmentsFolder(folder string) Option {
	return func(s *Service) { s.attachments = folder }
}

// WithProjectsFolder sets the folder scanned by ListProjects.
func WithProjectsFolder(folder string) Option {
	return func(s *Service) { s.projects = folder }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides time.Now, used for attachment names.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithChangeFunc registers a callback fired after every successful write.
func WithChangeFunc(fn ChangeFunc) Option {
	return func(s *Service) { s.onChange = fn }
}

// DefaultCategories are the filing folders used when none are configured.
var DefaultCategories = []string{"Projects", "Actions", "Media", "Reference", "Inbox"}

// NewService creates a vault service.
func NewService(store storage.Provider, db index.Catalog, opts ...Option) *Service {
	s := &Service{
		store:           store,
		db:              db,
		logger:          slog.New(slog.NewJSONHandler(io.Discard, nil)),
		categories:      DefaultCategories,
		defaultCategory: "Inbox",
		attachments:     "Attachments",
		projects:        "Projects",
		now:             time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Categories returns the filing folders.
func (s *Service) Categories() []string {
	return append([]string(nil), s.categories...)
}

// AttachmentsFolder returns the folder binary attachments are saved to.
func (s *Service) AttachmentsFolder() string { return s.attachments }

// Folders returns every folder a search may target: the categories plus
// the attachments folder.
func (s *Service) Folders() []string {
	return append(s.Categories(), s.attachments)
}

// Root returns the absolute vault root.
func (s *Service) Root() string { return s.store.Root() }

// List returns catalogued documents in folders (all when empty), ordered by path.
func (s *Service) List(_ context.Context, folders []string) ([]index.Row, error) {
	return s.db.List(folders)
}

// Read returns the raw content of the document at p.
func (s *Service) Read(_ context.Context, p string) ([]byte, error) {
	return s.store.Read(p)
}

// ReadDocument returns the header and body of the document at p. A malformed
// header is logged and the full content is returned as body with empty metadata.
func (s *Service) ReadDocument(ctx context.Context, p string) (*frontmatter.Metadata, []byte, error) {
	data, err := s.Read(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	meta, body, err := frontmatter.Parse(data)
	if err != nil {
		s.logger.Warn("vault: malformed header", slog.String("path", p), slog.String("error", err.Error()))
		return frontmatter.NewMetadata(), data, nil
	}
	return meta, body, nil
}

// Write replaces the content of the document at p. When ifMatch is
// non-empty and the current content does not hash to it, the write is
// refused with apperr.ErrConflict; checksum.Absent only allows creating the
// document. The catalog is updated before returning.
func (s *Service) Write(_ context.Context, p string, content []byte, ifMatch string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kind := index.EventUpdated
	existing, err := s.store.Read(p)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		if ifMatch != "" && ifMatch != checksum.Absent {
			return fmt.Errorf("vault: write %s: %w", p, apperr.ErrConflict)
		}
		kind = index.EventCreated
	case err != nil:
		return err
	case !checksum.Matches(existing, ifMatch):
		return fmt.Errorf("vault: write %s: %w", p, apperr.ErrConflict)
	}
	return s.put(p, content, kind)
}

// Create files content under folder using slug as the file name and returns
// the new document's path. Folders outside the category list fall back to
// the default category; an existing name gets a -1, -2, … suffix. Create
// never overwrites.
func (s *Service) Create(_ context.Context, folder, slug string, content []byte) (string, error) {
	folder = s.category(folder)
	slug = Slugify(slug)
	if slug == "" {
		slug = "untitled"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := path.Join(folder, slug+".md")
	for i := 1; s.store.Exists(p); i++ {
		p = path.Join(folder, fmt.Sprintf("%s-%d.md", slug, i))
	}
	if err := s.put(p, content, index.EventCreated); err != nil {
		return "", err
	}
	s.logger.Info("vault: saved document", slog.String("path", p))
	return p, nil
}

// SaveAttachment stores data in the attachments folder under a timestamped
// name and returns that name (for wiki-links).
func (s *Service) SaveAttachment(_ context.Context, name string, data []byte) (string, error) {
	clean := attachmentUnsafe.ReplaceAllString(path.Base(strings.ReplaceAll(name, "\\", "/")), "")
	if clean == "" || clean == "." {
		clean = "file"
	}
	saved := s.now().Format("20060102_150405") + "_" + clean
	if err := s.store.Write(path.Join(s.attachments, saved), data); err != nil {
		return "", err
	}
	s.logger.Info("vault: saved attachment", slog.String("path", path.Join(s.attachments, saved)))
	return saved, nil
}

// Find resolves a document name to its path. name may be a vault-relative
// path, or a file name with or without the .md extension, optionally
// restricted to folder. Several matches resolve to the first by path.
func (s *Service) Find(_ context.Context, name, folder string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return "", &apperr.DocumentNotFoundError{Path: name}
	}
	if !strings.HasSuffix(strings.ToLower(name), ".md") {
		name += ".md"
	}
	if strings.Contains(name, "/") {
		if _, err := s.store.Stat(name); err != nil {
			return "", err
		}
		return path.Clean(name), nil
	}
	paths, err := s.db.FindByFilename(name, folder)
	if err != nil {
		return "", err
	}
	if len(paths) == 0 && folder != "" {
		// Catalog may lag behind a file created moments ago.
		candidate := path.Join(folder, name)
		if s.store.Exists(candidate) {
			return candidate, nil
		}
	}
	if len(paths) == 0 {
		return "", &apperr.DocumentNotFoundError{Path: path.Join(folder, name)}
	}
	return paths[0], nil
}

// ListProjects returns project names: subfolders and document stems of the
// projects folder, sorted and de-duplicated.
func (s *Service) ListProjects(_ context.Context) ([]string, error) {
	rows, err := s.db.List([]string{s.projects})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	for _, r := range rows {
		rest := strings.TrimPrefix(r.Path, r.Folder+"/")
		name := strings.TrimSuffix(rest, ".md")
		if i := strings.Index(rest, "/"); i >= 0 {
			name = rest[:i]
		}
		if name != "" && !strings.HasPrefix(name, ".") {
			seen[name] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

// Sync reconciles the catalog with the files on disk.
func (s *Service) Sync() error {
	return index.Sync(s.db, s.store, s.logger)
}

// Watch keeps the catalog up to date with external edits until ctx ends.
func (s *Service) Watch(ctx context.Context) error {
	return index.Watch(ctx, s.db, s.store, s.logger, func(kind, p string) {
		s.notify(kind, p)
	})
}

// put writes and catalogues content. Callers hold s.mu.
func (s *Service) put(p string, content []byte, kind string) error {
	if err := s.store.Write(p, content); err != nil {
		return err
	}
	info, err := s.store.Stat(p)
	if err != nil {
		return err
	}
	if err := index.Document(s.db, info, content, s.logger); err != nil {
		// The file is written; the watcher or next sync will catch up.
		s.logger.Warn("vault: reindex failed", slog.String("path", p), slog.String("error", err.Error()))
	}
	s.notify(kind, p)
	return nil
}

func (s *Service) notify(kind, p string) {
	if s.onChange != nil {
		s.onChange(kind, p)
	}
}

func (s *Service) category(folder string) string {
	for _, c := range s.categories {
		if strings.EqualFold(c, strings.Trim(folder, "/ ")) {
			return c
		}
	}
	if folder != "" {
		s.logger.Warn("vault: unknown folder, using default",
			slog.String("folder", folder), slog.String("default", s.defaultCategory))
	}
	return s.defaultCategory
}

var (
	attachmentUnsafe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
	slugUnsafe       = regexp.MustCompile(`[^a-z0-9]+`)
)

// Slugify lower-cases s and reduces it to letters, digits and single hyphens.
func Slugify(s string) string {
	s = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), ".md")
	return strings.Trim(slugUnsafe.ReplaceAllString(s, "-"), "-")
}
