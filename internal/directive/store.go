// Package directive persists the user's standing behavioural rules as a
// bullet list in a single vault document.
package directive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/starford/synapse/internal/apperr"
	"github.com/starford/synapse/internal/checksum"
)

// DefaultPath is the vault-relative location of the directives document.
const DefaultPath = "_brain/directives.md"

// Placeholder is rendered when no directives are set.
const Placeholder = "_No directives set._"

// MaxLength is the longest directive, in characters, that Add accepts.
const MaxLength = 1000

const heading = "# Directives"

var (
	// ErrEmpty is returned when adding a blank directive.
	ErrEmpty = errors.New("directive: empty text")
	// ErrTooLong is returned when adding a directive over MaxLength.
	ErrTooLong = fmt.Errorf("directive: text longer than %d characters", MaxLength)
)

// Documents is the slice of the document store the directive store needs.
type Documents interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, content []byte, ifMatch string) error
}

// Store is a CRUD view over the directives document. It keeps no state of
// its own: every call reads the document, and every mutation writes the
// whole list back before returning.
type Store struct {
	docs Documents
	path string
}

// NewStore creates a Store backed by the document at path (DefaultPath when empty).
func NewStore(docs Documents, path string) *Store {
	if path == "" {
		path = DefaultPath
	}
	return &Store{docs: docs, path: path}
}

// Path returns the backing document path.
func (s *Store) Path() string { return s.path }

// List returns the directives in order. A missing document is an empty list.
func (s *Store) List(ctx context.Context) ([]string, error) {
	list, _, err := s.load(ctx)
	return list, err
}

// Add appends text and returns its 1-based index. Line breaks in text are
// folded into spaces so the entry stays one bullet.
func (s *Store) Add(ctx context.Context, text string) (int, error) {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return 0, ErrEmpty
	}
	if utf8.RuneCountInString(text) > MaxLength {
		return 0, ErrTooLong
	}
	list, sum, err := s.load(ctx)
	if err != nil {
		return 0, err
	}
	list = append(list, text)
	if err := s.save(ctx, list, sum); err != nil {
		return 0, err
	}
	return len(list), nil
}

// Remove deletes the directive at the 1-based index and returns its text.
// An out-of-range index reports false and leaves the document untouched.
func (s *Store) Remove(ctx context.Context, index int) (string, bool, error) {
	list, sum, err := s.load(ctx)
	if err != nil {
		return "", false, err
	}
	if index < 1 || index > len(list) {
		return "", false, nil
	}
	removed := list[index-1]
	list = append(list[:index-1], list[index:]...)
	if err := s.save(ctx, list, sum); err != nil {
		return "", false, err
	}
	return removed, true, nil
}

// Render returns the directives as a numbered list for prompts.
func (s *Store) Render(ctx context.Context) (string, error) {
	list, err := s.List(ctx)
	if err != nil {
		return "", err
	}
	return Render(list), nil
}

// Render formats list as "1. …" lines, or Placeholder when empty.
func Render(list []string) string {
	if len(list) == 0 {
		return Placeholder
	}
	var b strings.Builder
	for i, d := range list {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(d)
	}
	return b.String()
}

func (s *Store) load(ctx context.Context) ([]string, string, error) {
	data, err := s.docs.Read(ctx, s.path)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("directive: read: %w", err)
	}
	return parse(data), checksum.Sum(data), nil
}

// save writes list back, conditional on the document still hashing to sum.
// An empty sum means the document did not exist, and it must still be absent.
func (s *Store) save(ctx context.Context, list []string, sum string) error {
	if sum == "" {
		sum = checksum.Absent
	}
	var b bytes.Buffer
	b.WriteString(heading + "\n\n")
	for _, d := range list {
		b.WriteString("- " + d + "\n")
	}
	if err := s.docs.Write(ctx, s.path, b.Bytes(), sum); err != nil {
		return fmt.Errorf("directive: write: %w", err)
	}
	return nil
}

func parse(data []byte) []string {
	var out []string
	for line := range strings.Lines(string(data)) {
		line = strings.TrimSpace(line)
		if text, ok := strings.CutPrefix(line, "- "); ok {
			if text = strings.TrimSpace(text); text != "" {
				out = append(out, text)
			}
		}
	}
	return out
}
