package frontmatter

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/starford/synapse/internal/apperr"
	"github.com/starford/synapse/internal/checksum"
)

// Store is the slice of the document store the editor needs.
type Store interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, content []byte, ifMatch string) error
}

// Tombstone marks a field for removal in Update.
type Tombstone struct{}

// RemovedMarker is how a removed field is shown in change reports.
const RemovedMarker = "<removed>"

// Change describes one field mutation performed by Update.
type Change struct {
	Key     string `json:"key"`
	Old     any    `json:"old,omitempty"`
	New     any    `json:"new,omitempty"`
	Removed bool   `json:"removed,omitempty"`
}

// String renders the change as "key: old → new".
func (c Change) String() string {
	old := FormatValue(c.Old)
	if old == "" {
		old = "(none)"
	}
	if c.Removed {
		return fmt.Sprintf("%s: %s → %s", c.Key, old, RemovedMarker)
	}
	return fmt.Sprintf("%s: %s → %s", c.Key, old, FormatValue(c.New))
}

// Editor reads and rewrites metadata headers in place. The body of a document
// is never modified.
type Editor struct {
	store Store
}

// NewEditor creates an Editor over store.
func NewEditor(store Store) *Editor {
	return &Editor{store: store}
}

// Read returns the header and body of the document at path. A document
// without a header yields empty metadata and the full content as body.
func (e *Editor) Read(ctx context.Context, path string) (*Metadata, []byte, error) {
	content, err := e.store.Read(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	meta, body, err := Parse(content)
	if err != nil {
		return nil, nil, withPath(err, path)
	}
	return meta, body, nil
}

// Write replaces the document at path with meta and body.
func (e *Editor) Write(ctx context.Context, path string, meta *Metadata, body []byte) error {
	content, err := Render(meta, body)
	if err != nil {
		return err
	}
	return e.store.Write(ctx, path, content, "")
}

// Inject sets key to value in the header of the document at path.
// Injecting the same pair twice leaves the document as after the first call.
func (e *Editor) Inject(ctx context.Context, path, key string, value any) error {
	_, err := e.Update(ctx, path, map[string]any{key: value})
	return err
}

// Update applies updates to the header of the document at path. A Tombstone
// value removes the field. Fields already holding the requested value are
// left alone; when nothing changes the document is not rewritten.
// The write is conditional on the content read, so a concurrent edit yields
// apperr.ErrConflict instead of being overwritten.
func (e *Editor) Update(ctx context.Context, path string, updates map[string]any) ([]Change, error) {
	return e.UpdateIfMatch(ctx, path, updates, "")
}

// UpdateIfMatch is Update with a caller-supplied precondition: unless ifMatch
// is empty, the document must hash to it both when read and when written,
// otherwise apperr.ErrConflict is returned and nothing is written.
func (e *Editor) UpdateIfMatch(ctx context.Context, path string, updates map[string]any, ifMatch string) ([]Change, error) {
	content, err := e.store.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	if !checksum.Matches(content, ifMatch) {
		return nil, fmt.Errorf("frontmatter: update %s: %w", path, apperr.ErrConflict)
	}
	if ifMatch == "" {
		ifMatch = checksum.Sum(content)
	}
	meta, body, err := Parse(content)
	if err != nil {
		return nil, withPath(err, path)
	}

	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var changes []Change
	for _, k := range keys {
		v := updates[k]
		old, had := meta.Get(k)
		if _, remove := v.(Tombstone); remove {
			if meta.Delete(k) {
				changes = append(changes, Change{Key: k, Old: old, Removed: true})
			}
			continue
		}
		if had && meta.Equal(k, v) {
			continue
		}
		meta.Set(k, v)
		changes = append(changes, Change{Key: k, Old: old, New: v})
	}
	if len(changes) == 0 {
		return nil, nil
	}

	out, err := Render(meta, body)
	if err != nil {
		return nil, err
	}
	if err := e.store.Write(ctx, path, out, ifMatch); err != nil {
		return nil, err
	}
	return changes, nil
}

func withPath(err error, path string) error {
	var mh *apperr.MalformedHeaderError
	if errors.As(err, &mh) && mh.Path == "" {
		return &apperr.MalformedHeaderError{Path: path, Reason: mh.Reason}
	}
	return err
}
