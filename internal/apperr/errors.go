// Package apperr defines the sentinel and typed errors shared across the engine.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrPathEscape    = errors.New("path escapes vault root")
)

// maxSnippet bounds how much oracle output is kept in an ExtractionError.
const maxSnippet = 200

// ExtractionError reports oracle output that did not contain a parseable JSON object.
type ExtractionError struct {
	Text string // offending text, truncated
}

// NewExtractionError builds an ExtractionError, truncating text for diagnostics.
func NewExtractionError(text string) *ExtractionError {
	return &ExtractionError{Text: Truncate(text, maxSnippet)}
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract: no JSON object found in %q", e.Text)
}

// MalformedHeaderError reports a metadata header whose delimiters are unbalanced
// or whose body is not a YAML mapping.
type MalformedHeaderError struct {
	Path   string
	Reason string
}

func (e *MalformedHeaderError) Error() string {
	if e.Path == "" {
		return "frontmatter: malformed header: " + e.Reason
	}
	return fmt.Sprintf("frontmatter: malformed header in %s: %s", e.Path, e.Reason)
}

// UnknownIntentError reports a Router decision naming no registered handler.
type UnknownIntentError struct {
	Intent string
}

func (e *UnknownIntentError) Error() string {
	return fmt.Sprintf("router: unknown intent %q", e.Intent)
}

// TooManyEditTargetsError reports a bulk edit plan that exceeds the per-invocation cap.
type TooManyEditTargetsError struct {
	Requested int
	Limit     int
}

func (e *TooManyEditTargetsError) Error() string {
	return fmt.Sprintf("bulkedit: too many targets: %d requested, limit is %d", e.Requested, e.Limit)
}

// DocumentNotFoundError reports a missing document. It matches ErrNotFound.
type DocumentNotFoundError struct {
	Path string
}

func (e *DocumentNotFoundError) Error() string {
	return "document not found: " + e.Path
}

func (e *DocumentNotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// PathEscapeError reports a path that resolves outside the vault root. It matches ErrPathEscape.
type PathEscapeError struct {
	Path string
}

func (e *PathEscapeError) Error() string {
	return "storage: path escapes vault root: " + e.Path
}

func (e *PathEscapeError) Is(target error) bool {
	return target == ErrPathEscape
}

// Truncate shortens s to at most n bytes on a rune boundary, appending an ellipsis.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err is or wraps ErrConflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsPathEscape reports whether err is or wraps ErrPathEscape.
func IsPathEscape(err error) bool { return errors.Is(err, ErrPathEscape) }

// IsMalformedHeader reports whether err is or wraps a MalformedHeaderError.
func IsMalformedHeader(err error) bool {
	var mh *MalformedHeaderError
	return errors.As(err, &mh)
}
