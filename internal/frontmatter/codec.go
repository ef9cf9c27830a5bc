// Package frontmatter reads and rewrites the YAML metadata header that
// prefixes every vault document, leaving the body untouched.
package frontmatter

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/starford/synapse/internal/apperr"
)

// Delimiter opens and closes the metadata header.
const Delimiter = "---"

// ErrNoHeader is returned by Split when the content does not start with a header.
var ErrNoHeader = errors.New("frontmatter: no header")

var byteOrderMark = []byte("\ufeff")

// Split separates the metadata header from the body. The body is returned
// byte-for-byte as it appears after the closing delimiter line.
//
// Content without a leading delimiter yields ErrNoHeader together with the
// full content as body. An opening delimiter without a matching closing one,
// or a header that is not a YAML mapping, yields a MalformedHeaderError.
// A leading UTF-8 byte order mark is skipped and not kept in the body.
func Split(content []byte) (*Metadata, []byte, error) {
	first, rest, ok := cutLine(bytes.TrimPrefix(content, byteOrderMark))
	if !ok && len(first) == 0 {
		return nil, content, ErrNoHeader
	}
	if string(bytes.TrimRight(first, " \t\r")) != Delimiter {
		return nil, content, ErrNoHeader
	}

	var header []byte
	body := []byte(nil)
	closed := false
	for cursor := rest; ; {
		line, next, more := cutLine(cursor)
		if string(bytes.TrimRight(line, " \t\r")) == Delimiter {
			header = rest[:len(rest)-len(cursor)]
			body = next
			closed = true
			break
		}
		if !more {
			break
		}
		cursor = next
	}
	if !closed {
		return nil, content, &apperr.MalformedHeaderError{Reason: "missing closing delimiter"}
	}

	meta := NewMetadata()
	if len(bytes.TrimSpace(header)) > 0 {
		var node yaml.Node
		if err := yaml.Unmarshal(header, &node); err != nil {
			return nil, content, &apperr.MalformedHeaderError{Reason: err.Error()}
		}
		if err := meta.UnmarshalYAML(&node); err != nil {
			return nil, content, &apperr.MalformedHeaderError{Reason: err.Error()}
		}
	}
	if body == nil {
		body = []byte{}
	}
	return meta, body, nil
}

// Render joins a header and a body into document content.
func Render(meta *Metadata, body []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(Delimiter + "\n")
	if meta.Len() > 0 {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(meta); err != nil {
			return nil, fmt.Errorf("frontmatter: encode header: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("frontmatter: encode header: %w", err)
		}
	}
	buf.WriteString(Delimiter + "\n")
	buf.Write(body)
	return buf.Bytes(), nil
}

// Parse returns the header of content, treating a missing header as empty.
// A malformed header is still reported.
func Parse(content []byte) (*Metadata, []byte, error) {
	meta, body, err := Split(content)
	if errors.Is(err, ErrNoHeader) {
		return NewMetadata(), content, nil
	}
	return meta, body, err
}

// InjectContent sets key to value in the header of content. Content without a
// header gets a minimal one synthesised; a malformed header is an error.
func InjectContent(content []byte, key string, value any) ([]byte, error) {
	meta, body, err := Parse(content)
	if err != nil {
		return nil, err
	}
	meta.Set(key, value)
	return Render(meta, body)
}

// cutLine returns the first line of b (without its newline), the remainder
// after the newline, and whether a newline was found.
func cutLine(b []byte) (line, rest []byte, found bool) {
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		return b[:i], b[i+1:], true
	}
	return b, nil, false
}
