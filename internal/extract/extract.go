// Package extract recovers a JSON object from free-form oracle output that
// may wrap it in prose or markdown fences.
package extract

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/titanous/json5"

	"github.com/starford/synapse/internal/apperr"
)

// maxStarts bounds how many '{' positions are tried as object starts.
const maxStarts = 32

var fence = regexp.MustCompile("(?s)```[A-Za-z0-9_+-]*[ \t]*\r?\n?(.*?)```")

// Object returns the first JSON object found in text. Fenced code blocks
// are tried first, then brace-balanced spans of the raw text. Each
// candidate is parsed as strict JSON and, failing that, as JSON5 so that
// trailing commas and single quotes are tolerated. When nothing parses the
// error is an *apperr.ExtractionError.
func Object(text string) (map[string]any, error) {
	for _, m := range fence.FindAllStringSubmatch(text, -1) {
		if obj, ok := parse(m[1]); ok {
			return obj, nil
		}
	}
	starts := 0
	for i := strings.IndexByte(text, '{'); i >= 0 && starts < maxStarts; starts++ {
		if end := matchBrace(text, i); end > 0 {
			if obj, ok := parse(text[i : end+1]); ok {
				return obj, nil
			}
		}
		next := strings.IndexByte(text[i+1:], '{')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return nil, apperr.NewExtractionError(text)
}

func parse(s string) (map[string]any, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var obj map[string]any
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	if err := dec.Decode(&obj); err == nil && obj != nil && !dec.More() {
		return obj, true
	}
	obj = nil
	if err := json5.Unmarshal([]byte(s), &obj); err == nil && obj != nil {
		return obj, true
	}
	return nil, false
}

// matchBrace returns the index of the '}' closing the '{' at start, or -1.
// Braces inside double- or single-quoted strings are ignored.
func matchBrace(text string, start int) int {
	depth := 0
	var quote byte // open string delimiter, 0 outside strings
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = quote != 0
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
