package extract

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/synapse/internal/apperr"
)

func TestObject(t *testing.T) {
	want := map[string]any{"intent": "file", "note": "a {brace} inside", "n": float64(2)}
	cases := map[string]string{
		"raw":             `{"intent": "file", "note": "a {brace} inside", "n": 2}`,
		"fenced json":     "Sure! Here you go:\n```json\n{\"intent\": \"file\", \"note\": \"a {brace} inside\", \"n\": 2}\n```\nAnything else?",
		"fenced no tag":   "```\n{\"intent\": \"file\", \"note\": \"a {brace} inside\", \"n\": 2}\n```",
		"prose":           `I think {"intent": "file", "note": "a {brace} inside", "n": 2} is right.`,
		"escaped quote":   `ok {"intent": "file", "note": "a {brace} inside", "n": 2, "q": "say \"}\""} done`,
		"trailing comma":  `{"intent": "file", "note": "a {brace} inside", "n": 2,}`,
		"bad fence first": "```json\n{not json at all\n```\nfallback {\"intent\": \"file\", \"note\": \"a {brace} inside\", \"n\": 2}",
		"stray brace":     `Use {curly} syntax. {"intent": "file", "note": "a {brace} inside", "n": 2}`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := Object(in)
			if err != nil {
				t.Fatalf("Object: %v", err)
			}
			delete(got, "q")
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestObjectSingleQuotedBraces(t *testing.T) {
	got, err := Object(`Here: {'intent': 'file', 'note': 'a } b'} thanks`)
	if err != nil {
		t.Fatalf("Object: %v", err)
	}
	want := map[string]any{"intent": "file", "note": "a } b"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestObjectFailure(t *testing.T) {
	for _, in := range []string{"", "no json here", "{unbalanced", `["an", "array"]`, strings.Repeat("x", 500)} {
		_, err := Object(in)
		var ee *apperr.ExtractionError
		if !errors.As(err, &ee) {
			t.Errorf("Object(%.20q): err = %v, want ExtractionError", in, err)
			continue
		}
		if len(ee.Text) > 203 {
			t.Errorf("diagnostic text not truncated: %d bytes", len(ee.Text))
		}
	}
}
