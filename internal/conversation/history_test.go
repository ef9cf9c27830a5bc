package conversation

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNormalizeCapsToMostRecent(t *testing.T) {
	var raw []Turn
	for i := 1; i <= 25; i++ {
		raw = append(raw, Turn{Role: "user", Text: fmt.Sprintf("m%d", i)})
	}
	got := Normalize(raw)
	if len(got) != MaxTurns {
		t.Fatalf("len = %d, want %d", len(got), MaxTurns)
	}
	if got[0].Text != "m16" || got[9].Text != "m25" {
		t.Errorf("window = %s..%s, want m16..m25", got[0].Text, got[9].Text)
	}
}

func TestNormalizeRolesAndBlanks(t *testing.T) {
	got := Normalize([]Turn{
		{Role: "bot", Text: " hi "},
		{Role: "", Text: "   "},
		{Role: "Human", Text: "save this"},
		{Role: "ASSISTANT", Text: "done"},
	})
	want := []Turn{
		{Role: RoleAssistant, Text: "hi"},
		{Role: RoleUser, Text: "save this"},
		{Role: RoleAssistant, Text: "done"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestRender(t *testing.T) {
	if Render(nil) != "" {
		t.Error("empty history should render as empty string")
	}
	out := Render([]Turn{{Role: "user", Text: "show my films"}, {Role: "assistant", Text: "3 films"}})
	if !strings.Contains(out, "**User:** show my films\n**Assistant:** 3 films\n") {
		t.Errorf("unexpected transcript:\n%s", out)
	}
}

func TestRenderNeverExceedsCap(t *testing.T) {
	var raw []Turn
	for i := 0; i < 40; i++ {
		raw = append(raw, Turn{Role: "user", Text: "x"})
	}
	if n := strings.Count(Render(raw), "**User:**"); n != MaxTurns {
		t.Errorf("rendered %d turns, want %d", n, MaxTurns)
	}
}
