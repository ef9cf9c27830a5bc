// Package conversation builds the bounded thread-history view included in
// every prompt.
package conversation

import (
	"strings"
)

// MaxTurns is the number of prior turns kept.
const MaxTurns = 10

// Roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one prior message in the thread.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Normalize returns at most the MaxTurns most recent non-empty turns,
// oldest first. Any role other than an assistant alias becomes "user".
func Normalize(raw []Turn) []Turn {
	out := make([]Turn, 0, min(len(raw), MaxTurns))
	for _, t := range raw {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		out = append(out, Turn{Role: normalizeRole(t.Role), Text: text})
	}
	if len(out) > MaxTurns {
		out = out[len(out)-MaxTurns:]
	}
	return out
}

func normalizeRole(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "assistant", "bot", "model", "ai":
		return RoleAssistant
	default:
		return RoleUser
	}
}

// Render formats turns as a transcript block, or "" when there are none.
// Turns are normalized first so no caller can exceed MaxTurns.
func Render(turns []Turn) string {
	turns = Normalize(turns)
	if len(turns) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Conversation History\n")
	b.WriteString("Earlier messages in this thread, oldest first:\n\n")
	for _, t := range turns {
		speaker := "User"
		if t.Role == RoleAssistant {
			speaker = "Assistant"
		}
		b.WriteString("**" + speaker + ":** " + t.Text + "\n")
	}
	return b.String()
}
