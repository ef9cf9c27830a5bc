package search

import (
	"fmt"
	"strings"
)

// Render formats a result as a compact markdown block for prompts:
// file name and folder, size, word count and modification time, then the
// metadata fields, and for grep results the snippets.
func Render(res *Result) string {
	if res == nil || len(res.Hits) == 0 {
		return "_No matching documents._"
	}
	var b strings.Builder
	for i, h := range res.Hits {
		if i > 0 {
			b.WriteByte('\n')
		}
		folder := h.Folder
		if folder == "" {
			folder = "vault root"
		} else {
			folder += "/"
		}
		fmt.Fprintf(&b, "- **%s** (in %s)", h.Filename, folder)
		if h.Matches > 0 {
			fmt.Fprintf(&b, " (%d matches)", h.Matches)
		}
		fmt.Fprintf(&b, "\n  %d bytes | %d words | modified %s", h.Size, h.WordCount, h.UpdatedAt.Local().Format("2006-01-02 15:04"))
		if h.Metadata.Len() > 0 {
			fields := make([]string, 0, h.Metadata.Len())
			for _, k := range h.Metadata.Keys() {
				fields = append(fields, k+": "+h.Metadata.String(k))
			}
			b.WriteString("\n  " + strings.Join(fields, " | "))
		}
		for _, s := range h.Snippets {
			b.WriteString("\n  > " + s.Text)
		}
	}
	if res.Total > len(res.Hits) {
		fmt.Fprintf(&b, "\n\n_%d more matching documents not shown._", res.Total-len(res.Hits))
	}
	return b.String()
}
