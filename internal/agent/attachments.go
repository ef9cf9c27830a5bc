package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/starford/synapse/internal/models"
	"github.com/starford/synapse/internal/oracle"
)

// MaxInlineText is the largest text attachment inlined into prompts.
const MaxInlineText = 50 * 1024

// binaryTypes are the media types the oracle accepts as binary parts.
var binaryTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"image/heic":      true,
	"image/heif":      true,
}

// AttachmentStore persists attachment files and returns the saved name.
type AttachmentStore interface {
	SaveAttachment(ctx context.Context, name string, data []byte) (string, error)
}

// PrepareAttachments turns transport attachments into prompt parts. Binary
// media is saved and passed through as data followed by a note naming the
// saved file; small text files are inlined; anything else is saved and
// referenced. A file that cannot be saved is skipped.
func PrepareAttachments(ctx context.Context, store AttachmentStore, atts []models.Attachment, logger *slog.Logger) []oracle.Part {
	var parts []oracle.Part
	var texts []string
	for _, a := range atts {
		if len(a.Data) == 0 {
			continue
		}
		mt := mediaType(a.MediaType)
		switch {
		case binaryTypes[mt]:
			saved, err := store.SaveAttachment(ctx, a.Filename, a.Data)
			if err != nil {
				logger.Warn("attachments: save failed", slog.String("file", a.Filename), slog.String("error", err.Error()))
				continue
			}
			parts = append(parts,
				oracle.Part{MediaType: mt, Data: a.Data},
				oracle.TextPart(fmt.Sprintf("[System: Attachment '%s' saved as '%s'. Include %s in your output to link it.]",
					a.Filename, saved, linkFor(mt, saved))))
		case len(a.Data) <= MaxInlineText && utf8.Valid(a.Data):
			texts = append(texts, fmt.Sprintf("### File: %s\n```\n%s\n```", a.Filename, strings.TrimRight(string(a.Data), "\n")))
		default:
			saved, err := store.SaveAttachment(ctx, a.Filename, a.Data)
			if err != nil {
				logger.Warn("attachments: save failed", slog.String("file", a.Filename), slog.String("error", err.Error()))
				continue
			}
			texts = append(texts, fmt.Sprintf("### File: %s\nSaved as [[%s]] (%d bytes, not inlined).", a.Filename, saved, len(a.Data)))
		}
	}
	if len(texts) > 0 {
		parts = append([]oracle.Part{oracle.TextPart("## Attachments\n\n" + strings.Join(texts, "\n\n"))}, parts...)
	}
	return parts
}

// linkFor returns the wiki-link for a saved attachment: images are embedded,
// other files are linked.
func linkFor(mt, name string) string {
	if strings.HasPrefix(mt, "image/") {
		return "![[" + name + "]]"
	}
	return "[[" + name + "]]"
}

func mediaType(mt string) string {
	mt = strings.ToLower(strings.TrimSpace(mt))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if mt == "image/jpg" {
		return "image/jpeg"
	}
	return mt
}
