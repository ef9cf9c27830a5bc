// Package checksum hashes document content for change detection and write
// preconditions, and maps checksums to and from HTTP entity tags.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Absent is a write precondition requiring that the document does not exist
// yet. No content hashes to it.
const Absent = "absent"

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Matches reports whether data hashes to want. An empty want always matches.
func Matches(data []byte, want string) bool {
	return want == "" || Sum(data) == want
}

// ETag quotes sum as a strong entity tag.
func ETag(sum string) string {
	return `"` + sum + `"`
}

// FromETag extracts the checksum from an If-Match style header value.
// Weak tags are accepted. "*" and an empty header yield "", which Matches
// treats as no precondition.
func FromETag(header string) string {
	v := strings.TrimSpace(header)
	if v == "*" {
		return ""
	}
	v = strings.TrimPrefix(v, "W/")
	return strings.Trim(v, `"`)
}
