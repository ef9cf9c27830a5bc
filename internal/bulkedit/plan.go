// Package bulkedit turns an oracle-proposed edit plan into validated,
// capped, per-document metadata mutations.
package bulkedit

import (
	"fmt"
	"math"
	"path"
	"sort"
	"strings"

	"github.com/starford/synapse/internal/frontmatter"
)

// MaxTargets is the most documents a single edit may mutate.
const MaxTargets = 10

// Candidate is a document the user's request may refer to, with its
// current metadata as shown to the oracle.
type Candidate struct {
	Path     string
	Folder   string
	Filename string
	Metadata *frontmatter.Metadata
}

// Proposal is one entry of the oracle's plan before validation.
type Proposal struct {
	Path     string         `json:"path,omitempty"`
	Filename string         `json:"filename"`
	Folder   string         `json:"folder,omitempty"`
	Updates  map[string]any `json:"frontmatter_updates"`
}

// Entry is a validated mutation of one candidate. Updates values are
// replacement values or frontmatter.Tombstone.
type Entry struct {
	Path    string
	Updates map[string]any
}

// Plan is a validated edit plan. Only candidates supplied at validation
// time can ever be mutated by Apply.
type Plan struct {
	Summary  string
	Entries  []Entry
	Rejected []Outcome // proposals that could not be mapped onto a candidate

	allowed map[string]struct{}
}

// Validate maps proposals onto candidates. A proposal must name a
// candidate by path, or by file name (with or without .md) plus an
// optional folder; ambiguous or unknown names are rejected. Proposals for
// the same document are merged. JSON null values become deletions.
func Validate(candidates []Candidate, proposals []Proposal, summary string) *Plan {
	p := &Plan{Summary: summary, allowed: make(map[string]struct{}, len(candidates))}
	for _, c := range candidates {
		p.allowed[c.Path] = struct{}{}
	}

	merged := make(map[string]map[string]any)
	var order []string
	for _, prop := range proposals {
		name := identity(prop)
		target, reason := resolve(candidates, prop)
		if target == "" {
			p.Rejected = append(p.Rejected, Outcome{Document: name, Status: StatusRejected, Reason: reason})
			continue
		}
		if len(prop.Updates) == 0 {
			p.Rejected = append(p.Rejected, Outcome{Document: target, Status: StatusSkipped, Reason: "no field updates proposed"})
			continue
		}
		if _, ok := merged[target]; !ok {
			merged[target] = make(map[string]any)
			order = append(order, target)
		}
		for k, v := range prop.Updates {
			k = strings.TrimSpace(k)
			if k == "" {
				continue
			}
			merged[target][k] = NormalizeValue(v)
		}
	}
	for _, target := range order {
		p.Entries = append(p.Entries, Entry{Path: target, Updates: merged[target]})
	}
	return p
}

// Targets returns the number of distinct documents the plan would mutate.
func (p *Plan) Targets() int { return len(p.Entries) }

func identity(prop Proposal) string {
	if prop.Path != "" {
		return prop.Path
	}
	if prop.Folder != "" {
		return path.Join(prop.Folder, prop.Filename)
	}
	return prop.Filename
}

func resolve(candidates []Candidate, prop Proposal) (string, string) {
	if prop.Path != "" {
		for _, c := range candidates {
			if c.Path == prop.Path {
				return c.Path, ""
			}
		}
	}
	name := strings.TrimSpace(prop.Filename)
	if name == "" && prop.Path != "" {
		name = path.Base(prop.Path)
	}
	if name == "" {
		return "", "no document named"
	}
	folder := strings.Trim(strings.TrimSpace(prop.Folder), "/")
	want := strings.ToLower(strings.TrimSuffix(name, ".md"))

	var matches []string
	for _, c := range candidates {
		stem := strings.ToLower(strings.TrimSuffix(c.Filename, ".md"))
		if stem != want {
			continue
		}
		if folder != "" && !strings.EqualFold(folder, c.Folder) {
			continue
		}
		matches = append(matches, c.Path)
	}
	switch len(matches) {
	case 0:
		return "", "not among the candidate documents"
	case 1:
		return matches[0], ""
	default:
		sort.Strings(matches)
		return "", fmt.Sprintf("ambiguous: matches %s", strings.Join(matches, ", "))
	}
}

// NormalizeValue converts JSON-decoded values into header values: null becomes
// a deletion, integral numbers become ints.
func NormalizeValue(v any) any {
	switch t := v.(type) {
	case nil:
		return frontmatter.Tombstone{}
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return int(t)
		}
		return t
	case []any:
		out := make([]any, len(t))
		for i, it := range t {
			if it == nil {
				out[i] = ""
				continue
			}
			out[i] = NormalizeValue(it)
		}
		return out
	default:
		return v
	}
}
