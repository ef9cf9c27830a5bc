package frontmatter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Metadata is an ordered mapping of header keys to scalar or list values.
// Values read from disk keep their original YAML node so that untouched
// fields are re-rendered exactly as they were written.
type Metadata struct {
	keys   []string
	values map[string]any
	nodes  map[string]*yaml.Node
}

// NewMetadata returns an empty Metadata.
func NewMetadata() *Metadata {
	return &Metadata{
		values: make(map[string]any),
		nodes:  make(map[string]*yaml.Node),
	}
}

// Len returns the number of fields.
func (m *Metadata) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the field names in header order.
func (m *Metadata) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Get returns the value stored under key.
func (m *Metadata) Get(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

// String returns the value under key formatted as text ("" when absent).
func (m *Metadata) String(key string) string {
	v, ok := m.Get(key)
	if !ok {
		return ""
	}
	return FormatValue(v)
}

// Set inserts or overwrites key. New keys are appended at the end.
func (m *Metadata) Set(key string, value any) {
	if m.values == nil {
		m.values = make(map[string]any)
		m.nodes = make(map[string]*yaml.Node)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
	delete(m.nodes, key)
}

// Delete removes key and reports whether it was present.
func (m *Metadata) Delete(key string) bool {
	if _, ok := m.values[key]; !ok {
		return false
	}
	delete(m.values, key)
	delete(m.nodes, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
	return true
}

// Map returns the fields as an unordered map.
func (m *Metadata) Map() map[string]any {
	out := make(map[string]any, m.Len())
	if m == nil {
		return out
	}
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// Tags returns the "tags" field as a list, accepting either a YAML list or a
// comma/space separated string. Leading '#' characters are stripped.
func (m *Metadata) Tags() []string {
	raw, ok := m.Get("tags")
	if !ok {
		return nil
	}
	var items []string
	switch v := raw.(type) {
	case []any:
		for _, it := range v {
			items = append(items, FormatValue(it))
		}
	case []string:
		items = append(items, v...)
	case string:
		items = strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' })
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, t := range items {
		t = strings.TrimPrefix(strings.TrimSpace(t), "#")
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Equal reports whether the value under key equals v.
func (m *Metadata) Equal(key string, v any) bool {
	cur, ok := m.Get(key)
	return ok && reflect.DeepEqual(cur, v)
}

// UnmarshalYAML decodes a YAML mapping node, preserving key order.
func (m *Metadata) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("header is not a mapping")
	}
	if m.values == nil {
		m.values = make(map[string]any)
		m.nodes = make(map[string]*yaml.Node)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]
		var v any
		if err := valNode.Decode(&v); err != nil {
			return fmt.Errorf("field %q: %w", keyNode.Value, err)
		}
		m.Set(keyNode.Value, v)
		m.nodes[keyNode.Value] = valNode
	}
	return nil
}

// MarshalYAML renders the mapping in key order, reusing original nodes for
// fields that were not modified.
func (m *Metadata) MarshalYAML() (any, error) {
	out := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range m.keys {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}
		valNode, ok := m.nodes[k]
		if !ok {
			valNode = &yaml.Node{}
			if err := valNode.Encode(m.values[k]); err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
		}
		out.Content = append(out.Content, keyNode, valNode)
	}
	return out, nil
}

// MarshalJSON renders the fields as a JSON object in header order.
func (m *Metadata) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Inline renders the fields on one line as "k=v, k=v" for prompt building.
func (m *Metadata) Inline() string {
	parts := make([]string, 0, m.Len())
	for _, k := range m.Keys() {
		parts = append(parts, k+"="+m.String(k))
	}
	return strings.Join(parts, ", ")
}

// FormatValue renders a metadata value as plain text. Lists are joined with ", ".
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []any:
		parts := make([]string, len(t))
		for i, it := range t {
			parts[i] = FormatValue(it)
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(t, ", ")
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + FormatValue(t[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprint(t)
	}
}
