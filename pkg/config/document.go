package config

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is a cassandra.yaml kept as a yaml.v3 mapping node, so that keys
// keep the order and comments of the shipped file when it is written back.
type Document struct {
	root *yaml.Node
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{root: &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}}
}

// Parse parses data as a YAML mapping. Empty input yields an empty document.
func Parse(data []byte) (*Document, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}

	if doc.Kind == 0 || len(doc.Content) == 0 {
		return NewDocument(), nil
	}
	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return NewDocument(), nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected a yaml mapping, got %s", kindName(root.Kind))
	}
	return &Document{root: root}, nil
}

// Load reads and parses the file at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Keys returns the top-level keys in document order.
func (d *Document) Keys() []string {
	keys := make([]string, 0, len(d.root.Content)/2)
	for i := 0; i+1 < len(d.root.Content); i += 2 {
		keys = append(keys, d.root.Content[i].Value)
	}
	return keys
}

// Has reports whether key is present.
func (d *Document) Has(key string) bool {
	return d.node(key) != nil
}

// Get decodes the value of key.
func (d *Document) Get(key string) (any, bool) {
	n := d.node(key)
	if n == nil {
		return nil, false
	}
	var v any
	if err := n.Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

// Scalar returns the literal text of a scalar value. Null values and
// non-scalar values report false.
func (d *Document) Scalar(key string) (string, bool) {
	n := d.node(key)
	if n == nil || n.Kind != yaml.ScalarNode || n.Tag == "!!null" {
		return "", false
	}
	return n.Value, true
}

// Set replaces the value of key, appending the key if it is missing.
func (d *Document) Set(key string, value any) error {
	var n yaml.Node
	if err := n.Encode(value); err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	for i := 0; i+1 < len(d.root.Content); i += 2 {
		if d.root.Content[i].Value == key {
			// Keep comments attached to the old value
			n.HeadComment = d.root.Content[i+1].HeadComment
			n.LineComment = d.root.Content[i+1].LineComment
			d.root.Content[i+1] = &n
			return nil
		}
	}

	d.root.Content = append(d.root.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		&n,
	)
	return nil
}

// Delete removes key and reports whether it was present.
func (d *Document) Delete(key string) bool {
	for i := 0; i+1 < len(d.root.Content); i += 2 {
		if d.root.Content[i].Value == key {
			d.root.Content = append(d.root.Content[:i], d.root.Content[i+2:]...)
			return true
		}
	}
	return false
}

// Merge sets every entry of props, in key order.
func (d *Document) Merge(props map[string]any) error {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := d.Set(k, props[k]); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceStrings replaces old with new in every string scalar below key and
// returns the number of scalars changed.
func (d *Document) ReplaceStrings(key, old, new string) int {
	n := d.node(key)
	if n == nil || old == "" {
		return 0
	}
	return replaceIn(n, old, new)
}

func replaceIn(n *yaml.Node, old, new string) int {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!!str" && strings.Contains(n.Value, old) {
			n.Value = strings.ReplaceAll(n.Value, old, new)
			return 1
		}
		return 0
	case yaml.MappingNode:
		count := 0
		// Only values; keys are structure
		for i := 1; i < len(n.Content); i += 2 {
			count += replaceIn(n.Content[i], old, new)
		}
		return count
	default:
		count := 0
		for _, c := range n.Content {
			count += replaceIn(c, old, new)
		}
		return count
	}
}

// Marshal renders the document as YAML.
func (d *Document) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d.root); err != nil {
		return nil, fmt.Errorf("failed to encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d *Document) node(key string) *yaml.Node {
	for i := 0; i+1 < len(d.root.Content); i += 2 {
		if d.root.Content[i].Value == key {
			return d.root.Content[i+1]
		}
	}
	return nil
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "unknown"
	}
}
