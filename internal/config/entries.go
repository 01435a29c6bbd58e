package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// DefaultEntryName is the bundle name used when entry is a bare path.
const DefaultEntryName = "main"

// EntryPoint maps a bundle name to its source path.
type EntryPoint struct {
	Name string
	Path string
}

// Entries is an ordered bundle-name → source-path mapping.
type Entries []EntryPoint

// Get returns the path for a bundle name.
func (e Entries) Get(name string) (string, bool) {
	for _, ep := range e {
		if ep.Name == name {
			return ep.Path, true
		}
	}
	return "", false
}

// Names returns the bundle names in declaration order.
func (e Entries) Names() []string {
	names := make([]string, 0, len(e))
	for _, ep := range e {
		names = append(names, ep.Name)
	}
	return names
}

// merge returns base with overlay applied: equal names take the overlay path in
// place, new names are appended in overlay order.
func (e Entries) merge(overlay Entries) Entries {
	out := make(Entries, len(e), len(e)+len(overlay))
	copy(out, e)
	for _, ep := range overlay {
		replaced := false
		for i := range out {
			if out[i].Name == ep.Name {
				out[i].Path = ep.Path
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, ep)
		}
	}
	return out
}

// UnmarshalYAML accepts a bare path (shorthand for {main: path}) or a mapping.
func (e *Entries) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Value == "" {
			*e = nil
			return nil
		}
		*e = Entries{{Name: DefaultEntryName, Path: node.Value}}
		return nil
	case yaml.MappingNode:
		out := make(Entries, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			k, v := node.Content[i], node.Content[i+1]
			if v.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: entry %q must map to a path", v.Line, k.Value)
			}
			out = append(out, EntryPoint{Name: k.Value, Path: v.Value})
		}
		*e = out
		return nil
	default:
		return fmt.Errorf("line %d: entry must be a path or a mapping", node.Line)
	}
}

// MarshalYAML renders entries as an ordered mapping.
func (e Entries) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, ep := range e {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: ep.Name},
			&yaml.Node{Kind: yaml.ScalarNode, Value: ep.Path},
		)
	}
	return node, nil
}
