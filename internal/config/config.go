// Package config assembles the effective bundler configuration: it loads base and
// environment overlay files, merges them and validates the result.
package config

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mode selects the environment variant of a build.
type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
)

// IsValid reports whether the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == ModeDevelopment || m == ModeProduction
}

// Config describes one build: entry points, output location, per-file handler
// rules, plugins and the development server.
type Config struct {
	Mode         Mode               `yaml:"mode,omitempty"`
	Context      string             `yaml:"context,omitempty"` // base directory for relative entry/output paths
	Entry        Entries            `yaml:"entry,omitempty"`
	Output       OutputConfig       `yaml:"output,omitempty"`
	Devtool      string             `yaml:"devtool,omitempty"` // source-map style
	Rules        []Rule             `yaml:"rules,omitempty"`
	Plugins      []PluginSpec       `yaml:"plugins,omitempty"`
	DevServer    DevServerConfig    `yaml:"devServer,omitempty"`
	Optimization OptimizationConfig `yaml:"optimization,omitempty"`
}

// OutputConfig controls where and under which names artifacts are emitted.
type OutputConfig struct {
	Path          string `yaml:"path,omitempty"`
	Filename      string `yaml:"filename,omitempty"`      // e.g. "[name].js"
	AssetFilename string `yaml:"assetFilename,omitempty"` // e.g. "images/[name]_[hash]"
	PublicPath    string `yaml:"publicPath,omitempty"`
}

// DevServerConfig configures the development server.
//
// Switches are pointers so an overlay can turn off a switch its base turned
// on; nil means "not set here".
type DevServerConfig struct {
	ContentBase string `yaml:"contentBase,omitempty"`
	Port        int    `yaml:"port,omitempty"`
	Hot         *bool  `yaml:"hot,omitempty"`
	HotOnly     *bool  `yaml:"hotOnly,omitempty"` // never fall back to a full reload
	Gzip        *bool  `yaml:"gzip,omitempty"`
	Metrics     *bool  `yaml:"metrics,omitempty"`
}

// OptimizationConfig holds switches delegated to the compiler.
type OptimizationConfig struct {
	UsedExports *bool `yaml:"usedExports,omitempty"` // tree shaking
	Minimize    *bool `yaml:"minimize,omitempty"`
}

// Bool returns a pointer to v for use in switch fields.
func Bool(v bool) *bool { return &v }

// On reports whether a switch is set and true.
func On(b *bool) bool { return b != nil && *b }

// Rule applies a handler chain to every source file whose path matches Test
// and does not match Exclude. Handlers run last-to-first.
type Rule struct {
	Test    string       `yaml:"test"`
	Exclude string       `yaml:"exclude,omitempty"`
	Use     HandlerChain `yaml:"use"`
}

// Patterns compiles the rule's test and exclude expressions. exclude is nil when unset.
func (r Rule) Patterns() (test, exclude *regexp.Regexp, err error) {
	test, err = regexp.Compile(r.Test)
	if err != nil {
		return nil, nil, fmt.Errorf("test %q: %w", r.Test, err)
	}
	if r.Exclude != "" {
		exclude, err = regexp.Compile(r.Exclude)
		if err != nil {
			return nil, nil, fmt.Errorf("exclude %q: %w", r.Exclude, err)
		}
	}
	return test, exclude, nil
}

// HandlerRef names one handler of a chain together with its options.
type HandlerRef struct {
	Loader  string         `yaml:"loader"`
	Options map[string]any `yaml:"options,omitempty"`
}

// HandlerChain is the ordered handler list of a rule. In YAML it may be a
// single name, a single mapping or a sequence of either.
type HandlerChain []HandlerRef

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *HandlerChain) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode, yaml.MappingNode:
		var ref HandlerRef
		if err := node.Decode(&ref); err != nil {
			return err
		}
		*c = HandlerChain{ref}
		return nil
	case yaml.SequenceNode:
		out := make(HandlerChain, 0, len(node.Content))
		for _, item := range node.Content {
			var ref HandlerRef
			if err := item.Decode(&ref); err != nil {
				return err
			}
			out = append(out, ref)
		}
		*c = out
		return nil
	default:
		return fmt.Errorf("line %d: use must be a name, mapping or list", node.Line)
	}
}

// UnmarshalYAML accepts both "name" and {loader: name, options: {...}}.
func (h *HandlerRef) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		h.Loader = strings.TrimSpace(node.Value)
		return nil
	}
	type plain HandlerRef
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*h = HandlerRef(p)
	return nil
}

// PluginSpec names a lifecycle plugin and its options.
type PluginSpec struct {
	Name    string         `yaml:"name"`
	Options map[string]any `yaml:"options,omitempty"`
}

// UnmarshalYAML accepts both "name" and {name: ..., options: {...}}.
func (p *PluginSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		p.Name = strings.TrimSpace(node.Value)
		return nil
	}
	type plain PluginSpec
	var v plain
	if err := node.Decode(&v); err != nil {
		return err
	}
	*p = PluginSpec(v)
	return nil
}

// HasPlugin reports whether a plugin with the given name is configured.
func (c *Config) HasPlugin(name string) bool {
	for _, p := range c.Plugins {
		if p.Name == name {
			return true
		}
	}
	return false
}

// Marshal renders the configuration as YAML. Field order follows the struct
// declaration and entry order is preserved, so identical configs render to
// identical bytes.
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}
