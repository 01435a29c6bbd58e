// Package plugin defines the lifecycle hooks a bundle build can be extended
// with. A plugin implements Plugin plus any of the optional hook interfaces;
// the compiler invokes each hook for every configured plugin in declaration
// order.
package plugin

import (
	"context"
	"fmt"
)

// Plugin is a named build extension.
type Plugin interface {
	// Metadata returns the plugin's identity.
	Metadata() Metadata
}

// Configurer runs once when the compiler is created and may adjust the
// settings handed to the external compiler.
type Configurer interface {
	Configure(s *Settings) error
}

// Emitter runs after every compile that produced no errors, before the output
// becomes visible. It may read and add artifacts.
type Emitter interface {
	AfterCompile(ctx context.Context, out *Output) error
}

// DiskPreparer runs before the output is written to disk.
type DiskPreparer interface {
	BeforeWrite(ctx context.Context, dir string) error
}

// Metadata describes a plugin's identity.
type Metadata struct {
	Name        string
	Version     string
	Description string
}

// String returns a human-readable representation of the plugin metadata.
func (m Metadata) String() string {
	return fmt.Sprintf("%s@%s", m.Name, m.Version)
}

// Validate checks if the plugin metadata is valid.
func (m Metadata) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("plugin name is required")
	}
	if m.Version == "" {
		return fmt.Errorf("plugin version is required")
	}
	return nil
}

// Factory builds a plugin instance from its configured options.
type Factory func(options map[string]any) (Plugin, error)

// Error represents an error that occurred within a plugin hook.
type Error struct {
	PluginName string
	Hook       string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("plugin %s failed during %s: %v", e.PluginName, e.Hook, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with the plugin and hook that produced it.
func NewError(pluginName, hook string, err error) *Error {
	return &Error{PluginName: pluginName, Hook: hook, Err: err}
}
