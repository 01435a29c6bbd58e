package plugin

import (
	"fmt"
	"sort"
	"sync"

	"git.home.luguber.info/inful/bundledev/internal/config"
	ferrors "git.home.luguber.info/inful/bundledev/internal/foundation/errors"
)

// Registry maps plugin names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a new empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under name.
// Returns an error if the name is already taken.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" {
		return fmt.Errorf("plugin name is required")
	}
	if factory == nil {
		return fmt.Errorf("cannot register nil factory for plugin %s", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("plugin %s already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// Has checks if a plugin with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.factories[name]
	return ok
}

// Names returns the registered plugin names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New instantiates the plugin described by spec. An unknown name is a schema
// error; a factory rejecting its options is a config error.
func (r *Registry) New(spec config.PluginSpec) (Plugin, error) {
	r.mu.RLock()
	factory, ok := r.factories[spec.Name]
	r.mu.RUnlock()

	if !ok {
		return nil, ferrors.SchemaError("unknown plugin").
			WithContext("plugin", spec.Name).
			WithContext("available", r.Names()).
			Build()
	}

	p, err := factory(spec.Options)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "invalid plugin options").
			Fatal().
			WithContext("plugin", spec.Name).
			Build()
	}
	if err := p.Metadata().Validate(); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryInternal, "invalid plugin metadata").
			WithContext("plugin", spec.Name).
			Build()
	}
	return p, nil
}

// Instantiate builds every configured plugin in order.
func (r *Registry) Instantiate(specs []config.PluginSpec) ([]Plugin, error) {
	out := make([]Plugin, 0, len(specs))
	for _, spec := range specs {
		p, err := r.New(spec)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
