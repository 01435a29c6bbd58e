package builtin

import (
	"encoding/json"
	"fmt"
	"sort"

	"git.home.luguber.info/inful/bundledev/internal/plugin"
)

// DefineName is the configuration name of the compile-time constants plugin.
const DefineName = "define"

// Define replaces global identifiers with constant expressions. String
// option values are used as expressions verbatim; other values are encoded
// as JSON literals.
type Define struct {
	defs map[string]string
}

func NewDefine(options map[string]any) (plugin.Plugin, error) {
	d := &Define{defs: make(map[string]string, len(options))}
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := options[k].(type) {
		case string:
			d.defs[k] = v
		default:
			data, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("define %s: %w", k, err)
			}
			d.defs[k] = string(data)
		}
	}
	return d, nil
}

func (d *Define) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        DefineName,
		Version:     version,
		Description: "Substitutes compile-time constants",
	}
}

func (d *Define) Configure(s *plugin.Settings) error {
	if s.Define == nil {
		s.Define = make(map[string]string, len(d.defs))
	}
	for k, v := range d.defs {
		s.Define[k] = v
	}
	return nil
}
