// Package builtin provides the plugins available to every configuration:
// html, clean, banner, define and hmr.
package builtin

import (
	"git.home.luguber.info/inful/bundledev/internal/plugin"
)

const version = "v1.0.0"

// Register adds every builtin plugin to r.
func Register(r *plugin.Registry) error {
	for name, factory := range map[string]plugin.Factory{
		HTMLName:   NewHTML,
		CleanName:  NewClean,
		BannerName: NewBanner,
		DefineName: NewDefine,
		HMRName:    NewHMR,
	} {
		if err := r.Register(name, factory); err != nil {
			return err
		}
	}
	return nil
}

// Registry returns a fresh registry holding the builtin plugins.
func Registry() *plugin.Registry {
	r := plugin.NewRegistry()
	if err := Register(r); err != nil {
		panic(err) // names are constants; a clash is a programming error
	}
	return r
}
