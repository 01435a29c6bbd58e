package builtin

import (
	"git.home.luguber.info/inful/bundledev/internal/hmr"
	"git.home.luguber.info/inful/bundledev/internal/plugin"
)

// HMRName is the configuration name of the hot update plugin.
const HMRName = "hmr"

// HMR puts the hot update client runtime in front of every script bundle
// when the development server runs with hot updates enabled.
type HMR struct{}

func NewHMR(map[string]any) (plugin.Plugin, error) {
	return &HMR{}, nil
}

func (*HMR) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        HMRName,
		Version:     version,
		Description: "Injects the hot module replacement client runtime",
	}
}

func (*HMR) Configure(s *plugin.Settings) error {
	if !s.Hot {
		return nil
	}
	s.PrependBanner("js", hmr.ClientScript(hmr.ScriptOptions{HotOnly: s.HotOnly}))
	return nil
}
