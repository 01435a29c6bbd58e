package builtin

import (
	"fmt"
	"strings"

	"git.home.luguber.info/inful/bundledev/internal/plugin"
)

// BannerName is the configuration name of the banner plugin.
const BannerName = "banner"

// Banner prepends a comment to every script and stylesheet artifact.
type Banner struct {
	text string
	raw  bool
}

func NewBanner(options map[string]any) (plugin.Plugin, error) {
	b := &Banner{}
	var err error
	if b.text, err = plugin.StringOption(options, "banner", ""); err != nil {
		return nil, err
	}
	if b.raw, err = plugin.BoolOption(options, "raw", false); err != nil {
		return nil, err
	}
	if b.text == "" {
		return nil, fmt.Errorf("option banner is required")
	}
	return b, nil
}

func (b *Banner) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        BannerName,
		Version:     version,
		Description: "Adds a banner comment to generated scripts and stylesheets",
	}
}

func (b *Banner) Configure(s *plugin.Settings) error {
	text := b.text
	if !b.raw {
		text = "/*! " + strings.ReplaceAll(text, "*/", "* /") + " */"
	}
	s.PrependBanner("js", text)
	s.PrependBanner("css", text)
	return nil
}
