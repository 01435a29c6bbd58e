package config

import (
	"strings"

	"git.home.luguber.info/inful/bundledev/internal/foundation/normalization"
)

const (
	DefaultFilename      = "[name].js"
	DefaultAssetFilename = "[name]-[hash]"
	DefaultPublicPath    = "/"
	DefaultPort          = 3000
)

// applyDefaults fills optional fields. Required fields (entry, output.path) are
// never defaulted so that their absence surfaces as a schema error.
func applyDefaults(cfg *Config) {
	if cfg.Context == "" {
		cfg.Context = "."
	}
	if cfg.Output.Filename == "" {
		cfg.Output.Filename = DefaultFilename
	}
	if cfg.Output.AssetFilename == "" {
		cfg.Output.AssetFilename = DefaultAssetFilename
	}
	if cfg.Output.PublicPath == "" {
		cfg.Output.PublicPath = DefaultPublicPath
	}
	if cfg.DevServer.Port == 0 {
		cfg.DevServer.Port = DefaultPort
	}
}

var modes = normalization.NewNormalizer(map[string]Mode{
	"development": ModeDevelopment,
	"dev":         ModeDevelopment,
	"production":  ModeProduction,
	"prod":        ModeProduction,
})

// handlerName accepts both "css" and the "css-loader" spelling.
func handlerName(s string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "-loader")
}

// normalize canonicalizes case and path shapes before validation.
func normalize(cfg *Config) {
	if m, ok := modes.Lookup(string(cfg.Mode)); ok {
		cfg.Mode = m
	} else {
		cfg.Mode = Mode(modes.Clean(string(cfg.Mode)))
	}
	cfg.Devtool = strings.ToLower(strings.TrimSpace(cfg.Devtool))
	cfg.Output.PublicPath = NormalizePublicPath(cfg.Output.PublicPath)
	for i := range cfg.Rules {
		for j := range cfg.Rules[i].Use {
			h := &cfg.Rules[i].Use[j]
			h.Loader = handlerName(h.Loader)
			if len(h.Options) == 0 {
				h.Options = nil
			}
		}
	}
	for i := range cfg.Plugins {
		cfg.Plugins[i].Name = strings.ToLower(cfg.Plugins[i].Name)
		if len(cfg.Plugins[i].Options) == 0 {
			cfg.Plugins[i].Options = nil
		}
	}
	if len(cfg.Rules) == 0 {
		cfg.Rules = nil
	}
	if len(cfg.Plugins) == 0 {
		cfg.Plugins = nil
	}
}

// NormalizePublicPath returns a path with exactly one leading and one trailing
// slash. Absolute URLs are left alone apart from the trailing slash.
func NormalizePublicPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == "/" {
		return "/"
	}
	if !strings.Contains(p, "://") {
		p = "/" + strings.Trim(p, "/")
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// DevelopmentOverlay is the canonical development overlay used when no overlay
// file is given.
func DevelopmentOverlay() *Config {
	return &Config{
		Mode:         ModeDevelopment,
		Devtool:      "source-map",
		Plugins:      []PluginSpec{{Name: "hmr"}},
		DevServer:    DevServerConfig{Hot: Bool(true), Port: DefaultPort},
		Optimization: OptimizationConfig{UsedExports: Bool(true)},
	}
}

// ProductionOverlay is the canonical production overlay used when no overlay
// file is given.
func ProductionOverlay() *Config {
	return &Config{
		Mode:         ModeProduction,
		Devtool:      "none",
		Plugins:      []PluginSpec{{Name: "clean"}},
		Optimization: OptimizationConfig{UsedExports: Bool(true), Minimize: Bool(true)},
	}
}

// OverlayFor returns the canonical overlay for a mode.
func OverlayFor(mode Mode) *Config {
	if mode == ModeProduction {
		return ProductionOverlay()
	}
	return DevelopmentOverlay()
}
