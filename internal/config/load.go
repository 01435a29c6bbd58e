package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/bundledev/internal/foundation/errors"
)

// envFiles are loaded, in order, before configuration files are expanded.
// Variables already present in the process environment are not overwritten.
var envFiles = []string{".env", ".env.local"}

// Load reads a single configuration file without validating it, since an
// overlay alone is usually incomplete. YAML is the primary format; .json and
// .jsonc files may contain comments and trailing commas. ${VAR} references are
// expanded from the environment. A relative context is taken relative to the
// file's own directory; without one, paths resolve against the working
// directory.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ferrors.ConfigError("configuration file not found").WithContext("path", path).Build()
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "read configuration").Fatal().WithContext("path", path).Build()
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "parse configuration").Fatal().WithContext("path", path).Build()
	}
	if cfg.Context != "" && !filepath.IsAbs(cfg.Context) {
		cfg.Context = filepath.Join(filepath.Dir(path), cfg.Context)
	}
	return &cfg, nil
}

// Resolve loads the base file and merges each overlay file onto it in order.
// When no overlay file is given, the canonical overlay for mode is used; an
// empty mode keeps whatever the base declares.
func Resolve(mode Mode, basePath string, overlayPaths ...string) (*Config, error) {
	cfg, err := Load(basePath)
	if err != nil {
		return nil, err
	}
	if len(overlayPaths) == 0 {
		overlay := &Config{}
		if mode != "" {
			overlay = OverlayFor(mode)
		}
		return Merge(cfg, overlay)
	}
	for i, p := range overlayPaths {
		overlay, err := Load(p)
		if err != nil {
			return nil, err
		}
		if mode != "" && i == len(overlayPaths)-1 {
			overlay.Mode = mode
		}
		if i < len(overlayPaths)-1 {
			if cfg, err = mergeConfigs(cfg, overlay); err != nil {
				return nil, err
			}
			continue
		}
		if cfg, err = Merge(cfg, overlay); err != nil {
			return nil, err
		}
	}
	slog.Debug("Configuration resolved", "base", basePath, "overlays", len(overlayPaths), "mode", cfg.Mode)
	return cfg, nil
}

func loadEnvFiles() {
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			slog.Warn("Failed to load env file", "file", f, "error", err)
		}
	}
}

// ResolvePath joins a config-relative path onto the configuration context and
// returns an absolute path.
func (c *Config) ResolvePath(p string) (string, error) {
	if !filepath.IsAbs(p) {
		p = filepath.Join(c.Context, p)
	}
	return filepath.Abs(p)
}
