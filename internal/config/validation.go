package config

import (
	"fmt"

	ferrors "git.home.luguber.info/inful/bundledev/internal/foundation/errors"
)

// Warnings reports settings that are valid but will not behave as written.
func Warnings(cfg *Config) []*ferrors.ClassifiedError {
	var out []*ferrors.ClassifiedError
	if On(cfg.DevServer.Hot) && !cfg.HasPlugin("hmr") {
		out = append(out, ferrors.ConfigError("devServer.hot is set but the hmr plugin is not configured; pages will not receive updates").
			Warning().
			WithContext("field", "plugins").
			Build())
	}
	if On(cfg.DevServer.HotOnly) && !On(cfg.DevServer.Hot) {
		out = append(out, ferrors.ConfigError("devServer.hotOnly has no effect without devServer.hot").
			Warning().
			WithContext("field", "devServer.hotOnly").
			Build())
	}
	return out
}

// Validate checks an effective configuration. All failures are schema errors.
func Validate(cfg *Config) error {
	if cfg == nil {
		return ferrors.SchemaError("configuration is empty").Build()
	}
	if !cfg.Mode.IsValid() {
		return ferrors.SchemaError(fmt.Sprintf("mode must be %q or %q", ModeDevelopment, ModeProduction)).
			WithContext("field", "mode").
			WithContext("value", string(cfg.Mode)).
			Build()
	}
	if err := validateEntries(cfg.Entry); err != nil {
		return err
	}
	if cfg.Output.Path == "" {
		return ferrors.SchemaError("output.path is required").WithContext("field", "output.path").Build()
	}
	for i, rule := range cfg.Rules {
		if err := validateRule(i, rule); err != nil {
			return err
		}
	}
	for i, p := range cfg.Plugins {
		if p.Name == "" {
			return ferrors.SchemaError("plugin name is required").
				WithContext("field", fmt.Sprintf("plugins[%d]", i)).
				Build()
		}
	}
	if cfg.DevServer.Port < 0 || cfg.DevServer.Port > 65535 {
		return ferrors.SchemaError("devServer.port out of range").
			WithContext("field", "devServer.port").
			WithContext("value", cfg.DevServer.Port).
			Build()
	}
	return nil
}

func validateEntries(entries Entries) error {
	if len(entries) == 0 {
		return ferrors.SchemaError("entry is required").WithContext("field", "entry").Build()
	}
	seen := make(map[string]bool, len(entries))
	for _, ep := range entries {
		field := "entry." + ep.Name
		if ep.Name == "" || ep.Path == "" {
			return ferrors.SchemaError("entry needs a name and a path").WithContext("field", field).Build()
		}
		if seen[ep.Name] {
			return ferrors.SchemaError("duplicate entry name").WithContext("field", field).Build()
		}
		seen[ep.Name] = true
	}
	return nil
}

func validateRule(i int, rule Rule) error {
	field := fmt.Sprintf("rules[%d]", i)
	if rule.Test == "" {
		return ferrors.SchemaError("rule test pattern is required").WithContext("field", field+".test").Build()
	}
	if _, _, err := rule.Patterns(); err != nil {
		return ferrors.WrapError(err, ferrors.CategorySchema, "malformed rule pattern").
			Fatal().
			WithContext("field", field).
			Build()
	}
	if len(rule.Use) == 0 {
		return ferrors.SchemaError("rule has no handlers").WithContext("field", field+".use").Build()
	}
	for j, h := range rule.Use {
		if h.Loader == "" {
			return ferrors.SchemaError("handler name is required").
				WithContext("field", fmt.Sprintf("%s.use[%d]", field, j)).
				Build()
		}
	}
	return nil
}

// IsSchemaError reports whether err (or anything it wraps) is a schema error.
func IsSchemaError(err error) bool {
	return ferrors.HasCategory(err, ferrors.CategorySchema)
}
