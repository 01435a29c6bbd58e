package config

import (
	"reflect"

	"dario.cat/mergo"
	"github.com/jinzhu/copier"

	ferrors "git.home.luguber.info/inful/bundledev/internal/foundation/errors"
)

// Merge overlays an environment-specific configuration onto a base one and
// returns the validated effective configuration.
//
// Scalar fields set in overlay replace base values. Rules and plugins are
// concatenated base-then-overlay. Entries merge by bundle name. Neither input
// is modified. Merge fails with a schema error when the result lacks entry or
// output.path.
func Merge(base, overlay *Config) (*Config, error) {
	merged, err := mergeConfigs(base, overlay)
	if err != nil {
		return nil, err
	}
	applyDefaults(merged)
	normalize(merged)
	if err := Validate(merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// mergeConfigs performs the raw field merge without defaults or validation.
func mergeConfigs(base, overlay *Config) (*Config, error) {
	out, err := clone(base)
	if err != nil {
		return nil, err
	}
	if overlay == nil {
		return out, nil
	}
	src, err := clone(overlay)
	if err != nil {
		return nil, err
	}
	if err := mergo.Merge(out, src,
		mergo.WithOverride,
		mergo.WithAppendSlice,
		mergo.WithTransformers(configTransformers{}),
	); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryInternal, "merge configuration").Build()
	}
	return out, nil
}

// clone deep-copies a configuration so merging never aliases input maps or slices.
func clone(cfg *Config) (*Config, error) {
	out := &Config{}
	if cfg == nil {
		return out, nil
	}
	if err := copier.CopyWithOption(out, cfg, copier.Option{DeepCopy: true}); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryInternal, "copy configuration").Build()
	}
	return out, nil
}

// configTransformers customizes mergo for Entries and switch fields.
type configTransformers struct{}

var (
	entriesType = reflect.TypeOf(Entries{})
	switchType  = reflect.TypeOf((*bool)(nil))
)

func (configTransformers) Transformer(t reflect.Type) func(dst, src reflect.Value) error {
	switch t {
	case entriesType:
		return mergeEntries
	case switchType:
		return mergeSwitch
	}
	return nil
}

// mergeEntries replaces mergo's slice append with a keyed merge by bundle name.
func mergeEntries(dst, src reflect.Value) error {
	if !dst.CanSet() {
		return nil
	}
	merged := dst.Interface().(Entries).merge(src.Interface().(Entries))
	dst.Set(reflect.ValueOf(merged))
	return nil
}

// mergeSwitch lets any switch present in the overlay win, including false.
// mergo alone treats false as unset.
func mergeSwitch(dst, src reflect.Value) error {
	if !dst.CanSet() || src.IsNil() {
		return nil
	}
	dst.Set(reflect.ValueOf(Bool(src.Elem().Bool())))
	return nil
}
