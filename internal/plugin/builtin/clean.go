package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"git.home.luguber.info/inful/bundledev/internal/plugin"
)

// CleanName is the configuration name of the output cleaning plugin.
const CleanName = "clean"

// Clean empties the output directory before artifacts are written to disk.
// Top-level names listed in the keep option survive.
type Clean struct {
	keep []string
}

func NewClean(options map[string]any) (plugin.Plugin, error) {
	c := &Clean{}
	raw, ok := options["keep"]
	if !ok || raw == nil {
		return c, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("option keep must be a list, got %T", raw)
	}
	for _, v := range list {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("option keep must list names, got %T", v)
		}
		c.keep = append(c.keep, s)
	}
	return c, nil
}

func (c *Clean) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        CleanName,
		Version:     version,
		Description: "Removes stale files from the output directory before writing",
	}
}

func (c *Clean) BeforeWrite(_ context.Context, dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if abs == filepath.Dir(abs) {
		return fmt.Errorf("refusing to clean filesystem root %s", abs)
	}
	entries, err := os.ReadDir(abs)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if slices.Contains(c.keep, e.Name()) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(abs, e.Name())); err != nil {
			return err
		}
	}
	return nil
}
