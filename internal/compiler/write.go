package compiler

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	ferrors "git.home.luguber.info/inful/bundledev/internal/foundation/errors"
	"git.home.luguber.info/inful/bundledev/internal/plugin"
)

// WriteTo writes the latest good output below dir, running every plugin's
// BeforeWrite hook first. An empty dir means output.path.
func (c *Compiler) WriteTo(ctx context.Context, dir string) error {
	good, src := c.Snapshot()
	if good == nil {
		return ferrors.CompileError("nothing compiled yet").Build()
	}
	if dir == "" {
		dir = c.outDir
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return ferrors.FileSystemError("resolve output directory").WithCause(err).Build()
	}

	for _, p := range c.plugins {
		dp, ok := p.(plugin.DiskPreparer)
		if !ok {
			continue
		}
		if err := dp.BeforeWrite(ctx, dir); err != nil {
			return ferrors.WrapError(plugin.NewError(p.Metadata().Name, "before-write", err), ferrors.CategoryFileSystem, "prepare output directory").
				WithContext("path", dir).Build()
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ferrors.FileSystemError("create output directory").WithCause(err).WithContext("path", dir).Build()
	}
	dst := afero.NewBasePathFs(afero.NewOsFs(), dir)
	for _, a := range good.Artifacts {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := afero.ReadFile(src, a.Path)
		if err != nil {
			return ferrors.WrapError(err, ferrors.CategoryInternal, "read artifact").WithContext("path", a.Path).Build()
		}
		name := filepath.FromSlash(a.Path)
		if err := dst.MkdirAll(filepath.Dir(name), 0o755); err != nil {
			return ferrors.FileSystemError("create artifact directory").WithCause(err).WithContext("path", a.Path).Build()
		}
		if err := afero.WriteFile(dst, name, data, 0o644); err != nil {
			return ferrors.FileSystemError("write artifact").WithCause(err).WithContext("path", a.Path).Build()
		}
	}
	c.logger.Info("Output written", "dir", dir, "artifacts", len(good.Artifacts))
	return nil
}
