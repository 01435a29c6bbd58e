package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/bundledev/internal/compiler"
	"git.home.luguber.info/inful/bundledev/internal/config"
	ferrors "git.home.luguber.info/inful/bundledev/internal/foundation/errors"
	"git.home.luguber.info/inful/bundledev/internal/logfields"
)

// BuildCmd compiles once and writes the artifacts to disk.
type BuildCmd struct {
	Out   string `name:"out" help:"Write here instead of output.path"`
	Stats bool   `help:"Print the compilation as JSON on stdout"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := root.ResolveConfig(config.ModeProduction)
	if err != nil {
		return err
	}
	log := g.logger()

	c, err := compiler.New(cfg, compiler.WithLogger(log))
	if err != nil {
		return err
	}
	defer c.Close()

	comp, err := c.Compile(ctx)
	if err != nil {
		return err
	}
	for _, w := range comp.Warnings {
		log.Warn(w.String())
	}
	if comp.Failed() {
		for _, e := range comp.Errors {
			log.Error(e.String())
		}
		return ferrors.CompileError("compilation failed").
			WithContext("errors", len(comp.Errors)).
			Build()
	}

	dir := c.OutDir()
	if b.Out != "" {
		if dir, err = cfg.ResolvePath(b.Out); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryConfig, "resolve --out").Build()
		}
	}
	if err := c.WriteTo(ctx, dir); err != nil {
		return err
	}
	log.Info("Build complete",
		logfields.CompilationID(comp.ID),
		"hash", comp.Hash,
		"artifacts", len(comp.Artifacts),
		"duration", comp.Duration,
		"output", dir)

	if b.Stats {
		enc := json.NewEncoder(g.out())
		enc.SetIndent("", "  ")
		if err := enc.Encode(comp); err != nil {
			return fmt.Errorf("encode stats: %w", err)
		}
	}
	return nil
}
