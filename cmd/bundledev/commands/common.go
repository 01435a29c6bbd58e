package commands

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/bundledev/internal/config"
)

// Global carries state shared by every subcommand.
type Global struct {
	Logger *slog.Logger
	Out    io.Writer
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Base configuration file" default:"bundledev.yaml"`
	Overlay []string         `short:"o" help:"Overlay configuration file, merged onto the base in order (repeatable)"`
	Mode    string           `short:"m" help:"Force the mode (development or production)"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Serve      ServeCmd      `cmd:"" help:"Compile, watch and serve with live updates"`
	Build      BuildCmd      `cmd:"" help:"Compile once and write the output to disk"`
	ShowConfig ShowConfigCmd `cmd:"" name:"config" help:"Print the effective merged configuration"`
	Listen     ListenCmd     `cmd:"" help:"Follow a running dev server's update stream"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

// ResolveConfig loads the base file and overlays into the effective
// configuration. Without overlay files the canonical overlay for the forced
// mode (or fallback) is applied; with overlay files only an explicit --mode
// overrides what they declare.
func (c *CLI) ResolveConfig(fallback config.Mode) (*config.Config, error) {
	mode := config.Mode(c.Mode)
	if mode == "" && len(c.Overlay) == 0 {
		mode = fallback
	}
	return config.Resolve(mode, c.Config, c.Overlay...)
}

func (g *Global) logger() *slog.Logger {
	if g == nil || g.Logger == nil {
		return slog.Default()
	}
	return g.Logger
}

func (g *Global) out() io.Writer {
	if g == nil || g.Out == nil {
		return os.Stdout
	}
	return g.Out
}
