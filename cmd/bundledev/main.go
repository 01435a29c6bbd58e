package main

import (
	"log/slog"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/bundledev/cmd/bundledev/commands"
	ferrors "git.home.luguber.info/inful/bundledev/internal/foundation/errors"
	"git.home.luguber.info/inful/bundledev/internal/version"
)

func main() {
	cli := &commands.CLI{}
	parser := kong.Parse(cli,
		kong.Name("bundledev"),
		kong.Description("Development build-and-serve pipeline for web bundles."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)
	if err := parser.Run(&commands.Global{Logger: slog.Default()}, cli); err != nil {
		ferrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
	}
}
