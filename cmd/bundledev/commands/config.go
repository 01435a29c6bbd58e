package commands

import (
	"git.home.luguber.info/inful/bundledev/internal/config"
	ferrors "git.home.luguber.info/inful/bundledev/internal/foundation/errors"
)

// ShowConfigCmd prints the merged, validated configuration.
type ShowConfigCmd struct{}

func (s *ShowConfigCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.ResolveConfig(config.ModeDevelopment)
	if err != nil {
		return err
	}
	data, err := config.Marshal(cfg)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "render configuration").Build()
	}
	_, err = g.out().Write(data)
	return err
}
