package commands

import (
	"context"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/bundledev/internal/hmr"
)

// ListenCmd attaches to a dev server's update stream and logs what a browser
// runtime accepting the given modules would do.
type ListenCmd struct {
	URL    string   `arg:"" default:"http://localhost:3000" help:"Dev server base URL"`
	Accept []string `short:"a" help:"Module id to accept updates for (repeatable)"`
}

func (l *ListenCmd) Run(g *Global, _ *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	log := g.logger()

	rt := hmr.NewRuntime(hmr.WithLoader(hmr.HTTPLoader(l.URL, nil)))
	for _, id := range l.Accept {
		if err := rt.Accept(id, func(u hmr.Update) error {
			log.Info("Module replaced", "module", u.ID, "kind", u.Kind, "bytes", len(u.Source))
			return nil
		}); err != nil {
			return err
		}
	}

	client := hmr.NewClient(l.URL, rt,
		hmr.WithLogger(log),
		hmr.OnResult(func(n hmr.Notification, res hmr.Result) {
			switch {
			case res.Reload:
				log.Warn("Full reload required", "type", n.Type, "reason", res.Reason, "failed", res.Failed)
			case len(res.Errors) > 0:
				for _, e := range res.Errors {
					log.Error("Compile error", "message", e)
				}
			case n.Type == hmr.TypeUpdate:
				log.Info("Update applied", "hash", n.Hash, "modules", res.Applied, "styles", res.Styles)
			default:
				log.Debug("Notification", "type", n.Type, "hash", n.Hash)
			}
		}),
	)
	log.Info("Listening for updates", "url", l.URL, "accepting", len(l.Accept))
	return client.Run(ctx)
}
