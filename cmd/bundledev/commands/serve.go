package commands

import (
	"context"
	"net"
	"os/signal"
	"strconv"
	"syscall"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/bundledev/internal/compiler"
	"git.home.luguber.info/inful/bundledev/internal/config"
	"git.home.luguber.info/inful/bundledev/internal/devserver"
	"git.home.luguber.info/inful/bundledev/internal/events"
	"git.home.luguber.info/inful/bundledev/internal/metrics"
)

// ServeCmd runs the development server.
type ServeCmd struct {
	Host    string `help:"Listen host (all interfaces when empty)"`
	Port    int    `short:"p" help:"Override devServer.port"`
	NoWatch bool   `name:"no-watch" help:"Compile once and serve without watching sources"`
}

func (s *ServeCmd) Run(g *Global, root *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := root.ResolveConfig(config.ModeDevelopment)
	if err != nil {
		return err
	}
	if s.Port != 0 {
		cfg.DevServer.Port = s.Port
	}
	for _, w := range config.Warnings(cfg) {
		g.logger().Warn(w.Message(), "category", w.Category())
	}

	bus := events.NewBus()
	defer bus.Close()
	reg := prom.NewRegistry()
	rec := metrics.NewPrometheusRecorder(reg)

	c, err := compiler.New(cfg,
		compiler.WithBus(bus),
		compiler.WithRecorder(rec),
		compiler.WithLogger(g.logger()),
	)
	if err != nil {
		return err
	}
	defer c.Close()

	opts := devserver.ServerOptions{
		Addr:     net.JoinHostPort(s.Host, strconv.Itoa(cfg.DevServer.Port)),
		Bus:      bus,
		Recorder: rec,
		Logger:   g.logger(),
		Watch:    !s.NoWatch,
	}
	if config.On(cfg.DevServer.Metrics) {
		opts.Registry = reg
	}
	srv := devserver.NewServer(c, opts)
	g.logger().Info("Starting dev server",
		"mode", cfg.Mode,
		"hot", config.On(cfg.DevServer.Hot),
		"watch", !s.NoWatch,
		"config", root.Config)
	return srv.Run(ctx)
}
