package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/bundledev/internal/compiler"
	"git.home.luguber.info/inful/bundledev/internal/config"
	"git.home.luguber.info/inful/bundledev/internal/events"
	ferrors "git.home.luguber.info/inful/bundledev/internal/foundation/errors"
	"git.home.luguber.info/inful/bundledev/internal/hmr"
	"git.home.luguber.info/inful/bundledev/internal/logfields"
	"git.home.luguber.info/inful/bundledev/internal/metrics"
	"git.home.luguber.info/inful/bundledev/internal/watch"
)

// Server is the development server: in-memory artifacts, static content,
// live updates, health and metrics.
type Server struct {
	compiler *compiler.Compiler
	opts     ServerOptions
	hub      *hmr.Hub
	adapter  *ferrors.HTTPErrorAdapter
	handler  http.Handler

	httpServer *http.Server
	listener   net.Listener
	watching   atomic.Bool
}

// ServerOptions configures a Server.
type ServerOptions struct {
	Addr     string         // listen address; defaults to ":<devServer.port>"
	Bus      *events.Bus    // must be the bus the compiler publishes on
	Registry *prom.Registry // enables /metrics when set
	Recorder metrics.Recorder
	Logger   *slog.Logger
	Watch    bool // recompile on source changes
}

// NewServer wires the HTTP surface for c.
func NewServer(c *compiler.Compiler, opts ServerOptions) *Server {
	cfg := c.Config()
	if opts.Addr == "" {
		opts.Addr = fmt.Sprintf(":%d", cfg.DevServer.Port)
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		compiler: c,
		opts:     opts,
		adapter:  ferrors.NewHTTPErrorAdapter(opts.Logger),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	if opts.Registry != nil {
		mux.Handle("/metrics", metrics.HTTPHandler(opts.Registry))
	}

	pageScript := ""
	if config.On(cfg.DevServer.Hot) {
		s.hub = hmr.NewHub(hmr.WithRecorder(opts.Recorder))
		registerHot(mux, s.hub, c, config.On(cfg.DevServer.HotOnly), s.adapter)
		pageScript = hmr.ClientPath
	}

	var static http.Handler = http.NotFoundHandler()
	if cfg.DevServer.ContentBase != "" {
		if dir, err := cfg.ResolvePath(cfg.DevServer.ContentBase); err == nil {
			static = http.FileServer(http.Dir(dir))
		}
	}
	artifacts := Middleware(c, Options{
		PublicPath: cfg.Output.PublicPath,
		Gzip:       config.On(cfg.DevServer.Gzip),
		PageScript: pageScript,
		Recorder:   opts.Recorder,
		Logger:     opts.Logger,
		Errors:     s.adapter,
	})
	mux.Handle("/", Chain(opts.Logger, s.adapter)(artifacts(static)))

	s.handler = mux
	return s
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Hub returns the live-update hub, or nil when hot updates are off.
func (s *Server) Hub() *hmr.Hub { return s.hub }

// Addr returns the bound address once Start succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.opts.Addr
	}
	return s.listener.Addr().String()
}

// Start binds the listen address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.opts.Addr)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryServe, "listen").Fatal().WithContext("addr", s.opts.Addr).Build()
	}
	s.listener = ln
	// No write timeout: live-update streams stay open.
	s.httpServer = &http.Server{Handler: s.handler, ReadHeaderTimeout: 10 * time.Second, IdleTimeout: 120 * time.Second}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.opts.Logger.Error("Dev server error", logfields.Error(err))
		}
	}()
	s.opts.Logger.Info("Dev server listening", "addr", s.Addr(), "public_path", s.compiler.Config().Output.PublicPath)
	return nil
}

// Stop disconnects live-update clients and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Shutdown()
	}
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryServe, "shutdown").Build()
	}
	s.opts.Logger.Info("Dev server stopped")
	return nil
}

// Run starts the server, triggers the initial compile, watches sources when
// enabled and forwards compile results to hot-update clients until ctx is
// done.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.hub != nil && s.opts.Bus != nil {
		n := NewNotifier(s.hub, s.opts.Bus, s.opts.Logger)
		go n.Run(ctx)
		<-n.Ready()
	}
	if err := s.Start(ctx); err != nil {
		return err
	}
	if err := s.compiler.Invalidate("initial"); err != nil {
		return err
	}

	watchErr := make(chan error, 1)
	if s.opts.Watch {
		w, err := watch.New(watch.Config{
			Root:    s.compiler.WorkDir(),
			OutDirs: []string{s.compiler.OutDir()},
			Target:  s.compiler,
			Bus:     s.opts.Bus,
			Logger:  s.opts.Logger,
		})
		if err != nil {
			_ = s.Stop(context.Background())
			return err
		}
		s.watching.Store(true)
		go func() {
			defer s.watching.Store(false)
			watchErr <- w.Run(ctx)
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-watchErr:
		if err != nil {
			s.opts.Logger.Error("Watcher stopped", logfields.Error(err))
		}
		<-ctx.Done()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return s.Stop(shutdownCtx)
}

type healthResponse struct {
	Status    string `json:"status"`
	Hash      string `json:"hash,omitempty"`
	Compiling bool   `json:"compiling"`
	Failed    bool   `json:"failed"`
	Watching  bool   `json:"watching"`
	Clients   int    `json:"clients"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok", Compiling: s.compiler.Busy(), Watching: s.watching.Load()}
	if good := s.compiler.LastGood(); good != nil {
		resp.Hash = good.Hash
	}
	resp.Failed = s.compiler.Last().Failed()
	if s.hub != nil {
		resp.Clients = s.hub.ClientCount()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
