// Package compiler drives the external JavaScript compiler for one effective
// configuration. It owns the in-memory output of the most recent successful
// compile, coalesces invalidations so that at most one compile runs at a time,
// and reports which source modules changed between compiles.
package compiler

import (
	"context"
	"log/slog"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/spf13/afero"

	"git.home.luguber.info/inful/bundledev/internal/config"
	"git.home.luguber.info/inful/bundledev/internal/events"
	ferrors "git.home.luguber.info/inful/bundledev/internal/foundation/errors"
	"git.home.luguber.info/inful/bundledev/internal/metrics"
	"git.home.luguber.info/inful/bundledev/internal/plugin"
	"git.home.luguber.info/inful/bundledev/internal/plugin/builtin"
)

// Compiler compiles one configuration and holds the latest good output.
type Compiler struct {
	cfg      *config.Config
	settings plugin.Settings
	workDir  string
	outDir   string
	plugins  []plugin.Plugin
	backend  Backend
	bus      *events.Bus
	recorder metrics.Recorder
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	running       bool
	pending       bool
	pendingReason string
	idle          chan struct{}
	closed        bool
	last          *Compilation
	lastGood      *Compilation
	output        afero.Fs
	inputs        map[string]string
}

type options struct {
	backend  BackendFactory
	recorder metrics.Recorder
	bus      *events.Bus
	logger   *slog.Logger
	registry *plugin.Registry
	handlers map[string]HandlerFactory
}

// Option configures a Compiler.
type Option func(*options)

// WithBackend replaces the esbuild backend.
func WithBackend(f BackendFactory) Option { return func(o *options) { o.backend = f } }

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option { return func(o *options) { o.recorder = r } }

// WithBus publishes compile lifecycle events on b.
func WithBus(b *events.Bus) Option { return func(o *options) { o.bus = b } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithRegistry replaces the builtin plugin registry.
func WithRegistry(r *plugin.Registry) Option { return func(o *options) { o.registry = r } }

// WithHandler makes an additional handler available to rules.
func WithHandler(name string, f HandlerFactory) Option {
	return func(o *options) { o.handlers[name] = f }
}

// New validates cfg, instantiates its plugins and handlers and prepares the
// backend. No compile runs until Invalidate or Compile is called.
func New(cfg *config.Config, opts ...Option) (*Compiler, error) {
	o := options{
		backend:  NewESBuildBackend,
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
		handlers: defaultHandlers(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = builtin.Registry()
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	workDir, err := filepath.Abs(cfg.Context)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "resolve context").Fatal().Build()
	}
	outDir, err := cfg.ResolvePath(cfg.Output.Path)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "resolve output.path").Fatal().Build()
	}

	plugins, err := o.registry.Instantiate(cfg.Plugins)
	if err != nil {
		return nil, err
	}
	rules, err := compileRules(cfg.Rules, o.handlers)
	if err != nil {
		return nil, err
	}

	settings := plugin.Settings{
		Mode:       cfg.Mode,
		WorkDir:    workDir,
		PublicPath: cfg.Output.PublicPath,
		Hot:        config.On(cfg.DevServer.Hot),
		HotOnly:    config.On(cfg.DevServer.HotOnly),
		Define:     map[string]string{"process.env.NODE_ENV": strconv.Quote(string(cfg.Mode))},
	}
	for _, p := range plugins {
		c, ok := p.(plugin.Configurer)
		if !ok {
			continue
		}
		if err := c.Configure(&settings); err != nil {
			return nil, ferrors.WrapError(plugin.NewError(p.Metadata().Name, "configure", err), ferrors.CategoryConfig, "plugin configuration failed").
				Fatal().Build()
		}
	}

	backend, err := o.backend(Setup{Config: cfg, Settings: settings, Rules: rules, WorkDir: workDir, OutDir: outDir})
	if err != nil {
		return nil, err
	}

	idle := make(chan struct{})
	close(idle)
	ctx, cancel := context.WithCancel(context.Background())
	return &Compiler{
		cfg:      cfg,
		settings: settings,
		workDir:  workDir,
		outDir:   outDir,
		plugins:  plugins,
		backend:  backend,
		bus:      o.bus,
		recorder: o.recorder,
		logger:   o.logger,
		ctx:      ctx,
		cancel:   cancel,
		idle:     idle,
		output:   afero.NewMemMapFs(),
	}, nil
}

// Config returns the effective configuration.
func (c *Compiler) Config() *config.Config { return c.cfg }

// Settings returns the settings after every plugin has configured them.
func (c *Compiler) Settings() plugin.Settings { return c.settings }

// OutDir returns the absolute output directory.
func (c *Compiler) OutDir() string { return c.outDir }

// WorkDir returns the absolute configuration context.
func (c *Compiler) WorkDir() string { return c.workDir }

// Last returns the most recent compilation, successful or not, or nil before
// the first compile has finished.
func (c *Compiler) Last() *Compilation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// LastGood returns the most recent compilation without errors.
func (c *Compiler) LastGood() *Compilation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastGood
}

// Snapshot returns the latest good compilation together with its output, or
// a nil compilation before the first successful compile.
func (c *Compiler) Snapshot() (*Compilation, afero.Fs) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastGood, afero.NewReadOnlyFs(c.output)
}

// Output returns a read-only view of the latest good output. A failed compile
// leaves the previous output in place.
func (c *Compiler) Output() afero.Fs {
	c.mu.Lock()
	defer c.mu.Unlock()
	return afero.NewReadOnlyFs(c.output)
}

// Artifact returns one file of the latest good output by its output-root
// relative path.
func (c *Compiler) Artifact(name string) ([]byte, error) {
	data, err := afero.ReadFile(c.Output(), name)
	if err != nil {
		return nil, ferrors.NotFoundError("artifact not found").WithContext("path", name).Build()
	}
	return data, nil
}

// Module compiles one source module of the latest good compilation on its
// own, for hot updates. Modules that did not take part are not found.
func (c *Compiler) Module(ctx context.Context, id string) ([]byte, error) {
	good := c.LastGood()
	if good == nil || !good.HasModule(id) {
		return nil, ferrors.NotFoundError("module not found").WithContext("module", id).Build()
	}
	return c.backend.BuildModule(ctx, id)
}

// Close cancels an in-flight compile, waits for the scheduler to stop and
// releases the backend. Close is idempotent.
func (c *Compiler) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	c.backend.Close()
}
