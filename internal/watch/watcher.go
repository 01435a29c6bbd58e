// Package watch turns filesystem changes below a source root into debounced
// compile invalidations.
package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/bundledev/internal/events"
	ferrors "git.home.luguber.info/inful/bundledev/internal/foundation/errors"
	"git.home.luguber.info/inful/bundledev/internal/logfields"
)

const (
	DefaultQuietWindow = 100 * time.Millisecond
	DefaultMaxDelay    = time.Second
)

// Invalidator is told to recompile after a batch of changes.
type Invalidator interface {
	Invalidate(reason string) error
}

// Config configures a Watcher.
type Config struct {
	Root        string
	OutDirs     []string // never watched, so writing output cannot loop
	QuietWindow time.Duration
	MaxDelay    time.Duration
	Target      Invalidator
	Bus         *events.Bus // optional; receives events.SourceChanged
	Logger      *slog.Logger
}

// Watcher watches a directory tree.
type Watcher struct {
	cfg     Config
	ignore  *Ignorer
	fsw     *fsnotify.Watcher
	deb     *debouncer
	ready   chan struct{}
	readyMu sync.Once
}

// New validates cfg and starts watching. Call Run to process events.
func New(cfg Config) (*Watcher, error) {
	if cfg.Target == nil {
		return nil, ferrors.ValidationError("watch target is required").Build()
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryWatch, "resolve watch root").Build()
	}
	cfg.Root = root
	if cfg.QuietWindow <= 0 {
		cfg.QuietWindow = DefaultQuietWindow
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ignore, err := NewIgnorer(root, cfg.OutDirs...)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryWatch, "read ignore patterns").WithContext("path", root).Build()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryWatch, "create watcher").Build()
	}
	w := &Watcher{
		cfg:    cfg,
		ignore: ignore,
		fsw:    fsw,
		deb:    newDebouncer(cfg.QuietWindow, cfg.MaxDelay),
		ready:  make(chan struct{}),
	}
	if err := w.addRecursive(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Ready is closed once Run is processing events.
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

// Run processes filesystem events until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.fsw.Close() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go w.deb.run(ctx)

	w.readyMu.Do(func() { close(w.ready) })
	w.cfg.Logger.Info("Watching for changes", logfields.Path(w.cfg.Root))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.cfg.Logger.Warn("Watcher error", logfields.Error(err))
		case paths, ok := <-w.deb.out:
			if !ok {
				return nil
			}
			w.fire(ctx, paths)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod {
		return
	}
	isDir := false
	if ev.Op&fsnotify.Create == fsnotify.Create {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			isDir = true
		}
	}
	if w.ignore.Ignored(ev.Name, isDir) {
		return
	}
	if isDir {
		if err := w.addRecursive(ev.Name); err != nil {
			w.cfg.Logger.Warn("Failed to watch new directory", logfields.Path(ev.Name), logfields.Error(err))
		}
	}
	w.cfg.Logger.Debug("File change detected", logfields.Path(ev.Name), "op", ev.Op.String())
	select {
	case w.deb.in <- ev.Name:
	default:
		// A full queue is about to flush; the invalidation still happens.
	}
}

func (w *Watcher) fire(ctx context.Context, paths []string) {
	rel := make([]string, 0, len(paths))
	for _, p := range paths {
		if r, err := filepath.Rel(w.cfg.Root, p); err == nil {
			p = filepath.ToSlash(r)
		}
		rel = append(rel, p)
	}
	if err := w.cfg.Bus.Publish(ctx, events.SourceChanged{Paths: rel, At: time.Now()}); err != nil {
		w.cfg.Logger.Debug("Source change not delivered", logfields.Error(err))
	}
	if err := w.cfg.Target.Invalidate(reason(rel)); err != nil {
		w.cfg.Logger.Warn("Invalidate failed", logfields.Error(err))
	}
}

func reason(paths []string) string {
	const shown = 3
	if len(paths) <= shown {
		return "changed: " + strings.Join(paths, ", ")
	}
	return "changed: " + strings.Join(paths[:shown], ", ") + ", ..."
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.cfg.Root && w.ignore.Ignored(path, true) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryWatch, "watch directory").WithContext("path", path).Build()
		}
		return nil
	})
}
