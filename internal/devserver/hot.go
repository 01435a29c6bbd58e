package devserver

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"git.home.luguber.info/inful/bundledev/internal/compiler"
	"git.home.luguber.info/inful/bundledev/internal/events"
	ferrors "git.home.luguber.info/inful/bundledev/internal/foundation/errors"
	"git.home.luguber.info/inful/bundledev/internal/hmr"
	"git.home.luguber.info/inful/bundledev/internal/logfields"
)

// ModuleSource compiles single modules for hot updates.
type ModuleSource interface {
	Module(ctx context.Context, id string) ([]byte, error)
}

// registerHot mounts the live-update endpoints on mux.
func registerHot(mux *http.ServeMux, hub *hmr.Hub, modules ModuleSource, hotOnly bool, adapter *ferrors.HTTPErrorAdapter) {
	script := []byte(hmr.ClientScript(hmr.ScriptOptions{HotOnly: hotOnly}))

	mux.Handle(hmr.EndpointPath, hub)
	mux.HandleFunc(hmr.WebSocketPath, hub.ServeWS)
	mux.HandleFunc(hmr.ClientPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(script)
	})
	mux.HandleFunc(hmr.ModulePathBase, func(w http.ResponseWriter, r *http.Request) {
		id, err := url.PathUnescape(strings.TrimPrefix(r.URL.EscapedPath(), hmr.ModulePathBase))
		if err != nil || id == "" {
			adapter.WriteErrorResponse(w, r, ferrors.ValidationError("invalid module id").WithContext("path", r.URL.Path).Build())
			return
		}
		src, err := modules.Module(r.Context(), id)
		if err != nil {
			adapter.WriteErrorResponse(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(src)
	})
}

// Notifier forwards compile results to connected hot-update clients.
type Notifier struct {
	hub    *hmr.Hub
	bus    *events.Bus
	logger *slog.Logger
	ready  chan struct{}
}

// NewNotifier creates a Notifier reading from bus.
func NewNotifier(hub *hmr.Hub, bus *events.Bus, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{hub: hub, bus: bus, logger: logger, ready: make(chan struct{})}
}

// Ready is closed once Run has subscribed.
func (n *Notifier) Ready() <-chan struct{} { return n.ready }

// Run broadcasts one notification per finished compile until ctx is done
// or the bus closes.
func (n *Notifier) Run(ctx context.Context) {
	ch, unsubscribe := events.Subscribe[events.CompileFinished](n.bus, 16)
	defer unsubscribe()
	close(n.ready)

	var hadGood, failedSinceGood bool
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			note := notificationFor(evt, hadGood, failedSinceGood)
			if note == nil {
				continue
			}
			switch {
			case evt.Failed:
				failedSinceGood = true
			case evt.Hash != "":
				hadGood = true
				failedSinceGood = false
			}
			n.logger.Debug("Hot update",
				logfields.CompilationID(evt.ID),
				"type", string(note.Type),
				"modules", len(note.Modules))
			n.hub.Broadcast(*note)
		}
	}
}

// notificationFor picks the message for a finished compile. A canceled
// compile produces none.
func notificationFor(evt events.CompileFinished, hadGood, failedSinceGood bool) *hmr.Notification {
	var n hmr.Notification
	switch {
	case evt.Failed:
		n = hmr.ErrorNotification(evt.Messages)
	case evt.Hash == "":
		return nil
	case !hadGood && failedSinceGood:
		// The page on screen is the compile error page.
		n = hmr.ReloadNotification(evt.Hash)
	case len(evt.Changed) == 0:
		n = hmr.HashNotification(evt.Hash)
	default:
		mods := make([]hmr.ModuleUpdate, 0, len(evt.Changed))
		for _, id := range evt.Changed {
			mods = append(mods, hmr.ModuleUpdate{ID: id, Kind: hmr.Kind(compiler.ModuleKind(id))})
		}
		n = hmr.UpdateNotification(evt.Hash, mods)
	}
	return &n
}
