package hmr

import (
	"fmt"
	"sync"

	ferrors "git.home.luguber.info/inful/bundledev/internal/foundation/errors"
)

// State is the per-module acceptance state.
type State int

const (
	StateUnregistered State = iota
	StateRegistered
	StateApplying
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateRegistered:
		return "registered"
	case StateApplying:
		return "applying"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Update is handed to an accept handler: the module that changed and, when
// the runtime has a loader, its freshly compiled source.
type Update struct {
	ID     string
	Kind   Kind
	Hash   string
	Source []byte
}

// Handler tears down a module's previous state and rebuilds it from the
// update. Returning an error (or panicking) marks the module failed.
type Handler func(u Update) error

// Loader fetches the freshly compiled source of a module.
type Loader func(id, hash string) ([]byte, error)

// Result describes what applying one notification did.
type Result struct {
	Applied []string // modules whose handler ran successfully
	Styles  []string // style modules replaced without a handler
	Failed  []string // modules whose handler failed
	Errors  []string // compile errors carried by an error notification
	Reload  bool     // a full page reload is required
	Reason  string
}

// Runtime is the hot-update acceptance table: module id to handler. Entries
// are added by Accept and never removed.
type Runtime struct {
	mu       sync.Mutex
	handlers map[string]Handler
	states   map[string]State
	loader   Loader
	hash     string
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithLoader makes the runtime fetch each updated module's source before
// calling its handler.
func WithLoader(l Loader) RuntimeOption {
	return func(r *Runtime) { r.loader = l }
}

// NewRuntime returns an empty acceptance table.
func NewRuntime(opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		handlers: make(map[string]Handler),
		states:   make(map[string]State),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Accept registers h as the update handler for module id. A module accepting
// again (after re-evaluation, or after a failure) replaces its handler.
func (r *Runtime) Accept(id string, h Handler) error {
	if id == "" {
		return ferrors.ValidationError("module id is required").Build()
	}
	if h == nil {
		return ferrors.ValidationError("accept handler is required").WithContext("module", id).Build()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[id] = h
	r.states[id] = StateRegistered
	return nil
}

// State reports a module's acceptance state.
func (r *Runtime) State(id string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[id]
}

// Hash returns the last output hash the runtime has seen.
func (r *Runtime) Hash() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hash
}

// Apply processes one notification.
//
// Style modules are replaced without handlers. If any changed script module
// has no working handler, no handler runs and a reload is requested. Otherwise
// each handler runs exactly once; a handler error or panic marks its module
// failed and requests a reload.
func (r *Runtime) Apply(n Notification) Result {
	switch n.Type {
	case TypeHash:
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.hash != "" && n.Hash != "" && n.Hash != r.hash {
			r.hash = n.Hash
			return Result{Reload: true, Reason: "missed updates while disconnected"}
		}
		if n.Hash != "" {
			r.hash = n.Hash
		}
		return Result{}
	case TypeError:
		return Result{Errors: n.Errors}
	case TypeReload:
		return Result{Reload: true, Reason: "reload requested"}
	case TypeUpdate:
		return r.applyUpdate(n)
	default:
		return Result{}
	}
}

func (r *Runtime) applyUpdate(n Notification) Result {
	var res Result
	type job struct {
		mod ModuleUpdate
		h   Handler
	}
	var jobs []job

	r.mu.Lock()
	r.hash = n.Hash
	for _, m := range n.Modules {
		if m.Kind == KindCSS {
			res.Styles = append(res.Styles, m.ID)
			continue
		}
		h, ok := r.handlers[m.ID]
		if !ok || r.states[m.ID] == StateFailed {
			r.mu.Unlock()
			return Result{Reload: true, Reason: fmt.Sprintf("module %s is not accepted", m.ID)}
		}
		jobs = append(jobs, job{mod: m, h: h})
	}
	for _, j := range jobs {
		r.states[j.mod.ID] = StateApplying
	}
	r.mu.Unlock()

	for _, j := range jobs {
		err := r.invoke(j.h, j.mod, n.Hash)

		r.mu.Lock()
		if err != nil {
			r.states[j.mod.ID] = StateFailed
		} else {
			r.states[j.mod.ID] = StateRegistered
		}
		r.mu.Unlock()

		if err != nil {
			res.Failed = append(res.Failed, j.mod.ID)
			if !res.Reload {
				res.Reload = true
				res.Reason = fmt.Sprintf("update handler for %s failed: %v", j.mod.ID, err)
			}
			continue
		}
		res.Applied = append(res.Applied, j.mod.ID)
	}
	return res
}

func (r *Runtime) invoke(h Handler, m ModuleUpdate, hash string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = ferrors.RuntimeError("accept handler panicked").
				WithContext("module", m.ID).
				WithCause(fmt.Errorf("%v", rec)).
				Build()
		}
	}()
	u := Update{ID: m.ID, Kind: m.Kind, Hash: hash}
	if r.loader != nil {
		if u.Source, err = r.loader(m.ID, hash); err != nil {
			return fmt.Errorf("load module: %w", err)
		}
	}
	return h(u)
}
