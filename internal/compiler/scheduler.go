package compiler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"git.home.luguber.info/inful/bundledev/internal/events"
	ferrors "git.home.luguber.info/inful/bundledev/internal/foundation/errors"
	"git.home.luguber.info/inful/bundledev/internal/logfields"
	"git.home.luguber.info/inful/bundledev/internal/metrics"
	"git.home.luguber.info/inful/bundledev/internal/plugin"
)

// Invalidate requests a compile. When none is running one starts right away.
// While one is running, any number of invalidations collapse into exactly one
// follow-up compile, which starts after the running one finishes. Invalidate
// never blocks on the compile itself.
func (c *Compiler) Invalidate(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ferrors.ServeError("compiler is closed").Build()
	}
	if c.running {
		if c.pending {
			c.recorder.IncCoalescedInvalidation()
		}
		c.pending = true
		c.pendingReason = reason
		return nil
	}

	c.running = true
	c.idle = make(chan struct{})
	c.wg.Add(1)
	go c.loop(reason)
	return nil
}

// Busy reports whether a compile is running or queued.
func (c *Compiler) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Wait blocks until no compile is running or queued, or ctx is done.
func (c *Compiler) Wait(ctx context.Context) error {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Compile invalidates and waits for the resulting compilation.
func (c *Compiler) Compile(ctx context.Context) (*Compilation, error) {
	if err := c.Invalidate("compile"); err != nil {
		return nil, err
	}
	if err := c.Wait(ctx); err != nil {
		return nil, err
	}
	last := c.Last()
	if last == nil {
		return nil, ferrors.ServeError("compiler closed before compiling").Build()
	}
	return last, nil
}

func (c *Compiler) loop(reason string) {
	defer c.wg.Done()

	for {
		c.runCycle(reason)

		c.mu.Lock()
		if !c.pending || c.closed {
			c.running = false
			c.pending = false
			close(c.idle)
			c.mu.Unlock()
			return
		}
		reason = c.pendingReason
		c.pending = false
		c.pendingReason = ""
		c.mu.Unlock()
	}
}

func (c *Compiler) runCycle(reason string) {
	comp := &Compilation{
		ID:        uuid.NewString(),
		Reason:    reason,
		StartedAt: time.Now(),
	}
	log := c.logger.With(logfields.CompilationID(comp.ID), logfields.Reason(reason))
	log.Debug("Compile started")
	if err := c.bus.Publish(c.ctx, events.CompileStarted{ID: comp.ID, Reason: reason, StartedAt: comp.StartedAt}); err != nil {
		log.Debug("Compile start not delivered", logfields.Error(err))
	}

	fs, inputs, err := c.compile(c.ctx, comp)
	comp.Duration = time.Since(comp.StartedAt)
	c.recorder.ObserveCompileDuration(comp.Duration)

	if err != nil {
		if errors.Is(err, context.Canceled) {
			c.recorder.IncCompileOutcome(metrics.OutcomeCanceled)
			log.Info("Compile canceled")
			c.publish(comp)
			return
		}
		d := Diagnostic{Text: err.Error()}
		var perr *plugin.Error
		if errors.As(err, &perr) {
			d.Plugin = perr.PluginName
		}
		comp.Errors = append(comp.Errors, d)
	}

	c.mu.Lock()
	c.last = comp
	if !comp.Failed() {
		comp.Changed = changedModules(c.inputs, inputs)
		c.output = fs
		c.lastGood = comp
		c.inputs = inputs
	}
	c.mu.Unlock()

	switch {
	case comp.Failed():
		c.recorder.IncCompileOutcome(metrics.OutcomeFailed)
		log.Warn("Compile failed",
			logfields.Duration(comp.Duration),
			"errors", len(comp.Errors),
			"first", comp.Errors[0].String())
	case len(comp.Warnings) > 0:
		c.recorder.IncCompileOutcome(metrics.OutcomeWarning)
		log.Info("Compile finished with warnings",
			logfields.Hash(comp.Hash),
			logfields.Duration(comp.Duration),
			"warnings", len(comp.Warnings))
	default:
		c.recorder.IncCompileOutcome(metrics.OutcomeSuccess)
		log.Info("Compile finished",
			logfields.Hash(comp.Hash),
			logfields.Duration(comp.Duration),
			"artifacts", len(comp.Artifacts),
			"changed", len(comp.Changed))
	}
	c.publish(comp)
}

func (c *Compiler) publish(comp *Compilation) {
	evt := events.CompileFinished{
		ID:       comp.ID,
		Hash:     comp.Hash,
		Failed:   comp.Failed(),
		Errors:   len(comp.Errors),
		Warnings: len(comp.Warnings),
		Messages: diagnosticStrings(comp.Errors),
		Changed:  comp.ChangedIDs(),
		Duration: comp.Duration,
	}
	if err := c.bus.Publish(c.ctx, evt); err != nil {
		c.logger.Debug("Compile result not delivered", logfields.CompilationID(comp.ID), logfields.Error(err))
	}
}

// compile runs the backend and the emit hooks. Compiler diagnostics land in
// comp; the returned error is reserved for cancellation and hook failures.
//
// Known modules are fingerprinted before the build. A file saved while the
// build runs then differs from its recorded hash and shows up as changed in
// the follow-up compile.
func (c *Compiler) compile(ctx context.Context, comp *Compilation) (afero.Fs, map[string]string, error) {
	c.mu.Lock()
	known := make([]string, 0, len(c.inputs))
	for id := range c.inputs {
		known = append(known, id)
	}
	c.mu.Unlock()
	before := fingerprint(c.workDir, known, nil)

	res, err := c.backend.Build(ctx)
	if err != nil {
		return nil, nil, err
	}
	comp.Errors = res.Errors
	comp.Warnings = res.Warnings
	if len(res.Errors) > 0 {
		return nil, nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	fs := afero.NewMemMapFs()
	names := make([]string, 0, len(res.Files))
	for name, data := range res.Files {
		if err := afero.WriteFile(fs, name, data, 0o644); err != nil {
			return nil, nil, ferrors.WrapError(err, ferrors.CategoryInternal, "stage output").Build()
		}
		names = append(names, name)
	}

	out := plugin.NewOutput(fs, comp.ID, c.cfg.Output.PublicPath, c.workDir, res.Entries, c.logger)
	for _, p := range c.plugins {
		e, ok := p.(plugin.Emitter)
		if !ok {
			continue
		}
		if err := e.AfterCompile(ctx, out); err != nil {
			return nil, nil, plugin.NewError(p.Metadata().Name, "after-compile", err)
		}
	}
	names = append(names, out.Emitted()...)

	artifacts, hash, err := snapshot(fs, names)
	if err != nil {
		return nil, nil, ferrors.WrapError(err, ferrors.CategoryInternal, "hash output").Build()
	}
	comp.Entries = res.Entries
	comp.Artifacts = artifacts
	comp.Hash = hash
	comp.Modules = uniqueSorted(res.Inputs)
	return fs, fingerprint(c.workDir, comp.Modules, before), nil
}
