package compiler

import (
	"context"
	"fmt"

	"git.home.luguber.info/inful/bundledev/internal/config"
	"git.home.luguber.info/inful/bundledev/internal/plugin"
)

// Backend is the external compiler. Build runs one compilation of the whole
// configuration; BuildModule compiles a single module standalone for hot
// updates.
type Backend interface {
	Build(ctx context.Context) (*BuildResult, error)
	BuildModule(ctx context.Context, id string) ([]byte, error)
	Close()
}

// BackendFactory creates a backend once per compiler.
type BackendFactory func(setup Setup) (Backend, error)

// Setup is everything a backend needs to know about the build.
type Setup struct {
	Config   *config.Config
	Settings plugin.Settings
	Rules    []Rule
	WorkDir  string // absolute configuration context
	OutDir   string // absolute output.path
}

// BuildResult is the raw outcome of one backend compilation.
type BuildResult struct {
	Files    map[string][]byte    // output-root relative path → contents
	Entries  []plugin.EntryAssets // in configuration entry order
	Inputs   []string             // module ids that took part
	Errors   []Diagnostic
	Warnings []Diagnostic
}

// Diagnostic is a compiler message with an optional source location.
type Diagnostic struct {
	Text   string `json:"text"`
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
	Plugin string `json:"plugin,omitempty"`
}

func (d Diagnostic) String() string {
	if d.File == "" {
		return d.Text
	}
	return fmt.Sprintf("%s:%d:%d: %s", d.File, d.Line, d.Column, d.Text)
}
