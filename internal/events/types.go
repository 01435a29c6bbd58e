package events

import "time"

// CompileEvent is implemented by every compile lifecycle event.
type CompileEvent interface {
	CompilationID() string
}

// CompileStarted is published when the compiler begins a cycle. Requests for
// artifacts are held from this point until the matching CompileFinished.
type CompileStarted struct {
	ID        string
	Reason    string
	StartedAt time.Time
}

// CompileFinished is published once a cycle has produced a result, successful
// or not.
type CompileFinished struct {
	ID       string
	Hash     string
	Failed   bool
	Errors   int
	Warnings int
	Messages []string // rendered error diagnostics
	Changed  []string // module ids whose content differs from the previous result
	Duration time.Duration
}

// SourceChanged is published by the file watcher after debouncing.
type SourceChanged struct {
	Paths []string
	At    time.Time
}

func (e CompileStarted) CompilationID() string  { return e.ID }
func (e CompileFinished) CompilationID() string { return e.ID }
