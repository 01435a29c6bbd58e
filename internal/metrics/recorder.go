package metrics

import "time"

// OutcomeLabel enumerates compile outcomes for counters.
type OutcomeLabel string

const (
	OutcomeSuccess  OutcomeLabel = "success"
	OutcomeWarning  OutcomeLabel = "warning"
	OutcomeFailed   OutcomeLabel = "failed"
	OutcomeCanceled OutcomeLabel = "canceled"
)

// Recorder defines observability hooks for compiles, served requests and hot
// update clients. All methods must be safe to call concurrently.
type Recorder interface {
	ObserveCompileDuration(d time.Duration)
	IncCompileOutcome(outcome OutcomeLabel)
	IncCoalescedInvalidation()
	IncRequest(status int)
	ObserveRequestWait(d time.Duration)
	SetHotClients(n int)
	IncBroadcast(kind string)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveCompileDuration(time.Duration) {}
func (NoopRecorder) IncCompileOutcome(OutcomeLabel)       {}
func (NoopRecorder) IncCoalescedInvalidation()            {}
func (NoopRecorder) IncRequest(int)                       {}
func (NoopRecorder) ObserveRequestWait(time.Duration)     {}
func (NoopRecorder) SetHotClients(int)                    {}
func (NoopRecorder) IncBroadcast(string)                  {}
