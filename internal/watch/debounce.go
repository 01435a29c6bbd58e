package watch

import (
	"context"
	"sort"
	"time"
)

// debouncer collects changed paths and releases them once no change arrived
// for the quiet window, or once maxDelay has passed since the first change of
// a burst, whichever comes first.
type debouncer struct {
	quiet    time.Duration
	maxDelay time.Duration
	in       chan string
	out      chan []string
}

func newDebouncer(quiet, maxDelay time.Duration) *debouncer {
	return &debouncer{
		quiet:    quiet,
		maxDelay: maxDelay,
		in:       make(chan string, 256),
		out:      make(chan []string, 1),
	}
}

func stoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	if !t.Stop() {
		<-t.C
	}
	return t
}

func resetTimer(t *time.Timer, after time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(after)
}

func (d *debouncer) run(ctx context.Context) {
	defer close(d.out)

	quietTimer := stoppedTimer()
	maxTimer := stoppedTimer()
	var (
		quietC <-chan time.Time
		maxC   <-chan time.Time
		batch  = map[string]struct{}{}
	)

	flush := func() {
		quietC, maxC = nil, nil
		if len(batch) == 0 {
			return
		}
		paths := make([]string, 0, len(batch))
		for p := range batch {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		batch = map[string]struct{}{}
		select {
		case d.out <- paths:
		case <-ctx.Done():
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case p := <-d.in:
			if len(batch) == 0 {
				resetTimer(maxTimer, d.maxDelay)
				maxC = maxTimer.C
			}
			batch[p] = struct{}{}
			resetTimer(quietTimer, d.quiet)
			quietC = quietTimer.C
		case <-quietC:
			flush()
		case <-maxC:
			flush()
		}
	}
}
