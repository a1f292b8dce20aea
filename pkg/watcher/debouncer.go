package watcher

import (
	"context"
	"time"

	"github.com/ritzau/mod-deps/pkg/logging"
)

// Debouncer batches rapid file system events to avoid excessive rescans
type Debouncer struct {
	input       <-chan ChangeEvent
	output      chan ChangeEvent
	quietPeriod time.Duration
	maxWait     time.Duration
}

// NewDebouncer creates a new event debouncer
func NewDebouncer(input <-chan ChangeEvent, quietPeriod, maxWait time.Duration) *Debouncer {
	return &Debouncer{
		input:       input,
		output:      make(chan ChangeEvent, 10),
		quietPeriod: quietPeriod,
		maxWait:     maxWait,
	}
}

// Start begins processing events with debouncing
func (d *Debouncer) Start(ctx context.Context) {
	go d.run(ctx)
}

// run forwards accumulated events once the input has been quiet for quietPeriod,
// or maxWait after the first accumulated event, whichever comes first
func (d *Debouncer) run(ctx context.Context) {
	defer close(d.output)

	var (
		quiet       *time.Timer
		deadline    *time.Timer
		accumulated = make(map[ChangeType][]string)
		eventCount  int
	)

	stop := func(t *time.Timer) *time.Timer {
		if t != nil {
			t.Stop()
		}
		return nil
	}

	// flush reports false if ctx was cancelled before everything was sent
	flush := func() bool {
		quiet = stop(quiet)
		deadline = stop(deadline)
		if eventCount == 0 {
			return true
		}

		logging.Debug("flushing accumulated events", "count", eventCount)

		// Mod changes first, index changes after
		for _, typ := range []ChangeType{ChangeTypeMod, ChangeTypeIndex} {
			if paths := accumulated[typ]; len(paths) > 0 {
				select {
				case d.output <- ChangeEvent{Type: typ, Paths: paths, Timestamp: time.Now()}:
				case <-ctx.Done():
					return false
				}
			}
		}
		accumulated = make(map[ChangeType][]string)
		eventCount = 0
		return true
	}

	timerC := func(t *time.Timer) <-chan time.Time {
		if t == nil {
			return nil
		}
		return t.C
	}

	for {
		select {
		case <-ctx.Done():
			// Nobody is left to refresh on pending events
			stop(quiet)
			stop(deadline)
			if eventCount > 0 {
				logging.Debug("dropping accumulated events", "count", eventCount)
			}
			return

		case event, ok := <-d.input:
			if !ok {
				flush()
				return
			}

			accumulated[event.Type] = append(accumulated[event.Type], event.Paths...)
			eventCount++

			quiet = stop(quiet)
			quiet = time.NewTimer(d.quietPeriod)
			if deadline == nil {
				deadline = time.NewTimer(d.maxWait)
			}

		case <-timerC(quiet):
			quiet = nil
			if !flush() {
				return
			}

		case <-timerC(deadline):
			deadline = nil
			if !flush() {
				return
			}
		}
	}
}

// Output returns the channel of debounced events
func (d *Debouncer) Output() <-chan ChangeEvent {
	return d.output
}
