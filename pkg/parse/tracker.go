package parse

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/ritzau/mod-deps/pkg/logging"
)

// Tracker counts in-flight parse tasks and fires a completion callback when the
// count drops to zero. Tasks begun while a batch is running join that batch, so
// the callback fires once per batch and never while any task is still running.
type Tracker struct {
	mu         sync.Mutex
	inFlight   int
	batch      string
	idle       chan struct{} // closed once the current batch has finished
	onFinished func(batch string)
}

// NewTracker creates an idle tracker. onFinished may be nil.
func NewTracker(onFinished func(batch string)) *Tracker {
	idle := make(chan struct{})
	close(idle)
	return &Tracker{
		idle:       idle,
		onFinished: onFinished,
	}
}

// Begin registers n new tasks and returns the id of the batch they belong to.
// Beginning zero tasks on an idle tracker completes an empty batch immediately.
func (t *Tracker) Begin(n int) string {
	batch, complete := t.Reserve(n)
	if complete != nil {
		complete()
	}
	return batch
}

// Reserve registers n new tasks like Begin, but an empty batch is not completed.
// When complete is non-nil the caller must call it exactly once, without holding
// any lock the completion callback takes.
func (t *Tracker) Reserve(n int) (batch string, complete func()) {
	t.mu.Lock()
	if t.inFlight == 0 {
		t.batch = uuid.NewString()
		t.idle = make(chan struct{})
		logging.Debug("parse batch started", "batch", t.batch)
	}
	t.inFlight += n
	batch, idle := t.batch, t.idle
	empty := t.inFlight == 0
	t.mu.Unlock()

	if empty {
		complete = func() { t.finish(batch, idle) }
	}
	return batch, complete
}

// Done marks one task as finished
func (t *Tracker) Done() {
	t.mu.Lock()
	if t.inFlight == 0 {
		t.mu.Unlock()
		logging.Error("parse task finished with no task in flight")
		return
	}
	t.inFlight--
	if t.inFlight > 0 {
		t.mu.Unlock()
		return
	}
	batch, idle := t.batch, t.idle
	t.mu.Unlock()

	t.finish(batch, idle)
}

func (t *Tracker) finish(batch string, idle chan struct{}) {
	logging.Debug("parse batch finished", "batch", batch)
	if t.onFinished != nil {
		t.onFinished(batch)
	}
	close(idle)
}

// Pending returns the number of tasks in flight
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inFlight
}

// Wait blocks until the current batch, including its completion callback, is done
func (t *Tracker) Wait(ctx context.Context) error {
	t.mu.Lock()
	idle := t.idle
	t.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
