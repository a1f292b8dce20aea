package parse

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Task is one unit of background parsing. Tasks report their own results;
// a failing parse is not an error for the batch.
type Task func(ctx context.Context)

// Scheduler runs parse tasks on a bounded worker pool and tracks them as batches
type Scheduler struct {
	tracker *Tracker
	workers int
}

// NewScheduler creates a scheduler running at most workers tasks at a time per submission
func NewScheduler(workers int, onFinished func(batch string)) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{
		tracker: NewTracker(onFinished),
		workers: workers,
	}
}

// Submit starts tasks in the background and returns the batch they joined.
// Submitting no tasks still completes a (possibly empty) batch.
func (s *Scheduler) Submit(ctx context.Context, tasks []Task) string {
	r := s.Reserve(len(tasks))
	r.Start(ctx, tasks)
	return r.Batch()
}

// Reservation is a set of tasks counted as pending but not started yet
type Reservation struct {
	s        *Scheduler
	batch    string
	n        int
	complete func()
}

// Reserve counts n tasks as pending without starting them. A batch that would
// otherwise finish in the meantime stays open until the reserved tasks are done.
// Start must be called exactly once on the result.
func (s *Scheduler) Reserve(n int) *Reservation {
	batch, complete := s.tracker.Reserve(n)
	return &Reservation{s: s, batch: batch, n: n, complete: complete}
}

// Batch returns the batch the reserved tasks joined
func (r *Reservation) Batch() string {
	return r.batch
}

// Start runs the reserved tasks. It must get exactly as many tasks as were
// reserved. An empty reservation on an idle scheduler completes its batch here.
func (r *Reservation) Start(ctx context.Context, tasks []Task) {
	if len(tasks) != r.n {
		panic(fmt.Sprintf("parse: reserved %d tasks, started %d", r.n, len(tasks)))
	}
	if r.complete != nil {
		r.complete()
		return
	}
	if len(tasks) == 0 {
		return
	}

	go func() {
		var g errgroup.Group
		g.SetLimit(r.s.workers)
		for _, task := range tasks {
			g.Go(func() error {
				defer r.s.tracker.Done()
				task(ctx)
				return nil
			})
		}
		_ = g.Wait()
	}()
}

// Pending returns the number of tasks not yet finished
func (s *Scheduler) Pending() int {
	return s.tracker.Pending()
}

// Wait blocks until no batch is running
func (s *Scheduler) Wait(ctx context.Context) error {
	return s.tracker.Wait(ctx)
}
