package parse

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerFiresOncePerBatch(t *testing.T) {
	var fired []string
	tracker := NewTracker(func(batch string) { fired = append(fired, batch) })

	batch := tracker.Begin(2)
	tracker.Done()
	assert.Empty(t, fired, "must not fire while a task is in flight")

	// A task begun mid-batch joins it
	assert.Equal(t, batch, tracker.Begin(1))
	tracker.Done()
	assert.Empty(t, fired)

	tracker.Done()
	assert.Equal(t, []string{batch}, fired)
	assert.Zero(t, tracker.Pending())

	next := tracker.Begin(1)
	assert.NotEqual(t, batch, next, "a new batch starts after the previous finished")
	tracker.Done()
	assert.Equal(t, []string{batch, next}, fired)
}

func TestTrackerEmptyBatch(t *testing.T) {
	calls := 0
	tracker := NewTracker(func(string) { calls++ })

	tracker.Begin(0)

	assert.Equal(t, 1, calls)
	require.NoError(t, tracker.Wait(context.Background()))
}

func TestTrackerSpuriousDone(t *testing.T) {
	calls := 0
	tracker := NewTracker(func(string) { calls++ })

	tracker.Done()

	assert.Zero(t, calls)
	assert.Zero(t, tracker.Pending())
}

func TestTrackerWait(t *testing.T) {
	tracker := NewTracker(nil)
	require.NoError(t, tracker.Wait(context.Background()), "an idle tracker does not block")

	tracker.Begin(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, tracker.Wait(ctx), context.DeadlineExceeded)

	go tracker.Done()
	require.NoError(t, tracker.Wait(context.Background()))
}

func TestSchedulerRunsBatch(t *testing.T) {
	var mu sync.Mutex
	var batches []string
	scheduler := NewScheduler(2, func(batch string) {
		mu.Lock()
		batches = append(batches, batch)
		mu.Unlock()
	})

	var ran atomic.Int32
	var running, maxRunning atomic.Int32
	tasks := make([]Task, 10)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) {
			n := running.Add(1)
			for {
				m := maxRunning.Load()
				if n <= m || maxRunning.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			running.Add(-1)
			ran.Add(1)
		}
	}

	batch := scheduler.Submit(context.Background(), tasks)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, scheduler.Wait(ctx))

	assert.Equal(t, int32(10), ran.Load())
	assert.LessOrEqual(t, maxRunning.Load(), int32(2))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{batch}, batches)
}

func TestTrackerReserveDefersEmptyBatch(t *testing.T) {
	calls := 0
	tracker := NewTracker(func(string) { calls++ })

	batch, complete := tracker.Reserve(0)
	require.NotNil(t, complete)
	assert.Zero(t, calls, "an empty reservation does not complete on its own")

	complete()
	assert.Equal(t, 1, calls)
	require.NoError(t, tracker.Wait(context.Background()))

	_, complete = tracker.Reserve(1)
	assert.Nil(t, complete)
	tracker.Done()
	assert.Equal(t, 2, calls)
	assert.NotEmpty(t, batch)
}

func TestSchedulerReserveHoldsBatchOpen(t *testing.T) {
	var mu sync.Mutex
	var batches []string
	scheduler := NewScheduler(1, func(batch string) {
		mu.Lock()
		batches = append(batches, batch)
		mu.Unlock()
	})

	release := make(chan struct{})
	first := scheduler.Submit(context.Background(), []Task{
		func(context.Context) { <-release },
	})

	// Reserved before the running task finishes: the batch may not complete
	// until the reserved task has run too.
	r := scheduler.Reserve(1)
	assert.Equal(t, first, r.Batch())
	assert.Equal(t, 2, scheduler.Pending())

	close(release)
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Empty(t, batches)
	mu.Unlock()

	r.Start(context.Background(), []Task{func(context.Context) {}})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, scheduler.Wait(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{first}, batches)
}
