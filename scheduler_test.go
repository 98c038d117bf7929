package provbatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

// schedulerTasks builds n step-less tasks; the scheduler only cares about IDs.
func schedulerTasks(n int) []Task {
	tasks := make([]Task, n)
	for i, id := range sequentialIDs(n) {
		tasks[i] = Task{ID: id}
	}
	return tasks
}

func TestNewSchedulerRejectsZeroConcurrency(t *testing.T) {
	_, err := NewScheduler(0, testLogger())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	sched, err := NewScheduler(1, testLogger())
	require.NoError(t, err)
	assert.NotNil(t, sched)
}

func TestSchedulerNeverExceedsBudget(t *testing.T) {
	const n, budget = 20, 3
	sched, err := NewScheduler(budget, testLogger())
	require.NoError(t, err)

	var running, peak atomic.Int32
	admitted := sched.Run(context.Background(), schedulerTasks(n), func(_ context.Context, _ Task) {
		current := running.Inc()
		for {
			p := peak.Load()
			if current <= p || peak.CompareAndSwap(p, current) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Dec()
	})

	assert.Equal(t, n, admitted)
	assert.LessOrEqual(t, peak.Load(), int32(budget), "workers exceeded the concurrency budget")
	assert.LessOrEqual(t, sched.Peak(), int32(budget))
	assert.GreaterOrEqual(t, sched.Peak(), int32(1))
	assert.Equal(t, int32(0), sched.Running(), "all workers should have joined")
}

func TestSchedulerFullJoin(t *testing.T) {
	const n = 10
	sched, err := NewScheduler(4, testLogger())
	require.NoError(t, err)

	var completed atomic.Int32
	admitted := sched.Run(context.Background(), schedulerTasks(n), func(_ context.Context, _ Task) {
		time.Sleep(time.Millisecond)
		completed.Inc()
	})

	// No worker is abandoned: every admitted task completed before Run returned.
	assert.Equal(t, n, admitted)
	assert.Equal(t, int32(n), completed.Load())
}

func TestSchedulerCancellationStopsAdmission(t *testing.T) {
	const n, budget = 8, 2
	sched, err := NewScheduler(budget, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	started := make(chan struct{}, n)

	var wg sync.WaitGroup
	wg.Add(1)
	var admitted int
	go func() {
		defer wg.Done()
		admitted = sched.Run(ctx, schedulerTasks(n), func(_ context.Context, _ Task) {
			started <- struct{}{}
			<-release
		})
	}()

	// Wait until the budget is saturated, then interrupt the batch.
	<-started
	<-started
	cancel()
	// Give the blocked admission point time to observe the cancellation
	// before any slot frees up.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	// The two admitted workers ran to completion; no further task was admitted.
	assert.Equal(t, budget, admitted)
	assert.Equal(t, int32(0), sched.Running())
}
