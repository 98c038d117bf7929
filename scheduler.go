package provbatch

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"
)

// Scheduler fans a list of independent tasks out across a bounded set of
// workers. Admission is one task at a time: once the concurrency budget is
// reached, the scheduler blocks until a running worker frees a slot. A
// worker's failure never aborts the batch or blocks later admissions.
type Scheduler struct {
	concurrency int

	running atomic.Int32 // Number of workers currently executing
	peak    atomic.Int32 // Highest observed running count

	logger zerolog.Logger
}

// NewScheduler creates a Scheduler with the given fixed concurrency budget.
func NewScheduler(concurrency int, logger zerolog.Logger) (*Scheduler, error) {
	if concurrency < 1 {
		return nil, errors.Join(ErrInvalidConfig, errors.New("concurrency must be at least 1"))
	}
	return &Scheduler{
		concurrency: concurrency,
		logger:      logger,
	}, nil
}

// Run dispatches the tasks to workerFn and returns the number of admitted
// tasks once every admitted worker has completed. Context cancellation stops
// admission of not-yet-started tasks; workers already admitted run to their
// terminal state before Run returns.
func (s *Scheduler) Run(ctx context.Context, tasks []Task, workerFn func(context.Context, Task)) int {
	sem := semaphore.NewWeighted(int64(s.concurrency))
	var wg sync.WaitGroup

	admitted := 0
	for _, task := range tasks {
		// Blocks until a slot frees up or the batch is interrupted.
		if err := sem.Acquire(ctx, 1); err != nil {
			s.logger.Warn().
				Int("admitted", admitted).
				Int("skipped", len(tasks)-admitted).
				Msg("batch interrupted, halting task admission")
			break
		}
		admitted++

		wg.Add(1)
		go func(task Task) {
			defer wg.Done()
			defer sem.Release(1)

			current := s.running.Inc()
			s.recordPeak(current)
			defer s.running.Dec()

			s.logger.Debug().Str("task", task.ID).Int32("running", current).Msg("task admitted")
			workerFn(ctx, task)
		}(task)
	}

	// Full join: no admitted worker is abandoned.
	wg.Wait()
	return admitted
}

// recordPeak lifts the peak gauge to current if it is a new high.
func (s *Scheduler) recordPeak(current int32) {
	for {
		peak := s.peak.Load()
		if current <= peak || s.peak.CompareAndSwap(peak, current) {
			return
		}
	}
}

// Running returns the number of workers currently executing.
func (s *Scheduler) Running() int32 {
	return s.running.Load()
}

// Peak returns the highest number of simultaneously running workers
// observed so far. Never exceeds the concurrency budget.
func (s *Scheduler) Peak() int32 {
	return s.peak.Load()
}
