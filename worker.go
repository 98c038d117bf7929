package provbatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// defaultCleanupGrace bounds compensating actions that outlive their batch.
const defaultCleanupGrace = 30 * time.Second

// artifactFunc derives the recorded artifact from a succeeded task's final
// step payload.
type artifactFunc func(task Task, payload string) (string, error)

// worker drives one task at a time through its step pipeline: each step runs
// under the retry policy, a failure at any step transitions the task to its
// failed state and dispatches compensation for the side effects of the steps
// already completed, and the terminal outcome is recorded exactly once.
type worker struct {
	retry    Policy
	sink     *ResultSink
	artifact artifactFunc
	observer BatchObserver
	logger   zerolog.Logger

	cleanup      *sync.WaitGroup
	cleanupGrace time.Duration
}

// run executes the task's pipeline to a terminal state. Never returns an
// error: all failures end up in the sink, not with the scheduler.
func (w *worker) run(ctx context.Context, task Task) {
	start := time.Now()
	completed := make([]Step, 0, len(task.Steps))

	var payload string
	for _, step := range task.Steps {
		w.logger.Debug().Str("task", task.ID).Str("step", step.Name).Msg("step starting")
		result := w.retry.Execute(ctx, step.Run)
		if result.Status != StepSuccess {
			w.logger.Warn().
				Str("task", task.ID).
				Str("step", step.Name).
				Int("attempts", result.Attempts).
				Bool("fatal", result.Status == StepFatal).
				Err(result.Err).
				Msg("step failed")
			w.fail(task, completed, fmt.Sprintf("%s: %v", step.Name, result.Err), start)
			return
		}
		payload = result.Output
		completed = append(completed, step)
	}

	artifact, err := w.artifact(task, payload)
	if err != nil {
		// The provider reported success but the expected payload could not
		// be pulled out. Counts as a task failure and compensates like any
		// later-step failure.
		w.fail(task, completed, fmt.Sprintf("artifact extraction: %v", err), start)
		return
	}

	if err := w.sink.RecordSuccess(task.ID, artifact); err != nil {
		w.fail(task, completed, fmt.Sprintf("recording artifact: %v", err), start)
		return
	}
	w.logger.Info().Str("task", task.ID).Dur("elapsed", time.Since(start)).Msg("task succeeded")
	w.observe(TaskMetrics{TaskID: task.ID, Succeeded: true, Elapsed: time.Since(start)})
}

// fail records the task's terminal failure and dispatches compensation for
// the completed steps.
func (w *worker) fail(task Task, completed []Step, cause string, start time.Time) {
	if err := w.sink.RecordFailure(task.ID, cause); err != nil {
		w.logger.Error().Err(err).Str("task", task.ID).Msg("failed to record task failure")
	}
	w.compensate(task, completed)
	w.observe(TaskMetrics{TaskID: task.ID, Cause: cause, Elapsed: time.Since(start)})
}

// compensate undoes the side effects of completed steps in reverse order,
// exactly once per task. The rollback is fire-and-forget: it runs on its own
// goroutine with its own deadline, detached from batch cancellation, and its
// failures are logged but never escalate.
func (w *worker) compensate(task Task, completed []Step) {
	undos := make([]Step, 0, len(completed))
	for i := len(completed) - 1; i >= 0; i-- {
		if completed[i].Undo != nil {
			undos = append(undos, completed[i])
		}
	}
	if len(undos) == 0 {
		return
	}

	grace := w.cleanupGrace
	if grace <= 0 {
		grace = defaultCleanupGrace
	}

	w.cleanup.Add(1)
	go func() {
		defer w.cleanup.Done()
		ctx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		for _, step := range undos {
			if err := step.Undo(ctx); err != nil {
				w.logger.Warn().
					Str("task", task.ID).
					Str("step", step.Name).
					Err(err).
					Msg("compensating action failed")
				continue
			}
			w.logger.Info().Str("task", task.ID).Str("step", step.Name).Msg("compensated step side effect")
		}
	}()
}

// observe forwards task metrics to the configured observer, if any.
func (w *worker) observe(m TaskMetrics) {
	if w.observer != nil {
		w.observer.ObserveTask(m)
	}
}
