package provbatch

import "context"

// Task is one logical unit of provisioning work: an opaque ID carried
// through an ordered pipeline of steps until success or a short-circuiting
// failure. Tasks are immutable once built and discarded after their terminal
// outcome is recorded.
type Task struct {
	ID    string
	Steps []Step
}

// Step is a single external operation within a Task's pipeline.
type Step struct {
	// Name identifies the step in logs and failure causes.
	Name string

	// Run performs one attempt of the operation. Retries around Run are the
	// retry policy's job, not the step's.
	Run StepFunc

	// Undo reverts the step's side effect after a later step fails. Nil when
	// there is nothing to revert. Undo is best-effort: failures are logged,
	// never escalated.
	Undo func(ctx context.Context) error
}
