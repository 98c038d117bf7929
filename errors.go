package provbatch

import "errors"

var (
	// ErrInvalidConfig is returned when a configuration struct fails validation.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrSinkFrozen is returned when a record is attempted after the sink drained.
	ErrSinkFrozen = errors.New("result sink is frozen")

	// ErrNoTasks is returned when a batch has nothing to do.
	ErrNoTasks = errors.New("no tasks to run")
)
