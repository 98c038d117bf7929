package provbatch

import "time"

// BatchObserver is a pluggable observer for task outcomes and internal
// events. Implementations must be non-blocking or very fast; the batch
// invokes the observer best-effort and does not wait for completion.
type BatchObserver interface {
	ObserveTask(TaskMetrics)
	ObserveEvent(name string, fields map[string]any)
}

// TaskMetrics is an artifact-free snapshot of a finished task suitable for
// progress rendering. It intentionally excludes credential payloads to avoid
// leaking secrets into observers.
type TaskMetrics struct {
	TaskID    string
	Succeeded bool
	Cause     string // Empty when Succeeded
	Elapsed   time.Duration
}
