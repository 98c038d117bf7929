// Package provbatch is a bounded-concurrency orchestrator for batches of
// independent remote provisioning tasks. It fans N tasks out across at most
// K workers, retries transient provider errors, short-circuits fatal ones,
// compensates partial side effects, accumulates artifacts without
// interleaving, and reports an aggregate summary.
package provbatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Mode selects what a batch does with its tasks.
type Mode int

const (
	// Provision creates resources, enables the capability on them, and
	// issues credentials, with deletion as compensating cleanup.
	Provision Mode = iota
	// Teardown deletes the listed resources.
	Teardown
)

// String returns a human-readable name for the mode.
func (m Mode) String() string {
	switch m {
	case Provision:
		return "provision"
	case Teardown:
		return "teardown"
	default:
		return "unknown"
	}
}

// Config assembles everything a batch needs. All knobs are explicit; the
// package keeps no process-wide state.
type Config struct {
	// Mode selects the pipeline built for each task.
	Mode Mode

	// Count is the number of generated tasks in Provision mode. Ignored when
	// IDs is set.
	Count int

	// IDs is an explicit list of resource IDs to operate on. Required in
	// Teardown mode.
	IDs []string

	// Prefix seeds generated resource IDs. Defaults to "provbatch".
	Prefix string

	// Namer overrides the default prefix-plus-random-suffix ID generation.
	Namer Namer

	// Concurrency is the fixed maximum number of simultaneously running
	// tasks. Must be at least 1.
	Concurrency int

	// Retry bounds each step's attempts and backoff.
	Retry Policy

	// Provider performs the external provisioning operations.
	Provider Provider

	// Extract pulls the artifact from the final step's payload in Provision
	// mode. Defaults to JSONFieldExtractor("credential").
	Extract Extractor

	// OutputDir is the parent directory for the session's output. Empty
	// means the OS temp directory.
	OutputDir string

	// CleanupGrace bounds how long Run waits for outstanding compensating
	// actions after the last worker joins. Zero uses a default of 30s.
	CleanupGrace time.Duration

	// Observer receives best-effort task and event notifications. Optional.
	Observer BatchObserver

	// ConsoleLog, when non-nil, tees run log events to this writer in
	// addition to the session's log file.
	ConsoleLog io.Writer
}

// Validate checks that the Config is runnable.
func (c Config) Validate() error {
	if c.Provider == nil {
		return errors.Join(ErrInvalidConfig, errors.New("Provider is nil"))
	}
	if c.Concurrency < 1 {
		return errors.Join(ErrInvalidConfig, errors.New("Concurrency must be at least 1"))
	}
	if err := c.Retry.Validate(); err != nil {
		return err
	}
	switch c.Mode {
	case Provision:
		if len(c.IDs) == 0 && c.Count < 1 {
			return errors.Join(ErrInvalidConfig, errors.New("Provision mode needs Count or IDs"))
		}
	case Teardown:
		if len(c.IDs) == 0 {
			return errors.Join(ErrInvalidConfig, errors.New("Teardown mode needs IDs"))
		}
	default:
		return errors.Join(ErrInvalidConfig, fmt.Errorf("unknown mode %d", c.Mode))
	}
	if c.CleanupGrace < 0 {
		return errors.Join(ErrInvalidConfig, errors.New("CleanupGrace cannot be negative"))
	}
	return nil
}

// Batch orchestrates one bounded-concurrency provisioning run. Create with
// New, run once with Run.
type Batch struct {
	cfg     Config
	session *Session
	sink    *ResultSink
	sched   *Scheduler
	logger  zerolog.Logger
}

// New validates the configuration, creates the session directory, and wires
// up the batch. The caller owns nothing to clean up: Run closes the session
// when it finishes.
func New(cfg Config) (*Batch, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	session, err := NewSession(cfg.OutputDir, cfg.ConsoleLog)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	logger := session.Logger()

	sink, err := newResultSink(session, logger)
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("opening result sink: %w", err)
	}

	sched, err := NewScheduler(cfg.Concurrency, logger)
	if err != nil {
		session.Close()
		return nil, err
	}

	if cfg.Mode == Provision && cfg.Extract == nil {
		cfg.Extract = JSONFieldExtractor("credential")
	}

	return &Batch{
		cfg:     cfg,
		session: session,
		sink:    sink,
		sched:   sched,
		logger:  logger,
	}, nil
}

// Session exposes the batch's session, mainly for locating output files.
func (b *Batch) Session() *Session {
	return b.session
}

// Scheduler exposes the batch's scheduler, mainly for its gauges.
func (b *Batch) Scheduler() *Scheduler {
	return b.sched
}

// Run executes the batch to completion and returns its summary. Individual
// task failures never fail the run; they only show up in the summary counts.
// Context cancellation stops admitting new tasks, lets admitted workers
// reach a terminal state, and gives compensating cleanup a bounded grace
// period before local resources are released.
func (b *Batch) Run(ctx context.Context) (Summary, error) {
	start := time.Now()

	tasks, err := b.buildTasks()
	if err != nil {
		b.session.Close()
		return Summary{}, err
	}

	b.logger.Info().
		Str("mode", b.cfg.Mode.String()).
		Int("tasks", len(tasks)).
		Int("concurrency", b.cfg.Concurrency).
		Str("dir", b.session.Dir).
		Msg("batch starting")
	b.event("batch_start", map[string]any{"tasks": len(tasks)})

	var cleanup sync.WaitGroup
	w := &worker{
		retry:        b.cfg.Retry,
		sink:         b.sink,
		artifact:     b.artifactFunc(),
		observer:     b.cfg.Observer,
		logger:       b.logger,
		cleanup:      &cleanup,
		cleanupGrace: b.cfg.CleanupGrace,
	}

	admitted := b.sched.Run(ctx, tasks, w.run)
	b.waitForCleanup(&cleanup)

	summary := Summarize(b.sink, b.session, b.cfg.Mode, admitted, time.Since(start))
	if path, err := summary.WriteJSON(b.session); err != nil {
		b.logger.Warn().Err(err).Msg("failed to persist summary")
	} else {
		b.logger.Debug().Str("path", path).Msg("summary persisted")
	}
	summary.Log(b.logger)
	b.event("batch_complete", map[string]any{
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
	})

	if err := b.session.Close(); err != nil {
		return summary, fmt.Errorf("closing session: %w", err)
	}
	return summary, nil
}

// artifactFunc maps a succeeded task to its recorded artifact. Provision
// batches extract the credential from the issue payload; Teardown batches
// record the deleted resource's ID.
func (b *Batch) artifactFunc() artifactFunc {
	if b.cfg.Mode == Teardown {
		return func(task Task, _ string) (string, error) {
			return task.ID, nil
		}
	}
	extract := b.cfg.Extract
	return func(_ Task, payload string) (string, error) {
		return extract(payload)
	}
}

// waitForCleanup gives outstanding compensating actions a bounded grace
// period. Cleanup is never awaited unconditionally: a hung provider delete
// must not hang the batch.
func (b *Batch) waitForCleanup(cleanup *sync.WaitGroup) {
	grace := b.cfg.CleanupGrace
	if grace <= 0 {
		grace = defaultCleanupGrace
	}

	done := make(chan struct{})
	go func() {
		cleanup.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		b.logger.Warn().Msg("compensating cleanup still running at batch end, abandoning wait")
	}
}

// buildTasks enumerates the batch's tasks from the configured mode.
func (b *Batch) buildTasks() ([]Task, error) {
	ids, err := b.resolveIDs()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrNoTasks
	}

	tasks := make([]Task, 0, len(ids))
	for _, id := range ids {
		switch b.cfg.Mode {
		case Provision:
			tasks = append(tasks, Task{ID: id, Steps: b.provisionSteps(id)})
		case Teardown:
			tasks = append(tasks, Task{ID: id, Steps: b.teardownSteps(id)})
		}
	}
	return tasks, nil
}

// resolveIDs returns the explicit ID list, or generates Count unique IDs.
func (b *Batch) resolveIDs() ([]string, error) {
	if len(b.cfg.IDs) > 0 {
		return append([]string(nil), b.cfg.IDs...), nil
	}

	namer := b.cfg.Namer
	if namer == nil {
		prefix := b.cfg.Prefix
		if prefix == "" {
			prefix = defaultPrefix
		}
		built, err := PrefixNamer(prefix, defaultSuffixLen)
		if err != nil {
			return nil, err
		}
		namer = built
	}

	seen := make(map[string]struct{}, b.cfg.Count)
	ids := make([]string, 0, b.cfg.Count)
	for i := 0; len(ids) < b.cfg.Count; i++ {
		// A bounded number of collisions is tolerated before giving up.
		if i > b.cfg.Count*10 {
			return nil, fmt.Errorf("namer failed to produce %d unique IDs", b.cfg.Count)
		}
		id, err := namer(i)
		if err != nil {
			return nil, fmt.Errorf("generating resource ID: %w", err)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// provisionSteps builds the create → enable → issue pipeline. Only the
// create step registers an undo: a failure at any later point tears the
// created resource back down.
func (b *Batch) provisionSteps(id string) []Step {
	p := b.cfg.Provider
	return []Step{
		{
			Name: "create",
			Run: func(ctx context.Context) (string, error) {
				return p.CreateResource(ctx, id)
			},
			Undo: func(ctx context.Context) error {
				_, err := p.DeleteResource(ctx, id)
				return err
			},
		},
		{
			Name: "enable",
			Run: func(ctx context.Context) (string, error) {
				return p.EnableCapability(ctx, id)
			},
		},
		{
			Name: "issue",
			Run: func(ctx context.Context) (string, error) {
				return p.IssueCredential(ctx, id)
			},
		},
	}
}

// teardownSteps builds the single-step delete pipeline.
func (b *Batch) teardownSteps(id string) []Step {
	p := b.cfg.Provider
	return []Step{
		{
			Name: "delete",
			Run: func(ctx context.Context) (string, error) {
				return p.DeleteResource(ctx, id)
			},
		},
	}
}

// event forwards a named event to the observer, if any.
func (b *Batch) event(name string, fields map[string]any) {
	if b.cfg.Observer != nil {
		b.cfg.Observer.ObserveEvent(name, fields)
	}
}
