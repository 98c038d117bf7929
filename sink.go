package provbatch

import (
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// artifactSeparator joins artifacts in the single-line artifact file.
const artifactSeparator = ","

// Failure pairs a task ID with a human-readable cause.
type Failure struct {
	TaskID string `json:"task_id"`
	Cause  string `json:"cause"`
}

// ResultSink accumulates task outcomes from any number of concurrent
// workers. All mutation happens under a single mutex, so records from
// different workers never interleave or drop, in memory or on disk.
//
// Artifacts are persisted in two parallel forms as they arrive: one per line
// in the lines file, and joined on a single line in the joined file, with
// the separator inserted only between pre-existing and new content. Both
// files reflect the same artifacts in the same relative order.
type ResultSink struct {
	mu     sync.Mutex
	frozen bool

	succeeded []string
	failed    []Failure
	artifacts []string

	lines      *os.File
	joined     *os.File
	joinedTail bool // True once the joined file has content to separate from

	logger zerolog.Logger
}

// newResultSink opens the session's artifact files for appending. A joined
// file that already has content keeps accumulating behind a separator.
func newResultSink(session *Session, logger zerolog.Logger) (*ResultSink, error) {
	lines, err := os.OpenFile(
		session.ArtifactLinesPath(),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY,
		sessionFilePerm,
	)
	if err != nil {
		return nil, err
	}
	joined, err := os.OpenFile(
		session.ArtifactJoinedPath(),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY,
		sessionFilePerm,
	)
	if err != nil {
		lines.Close()
		return nil, err
	}
	info, err := joined.Stat()
	if err != nil {
		lines.Close()
		joined.Close()
		return nil, err
	}

	return &ResultSink{
		lines:      lines,
		joined:     joined,
		joinedTail: info.Size() > 0,
		logger:     logger,
	}, nil
}

// RecordSuccess appends the task to the succeeded list and persists its
// artifact to both artifact files. A write failure aborts only this record:
// the error is returned for the owning worker to convert into a task
// failure, and the batch carries on.
func (rs *ResultSink) RecordSuccess(taskID, artifact string) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.frozen {
		return ErrSinkFrozen
	}

	if _, err := rs.lines.WriteString(artifact + "\n"); err != nil {
		return fmt.Errorf("write artifact line: %w", err)
	}
	entry := artifact
	if rs.joinedTail {
		entry = artifactSeparator + artifact
	}
	if _, err := rs.joined.WriteString(entry); err != nil {
		return fmt.Errorf("write joined artifact: %w", err)
	}
	rs.joinedTail = true

	rs.succeeded = append(rs.succeeded, taskID)
	rs.artifacts = append(rs.artifacts, artifact)
	rs.logger.Debug().Str("task", taskID).Msg("recorded success")
	return nil
}

// RecordFailure appends the task to the failed list.
func (rs *ResultSink) RecordFailure(taskID, cause string) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.frozen {
		return ErrSinkFrozen
	}

	rs.failed = append(rs.failed, Failure{TaskID: taskID, Cause: cause})
	rs.logger.Debug().Str("task", taskID).Str("cause", cause).Msg("recorded failure")
	return nil
}

// Drain freezes the sink, closes the artifact files, and returns the
// accumulated outcomes. Only valid once the scheduler has confirmed that no
// worker is still running; the sink does not order itself against in-flight
// records.
func (rs *ResultSink) Drain() (succeeded []string, failed []Failure, artifacts []string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.frozen {
		rs.frozen = true
		if err := rs.lines.Close(); err != nil {
			rs.logger.Warn().Err(err).Msg("closing artifact lines file")
		}
		if err := rs.joined.Close(); err != nil {
			rs.logger.Warn().Err(err).Msg("closing joined artifact file")
		}
	}

	succeeded = append([]string(nil), rs.succeeded...)
	failed = append([]Failure(nil), rs.failed...)
	artifacts = append([]string(nil), rs.artifacts...)
	return succeeded, failed, artifacts
}
