package provbatch

import (
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
)

// Summary aggregates the outcome of a drained batch: counts, elapsed time,
// and where the run's artifacts were persisted.
type Summary struct {
	SessionID string    `json:"session_id"`
	Mode      string    `json:"mode"`
	Admitted  int       `json:"admitted"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Failures  []Failure `json:"failures,omitempty"`
	ElapsedMS int64     `json:"elapsed_ms"`

	ArtifactLinesPath  string `json:"artifact_lines_path"`
	ArtifactJoinedPath string `json:"artifact_joined_path"`
	LogPath            string `json:"log_path"`

	Elapsed time.Duration `json:"-"`
}

// Summarize folds a drained sink into a Summary. Pure over the sink's
// contents; must only be called after the scheduler reports full join.
func Summarize(sink *ResultSink, session *Session, mode Mode, admitted int, elapsed time.Duration) Summary {
	succeeded, failed, _ := sink.Drain()
	return Summary{
		SessionID:          session.ID,
		Mode:               mode.String(),
		Admitted:           admitted,
		Succeeded:          len(succeeded),
		Failed:             len(failed),
		Failures:           failed,
		Elapsed:            elapsed,
		ElapsedMS:          elapsed.Milliseconds(),
		ArtifactLinesPath:  session.ArtifactLinesPath(),
		ArtifactJoinedPath: session.ArtifactJoinedPath(),
		LogPath:            session.LogPath(),
	}
}

// WriteJSON persists the summary into the session directory and returns the
// written path.
func (s Summary) WriteJSON(session *Session) (string, error) {
	data, err := sonic.Marshal(s)
	if err != nil {
		return "", err
	}
	path := session.SummaryPath()
	if err := os.WriteFile(path, data, sessionFilePerm); err != nil {
		return "", err
	}
	return path, nil
}

// Log emits the summary through the given logger. A non-zero failure count
// is a warning, not an error: partial success is an expected outcome of a
// best-effort batch.
func (s Summary) Log(logger zerolog.Logger) {
	event := logger.Info()
	if s.Failed > 0 {
		event = logger.Warn()
	}
	event.
		Str("mode", s.Mode).
		Int("admitted", s.Admitted).
		Int("succeeded", s.Succeeded).
		Int("failed", s.Failed).
		Dur("elapsed", s.Elapsed).
		Str("artifacts", s.ArtifactLinesPath).
		Str("artifacts_joined", s.ArtifactJoinedPath).
		Str("log", s.LogPath).
		Msg("batch complete")
}
