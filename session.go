package provbatch

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
)

const (
	artifactLinesName  = "artifacts.txt"
	artifactJoinedName = "artifacts_joined.txt"
	runLogName         = "run.log"
	summaryName        = "summary.json"

	sessionDirPerm  = 0o755
	sessionFilePerm = 0o644
)

// Session owns the output directory of one batch run: the two artifact
// files, the append-only run log, and the persisted summary.
type Session struct {
	ID  string
	Dir string

	logFile *os.File
	logger  zerolog.Logger
}

// NewSession creates a fresh session directory under baseDir and opens the
// run log. An empty baseDir places the session under the OS temp directory.
// When console is non-nil, log events are teed to it in addition to the run
// log file.
func NewSession(baseDir string, console io.Writer) (*Session, error) {
	id := xid.New().String()
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	dir := filepath.Join(baseDir, "provbatch-"+id)
	if err := os.MkdirAll(dir, sessionDirPerm); err != nil {
		return nil, err
	}

	logFile, err := os.OpenFile(
		filepath.Join(dir, runLogName),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY,
		sessionFilePerm,
	)
	if err != nil {
		return nil, err
	}

	var writer io.Writer = logFile
	if console != nil {
		writer = zerolog.MultiLevelWriter(logFile, console)
	}
	logger := zerolog.New(writer).With().Timestamp().Str("session", id).Logger()

	return &Session{
		ID:      id,
		Dir:     dir,
		logFile: logFile,
		logger:  logger,
	}, nil
}

// Logger returns the session-scoped logger. Every event is appended to the
// run log, one timestamped line per event.
func (s *Session) Logger() zerolog.Logger {
	return s.logger
}

// ArtifactLinesPath returns the path of the newline-delimited artifact file.
func (s *Session) ArtifactLinesPath() string {
	return filepath.Join(s.Dir, artifactLinesName)
}

// ArtifactJoinedPath returns the path of the single-line joined artifact file.
func (s *Session) ArtifactJoinedPath() string {
	return filepath.Join(s.Dir, artifactJoinedName)
}

// LogPath returns the path of the run log.
func (s *Session) LogPath() string {
	return filepath.Join(s.Dir, runLogName)
}

// SummaryPath returns the path the summary is persisted to.
func (s *Session) SummaryPath() string {
	return filepath.Join(s.Dir, summaryName)
}

// Close releases the session's file handles. The directory and its contents
// remain for the caller to inspect.
func (s *Session) Close() error {
	return s.logFile.Close()
}
