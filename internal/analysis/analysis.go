// Package analysis defines the analysis-session domain types and the state
// machine that drives one analysis attempt against the Checkstyle Analyzer
// backend. It depends on the backend only through small interfaces so the
// lifecycle logic is testable without a server.
package analysis

import (
	"context"
	"strings"
	"time"
)

// Status represents the lifecycle state of an analysis session.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusSubmitting Status = "submitting"
	StatusPending    Status = "pending"
	StatusCloning    Status = "cloning"
	StatusAnalyzing  Status = "analyzing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions can leave this status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// rank orders statuses so a session only ever advances. Terminal states share
// the highest rank; which one wins is decided by the first terminal signal.
func (s Status) rank() int {
	switch s {
	case StatusIdle:
		return 0
	case StatusSubmitting:
		return 1
	case StatusPending:
		return 2
	case StatusCloning:
		return 3
	case StatusAnalyzing:
		return 4
	case StatusCompleted, StatusFailed:
		return 5
	default:
		return -1
	}
}

// ParseStatus maps a backend status string ("Pending", "CLONING", ...) onto a
// Status. Unknown values return false.
func ParseStatus(raw string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending":
		return StatusPending, true
	case "cloning":
		return StatusCloning, true
	case "analyzing":
		return StatusAnalyzing, true
	case "completed":
		return StatusCompleted, true
	case "failed":
		return StatusFailed, true
	default:
		return "", false
	}
}

// Level is the severity of a log entry, using Checkstyle's vocabulary.
type Level string

const (
	LevelIgnore  Level = "ignore"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// ParseLevel maps a backend level string onto a Level. Unknown values fall
// back to info so a log line is never dropped over an unexpected label.
func ParseLevel(raw string) Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "ignore":
		return LevelIgnore
	case "info":
		return LevelInfo
	case "warning", "warn":
		return LevelWarning
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// LogEntry is one line of the analysis log. Entries are immutable once
// appended to a session.
type LogEntry struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Violation is a single Checkstyle finding.
type Violation struct {
	ID         int64  `json:"id"`
	FilePath   string `json:"filePath"`
	LineNumber int    `json:"lineNumber"`
	Severity   string `json:"severity"`
	Message    string `json:"message"`
}

// CompilationError is a javac diagnostic from the inline-code path.
type CompilationError struct {
	LineNumber int    `json:"lineNumber"`
	Message    string `json:"message"`
}

// StatusReport is the backend's answer to a status poll.
type StatusReport struct {
	ID           string
	Status       Status
	ErrorMessage string
	CreatedAt    time.Time
}

// CheckResult is the synchronous result bundle of the inline-code path.
type CheckResult struct {
	Violations        []Violation
	CompilationErrors []CompilationError
	Score             float64
}

// Target is what the user asked to analyze: a repository URL, or an inline
// source payload checked synchronously.
type Target struct {
	RepoURL string

	Code             string
	FileName         string
	CheckCompilation bool
}

// RepoTarget builds a repository-analysis target.
func RepoTarget(url string) Target {
	return Target{RepoURL: url}
}

// SourceTarget builds an inline source-check target.
func SourceTarget(code, fileName string, checkCompilation bool) Target {
	return Target{Code: code, FileName: fileName, CheckCompilation: checkCompilation}
}

// Inline reports whether the target takes the synchronous inline-code path.
func (t Target) Inline() bool { return t.RepoURL == "" }

// String renders the target for logs and history rows.
func (t Target) String() string {
	if t.Inline() {
		if t.FileName != "" {
			return t.FileName
		}
		return "(inline source)"
	}
	return t.RepoURL
}

// Backend is the REST surface of the analyzer service that the session state
// machine drives. Implementations do not retry; retry policy, if any, belongs
// to the caller.
type Backend interface {
	// StartAnalysis submits a repository URL and returns the backend-assigned
	// session identifier.
	StartAnalysis(ctx context.Context, repoURL string) (string, error)

	// Status returns the current state of a running analysis.
	Status(ctx context.Context, sessionID string) (StatusReport, error)

	// Violations returns the full result list. Only meaningful once the
	// session has completed; the returned slice replaces any prior results.
	Violations(ctx context.Context, sessionID string) ([]Violation, error)

	// CheckSource runs the synchronous inline-code check.
	CheckSource(ctx context.Context, code, fileName string, checkCompilation bool) (CheckResult, error)
}

// LogStream is an open real-time log channel scoped to one session.
// Entries is closed exactly once: by Close, or when the transport fails
// irrecoverably (Err then reports the cause). The stream never reconnects.
type LogStream interface {
	Entries() <-chan LogEntry
	Err() error
	Close() error
}

// LogStreamer opens real-time log channels.
type LogStreamer interface {
	OpenLogStream(ctx context.Context, sessionID string) (LogStream, error)
}

// Snapshot is a read-only copy of a session's state, safe to retain and
// render. The presentation layer only ever sees snapshots.
type Snapshot struct {
	Status            Status
	Target            Target
	SessionID         string
	LogEntries        []LogEntry
	Violations        []Violation
	CompilationErrors []CompilationError
	Score             float64
	Err               string
	StartedAt         time.Time
	FinishedAt        time.Time
}
