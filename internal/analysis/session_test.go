package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// --- stubs ---

// stubBackend scripts status answers per session id: one entry per poll, the
// last entry repeats forever.
type stubBackend struct {
	mu sync.Mutex

	startErr      error
	statusErr     error
	violationsErr error
	checkErr      error

	scripts    map[string][]Status
	errorMsg   string
	violations []Violation
	check      CheckResult

	starts  int
	polls   map[string]int
	fetches int
	checks  int
}

func newStubBackend(script ...Status) *stubBackend {
	b := &stubBackend{
		scripts: map[string][]Status{},
		polls:   map[string]int{},
	}
	if len(script) > 0 {
		b.scripts["s-1"] = script
	}
	return b
}

func (b *stubBackend) StartAnalysis(_ context.Context, _ string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.startErr != nil {
		return "", b.startErr
	}
	b.starts++
	return fmt.Sprintf("s-%d", b.starts), nil
}

func (b *stubBackend) Status(_ context.Context, sessionID string) (StatusReport, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.statusErr != nil {
		return StatusReport{}, b.statusErr
	}
	script := b.scripts[sessionID]
	if len(script) == 0 {
		return StatusReport{}, fmt.Errorf("no script for session %s", sessionID)
	}
	i := b.polls[sessionID]
	if i >= len(script) {
		i = len(script) - 1
	}
	b.polls[sessionID]++
	rep := StatusReport{ID: sessionID, Status: script[i]}
	if script[i] == StatusFailed {
		rep.ErrorMessage = b.errorMsg
	}
	return rep, nil
}

func (b *stubBackend) Violations(_ context.Context, _ string) ([]Violation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fetches++
	if b.violationsErr != nil {
		return nil, b.violationsErr
	}
	return b.violations, nil
}

func (b *stubBackend) CheckSource(_ context.Context, _, _ string, _ bool) (CheckResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checks++
	if b.checkErr != nil {
		return CheckResult{}, b.checkErr
	}
	return b.check, nil
}

func (b *stubBackend) pollCount(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.polls[id]
}

func (b *stubBackend) fetchCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fetches
}

func (b *stubBackend) checkCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.checks
}

// stubStream is a hand-driven log channel. Tests push entries, close it, or
// fail it; Close from the session side is counted.
type stubStream struct {
	ch chan LogEntry

	mu     sync.Mutex
	err    error
	closed bool
	closes int
}

func newStubStream() *stubStream {
	return &stubStream{ch: make(chan LogEntry, 16)}
}

func (s *stubStream) Entries() <-chan LogEntry { return s.ch }

func (s *stubStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *stubStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	s.closeLocked()
	return nil
}

func (s *stubStream) push(level Level, message string) {
	s.ch <- LogEntry{Level: level, Message: message}
}

// fail simulates a transport failure: Err is set, then the channel closes.
func (s *stubStream) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	s.closeLocked()
}

func (s *stubStream) closeLocked() {
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (s *stubStream) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

type stubStreamer struct {
	mu      sync.Mutex
	openErr error
	stream  *stubStream
	opens   int
}

func (s *stubStreamer) OpenLogStream(_ context.Context, _ string) (LogStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens++
	if s.openErr != nil {
		return nil, s.openErr
	}
	return s.stream, nil
}

func (s *stubStreamer) openCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

// --- helpers ---

func testSession(t *testing.T, backend Backend, streams LogStreamer, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithPollInterval(5 * time.Millisecond)}, opts...)
	s := NewSession(backend, streams, opts...)
	t.Cleanup(s.Reset)
	return s
}

func waitTerminal(t *testing.T, s *Session) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := s.Wait(ctx)
	if err != nil {
		t.Fatalf("waiting for session: %v", err)
	}
	return snap
}

func waitUntil(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func messages(logs []LogEntry) []string {
	out := make([]string, len(logs))
	for i, e := range logs {
		out[i] = e.Message
	}
	return out
}

// --- repository path ---

func TestRepoRunCompletes(t *testing.T) {
	backend := newStubBackend(StatusPending, StatusCloning, StatusAnalyzing, StatusCompleted)
	backend.violations = []Violation{
		{ID: 1, FilePath: "Main.java", LineNumber: 4, Severity: "WARNING", Message: "long line"},
	}
	s := testSession(t, backend, nil)

	s.Submit(context.Background(), RepoTarget("https://github.com/acme/billing"))
	snap := waitTerminal(t, s)

	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q (error: %s)", snap.Status, snap.Err)
	}
	if snap.SessionID != "s-1" {
		t.Fatalf("expected session id s-1, got %q", snap.SessionID)
	}
	if len(snap.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %d", len(snap.Violations))
	}
	if backend.fetchCount() != 1 {
		t.Fatalf("expected exactly 1 results fetch, got %d", backend.fetchCount())
	}
	if snap.FinishedAt.IsZero() || snap.StartedAt.IsZero() {
		t.Fatal("expected both timestamps to be set")
	}

	want := []string{
		"Analysis status: pending",
		"Analysis status: cloning",
		"Analysis status: analyzing",
		"Analysis status: completed",
		"Results loaded (1 violations)",
	}
	got := messages(snap.LogEntries)
	if len(got) != len(want) {
		t.Fatalf("expected %d log lines, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("log line %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestRepoRunFailsOnServer(t *testing.T) {
	backend := newStubBackend(StatusPending, StatusFailed)
	backend.errorMsg = "Repository not found: https://github.com/acme/missing"
	s := testSession(t, backend, nil)

	s.Submit(context.Background(), RepoTarget("https://github.com/acme/missing"))
	snap := waitTerminal(t, s)

	if snap.Status != StatusFailed {
		t.Fatalf("expected failed, got %q", snap.Status)
	}
	if snap.Err != backend.errorMsg {
		t.Fatalf("expected error %q, got %q", backend.errorMsg, snap.Err)
	}
	if backend.fetchCount() != 0 {
		t.Fatalf("failed run must not fetch results, got %d fetches", backend.fetchCount())
	}
	last := snap.LogEntries[len(snap.LogEntries)-1]
	if last.Level != LevelError || last.Message != backend.errorMsg {
		t.Fatalf("expected trailing error entry, got %+v", last)
	}
}

func TestRepoRunFailedWithoutMessage(t *testing.T) {
	backend := newStubBackend(StatusFailed)
	s := testSession(t, backend, nil)

	s.Submit(context.Background(), RepoTarget("https://github.com/acme/x"))
	snap := waitTerminal(t, s)

	if snap.Err != "analysis failed on the server" {
		t.Fatalf("expected fallback message, got %q", snap.Err)
	}
}

func TestSubmitFailure(t *testing.T) {
	backend := newStubBackend()
	backend.startErr = errors.New("backend returned 503: Service Unavailable")
	s := testSession(t, backend, nil)

	s.Submit(context.Background(), RepoTarget("https://github.com/acme/x"))
	snap := waitTerminal(t, s)

	if snap.Status != StatusFailed {
		t.Fatalf("expected failed, got %q", snap.Status)
	}
	if snap.Err != backend.startErr.Error() {
		t.Fatalf("expected submit error, got %q", snap.Err)
	}
	if backend.pollCount("s-1") != 0 {
		t.Fatal("no polls expected after a failed submit")
	}
}

func TestStatusPollErrorIsFatal(t *testing.T) {
	backend := newStubBackend(StatusPending)
	backend.statusErr = errors.New("connection refused")
	s := testSession(t, backend, nil)

	s.Submit(context.Background(), RepoTarget("https://github.com/acme/x"))
	snap := waitTerminal(t, s)

	if snap.Status != StatusFailed {
		t.Fatalf("expected failed, got %q", snap.Status)
	}
	if snap.Err != "status poll failed: connection refused" {
		t.Fatalf("unexpected error: %q", snap.Err)
	}
}

func TestStaleStatusIgnored(t *testing.T) {
	backend := newStubBackend(StatusAnalyzing, StatusPending, StatusCompleted)
	s := testSession(t, backend, nil)

	s.Submit(context.Background(), RepoTarget("https://github.com/acme/x"))
	snap := waitTerminal(t, s)

	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q", snap.Status)
	}
	for _, m := range messages(snap.LogEntries) {
		if m == "Analysis status: pending" {
			t.Fatalf("stale pending status leaked into the log: %v", messages(snap.LogEntries))
		}
	}
}

func TestDuplicateStatusLineSuppressed(t *testing.T) {
	backend := newStubBackend(StatusAnalyzing, StatusAnalyzing, StatusAnalyzing, StatusCompleted)
	s := testSession(t, backend, nil)

	s.Submit(context.Background(), RepoTarget("https://github.com/acme/x"))
	snap := waitTerminal(t, s)

	count := 0
	for _, m := range messages(snap.LogEntries) {
		if m == "Analysis status: analyzing" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected one analyzing line, got %d in %v", count, messages(snap.LogEntries))
	}
}

// --- log channel ---

func TestChannelMarkerCompletesRun(t *testing.T) {
	backend := newStubBackend(StatusAnalyzing)
	backend.violations = []Violation{{ID: 1, FilePath: "A.java", LineNumber: 1, Severity: "INFO", Message: "x"}}
	stream := newStubStream()
	streamer := &stubStreamer{stream: stream}
	s := testSession(t, backend, streamer)

	stream.push(LevelInfo, "Running checkstyle")
	stream.push(LevelInfo, "Analysis completed, preparing results")

	s.Submit(context.Background(), RepoTarget("https://github.com/acme/x"))
	snap := waitTerminal(t, s)

	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed via marker, got %q (error: %s)", snap.Status, snap.Err)
	}
	if backend.fetchCount() != 1 {
		t.Fatalf("expected 1 results fetch, got %d", backend.fetchCount())
	}
	got := messages(snap.LogEntries)
	found := false
	for _, m := range got {
		if m == "Running checkstyle" {
			found = true
		}
	}
	if !found {
		t.Fatalf("channel entry missing from log: %v", got)
	}
	waitUntil(t, func() bool { return stream.closeCount() >= 1 }, "stream was never closed")
}

func TestCustomMarker(t *testing.T) {
	backend := newStubBackend(StatusAnalyzing)
	stream := newStubStream()
	streamer := &stubStreamer{stream: stream}
	s := testSession(t, backend, streamer, WithCompletionMarker("DONE:"))

	stream.push(LevelInfo, "Analysis completed")
	stream.push(LevelInfo, "DONE: results ready")

	s.Submit(context.Background(), RepoTarget("https://github.com/acme/x"))
	snap := waitTerminal(t, s)

	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q", snap.Status)
	}
	// The default marker text must not have triggered completion: both
	// pushed lines are in the log.
	got := messages(snap.LogEntries)
	found := false
	for _, m := range got {
		if m == "DONE: results ready" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected run to last until the custom marker, got %v", got)
	}
}

func TestChannelErrorEntryFailsRun(t *testing.T) {
	backend := newStubBackend(StatusAnalyzing)
	stream := newStubStream()
	streamer := &stubStreamer{stream: stream}
	s := testSession(t, backend, streamer)

	stream.push(LevelError, "OutOfMemoryError during analysis")
	stream.push(LevelInfo, "Cleaning workspace")

	s.Submit(context.Background(), RepoTarget("https://github.com/acme/x"))
	snap := waitTerminal(t, s)

	if snap.Status != StatusFailed {
		t.Fatalf("expected failed, got %q", snap.Status)
	}
	if snap.Err != "OutOfMemoryError during analysis" {
		t.Fatalf("unexpected error: %q", snap.Err)
	}
	// The entry arrived over the channel; it must not be duplicated by the
	// failure handling, and nothing queued behind it is consumed.
	count := 0
	for _, m := range messages(snap.LogEntries) {
		if m == "OutOfMemoryError during analysis" {
			count++
		}
		if m == "Cleaning workspace" {
			t.Fatalf("entry after the error signal leaked into the log: %v", messages(snap.LogEntries))
		}
	}
	if count != 1 {
		t.Fatalf("expected error entry once, got %d times", count)
	}
	if backend.fetchCount() != 0 {
		t.Fatal("failed run must not fetch results")
	}
	if stream.closeCount() != 1 {
		t.Fatalf("expected exactly one close, got %d", stream.closeCount())
	}
}

func TestChannelClosureFailsRun(t *testing.T) {
	backend := newStubBackend(StatusAnalyzing)
	stream := newStubStream()
	streamer := &stubStreamer{stream: stream}
	s := testSession(t, backend, streamer)

	s.Submit(context.Background(), RepoTarget("https://github.com/acme/x"))
	waitUntil(t, func() bool { return streamer.openCount() == 1 }, "stream was never opened")
	stream.Close()

	snap := waitTerminal(t, s)
	if snap.Status != StatusFailed {
		t.Fatalf("expected failed, got %q", snap.Status)
	}
	if snap.Err != "log channel closed before the analysis finished" {
		t.Fatalf("unexpected error: %q", snap.Err)
	}
}

func TestChannelTransportFailure(t *testing.T) {
	backend := newStubBackend(StatusAnalyzing)
	stream := newStubStream()
	streamer := &stubStreamer{stream: stream}
	s := testSession(t, backend, streamer)

	s.Submit(context.Background(), RepoTarget("https://github.com/acme/x"))
	waitUntil(t, func() bool { return streamer.openCount() == 1 }, "stream was never opened")
	stream.fail(errors.New("websocket: close 1006 (abnormal closure)"))

	snap := waitTerminal(t, s)
	if snap.Status != StatusFailed {
		t.Fatalf("expected failed, got %q", snap.Status)
	}
	if snap.Err != "log channel failed: websocket: close 1006 (abnormal closure)" {
		t.Fatalf("unexpected error: %q", snap.Err)
	}
}

func TestStreamOpenFailureIsNonFatal(t *testing.T) {
	backend := newStubBackend(StatusAnalyzing, StatusCompleted)
	streamer := &stubStreamer{openErr: errors.New("dial tcp: connection refused")}
	s := testSession(t, backend, streamer)

	s.Submit(context.Background(), RepoTarget("https://github.com/acme/x"))
	snap := waitTerminal(t, s)

	if snap.Status != StatusCompleted {
		t.Fatalf("expected polling to complete the run, got %q (error: %s)", snap.Status, snap.Err)
	}
	found := false
	for _, e := range snap.LogEntries {
		if e.Level == LevelWarning && strings.HasPrefix(e.Message, "log channel unavailable:") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected channel warning, got %v", messages(snap.LogEntries))
	}
}

// --- inline path ---

func TestInlineCheck(t *testing.T) {
	backend := newStubBackend()
	backend.check = CheckResult{
		Violations:        []Violation{{FilePath: "Main.java", LineNumber: 2, Severity: "WARNING", Message: "ws"}},
		CompilationErrors: []CompilationError{{LineNumber: 9, Message: "';' expected"}},
		Score:             6.5,
	}
	streamer := &stubStreamer{stream: newStubStream()}
	s := testSession(t, backend, streamer)

	s.Submit(context.Background(), SourceTarget("class Main {}", "Main.java", true))
	snap := waitTerminal(t, s)

	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q (error: %s)", snap.Status, snap.Err)
	}
	if snap.SessionID != "" {
		t.Fatalf("inline check must not have a session id, got %q", snap.SessionID)
	}
	if snap.Score != 6.5 {
		t.Fatalf("expected score 6.5, got %v", snap.Score)
	}
	if len(snap.Violations) != 1 || len(snap.CompilationErrors) != 1 {
		t.Fatalf("unexpected results: %+v", snap)
	}
	if backend.checkCount() != 1 {
		t.Fatalf("expected 1 check call, got %d", backend.checkCount())
	}
	if streamer.openCount() != 0 {
		t.Fatal("inline check must not open a log channel")
	}
	if backend.pollCount("s-1") != 0 {
		t.Fatal("inline check must not poll")
	}
}

func TestInlineCheckError(t *testing.T) {
	backend := newStubBackend()
	backend.checkErr = errors.New("backend returned 400: code is required")
	s := testSession(t, backend, nil)

	s.Submit(context.Background(), SourceTarget("", "Main.java", false))
	snap := waitTerminal(t, s)

	if snap.Status != StatusFailed {
		t.Fatalf("expected failed, got %q", snap.Status)
	}
	if snap.Err != backend.checkErr.Error() {
		t.Fatalf("unexpected error: %q", snap.Err)
	}
}

// --- results loading ---

func TestResultsFetchFailureDowngrades(t *testing.T) {
	backend := newStubBackend(StatusCompleted)
	backend.violationsErr = errors.New("backend returned 500: Internal Server Error")
	s := testSession(t, backend, nil)

	s.Submit(context.Background(), RepoTarget("https://github.com/acme/x"))
	snap := waitTerminal(t, s)

	if snap.Status != StatusFailed {
		t.Fatalf("expected downgrade to failed, got %q", snap.Status)
	}
	if snap.Err != "loading results failed: backend returned 500: Internal Server Error" {
		t.Fatalf("unexpected error: %q", snap.Err)
	}
}

func TestFirstTerminalSignalWins(t *testing.T) {
	s := NewSession(nil, nil)
	r := &run{doneCh: make(chan struct{}), status: StatusAnalyzing}

	s.finishFailed(r, "first", true)
	// A later completion signal must not touch the attempt. With a nil
	// backend this would panic if the done guard were missing.
	s.finishCompleted(context.Background(), r, "s-1")

	if r.status != StatusFailed || r.errMsg != "first" {
		t.Fatalf("terminal state overwritten: status=%q err=%q", r.status, r.errMsg)
	}
}

// --- lifecycle ---

func TestWaitWithoutSubmit(t *testing.T) {
	s := testSession(t, newStubBackend(), nil)

	snap, err := s.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if snap.Status != StatusIdle {
		t.Fatalf("expected idle, got %q", snap.Status)
	}
}

func TestWaitContextExpiry(t *testing.T) {
	backend := newStubBackend(StatusAnalyzing)
	s := testSession(t, backend, nil)

	s.Submit(context.Background(), RepoTarget("https://github.com/acme/slow"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := s.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestResetReturnsToIdle(t *testing.T) {
	backend := newStubBackend(StatusAnalyzing)
	stream := newStubStream()
	streamer := &stubStreamer{stream: stream}
	s := testSession(t, backend, streamer)

	s.Submit(context.Background(), RepoTarget("https://github.com/acme/slow"))
	waitUntil(t, func() bool { return streamer.openCount() == 1 }, "stream was never opened")

	s.Reset()

	if snap := s.Snapshot(); snap.Status != StatusIdle {
		t.Fatalf("expected idle after reset, got %q", snap.Status)
	}
	if stream.closeCount() < 1 {
		t.Fatal("reset must close the log channel")
	}
}

func TestResubmitSupersedes(t *testing.T) {
	backend := newStubBackend()
	backend.scripts["s-1"] = []Status{StatusAnalyzing}
	backend.scripts["s-2"] = []Status{StatusCompleted}
	stream := newStubStream()
	streamer := &stubStreamer{stream: stream}
	s := testSession(t, backend, streamer)

	s.Submit(context.Background(), RepoTarget("https://github.com/acme/slow"))
	waitUntil(t, func() bool { return backend.pollCount("s-1") >= 1 }, "first run never polled")

	// Second stream for the second run.
	streamer.mu.Lock()
	streamer.stream = newStubStream()
	streamer.mu.Unlock()

	s.Submit(context.Background(), RepoTarget("https://github.com/acme/fast"))
	snap := waitTerminal(t, s)

	if snap.Target.RepoURL != "https://github.com/acme/fast" {
		t.Fatalf("expected superseding target, got %q", snap.Target.RepoURL)
	}
	if snap.SessionID != "s-2" {
		t.Fatalf("expected second session id, got %q", snap.SessionID)
	}
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q (error: %s)", snap.Status, snap.Err)
	}
	// The first run's stream was torn down before the second submission.
	if stream.closeCount() < 1 {
		t.Fatal("superseded run's stream was never closed")
	}
	for _, m := range messages(snap.LogEntries) {
		if strings.Contains(m, "slow") {
			t.Fatalf("state leaked from the superseded run: %v", messages(snap.LogEntries))
		}
	}
}

func TestSubscribeDeliversTerminalSnapshot(t *testing.T) {
	backend := newStubBackend(StatusPending, StatusCompleted)
	backend.violations = []Violation{{ID: 1, FilePath: "A.java", LineNumber: 1, Severity: "INFO", Message: "x"}}
	s := testSession(t, backend, nil)

	ch, cancel := s.Subscribe()
	defer cancel()

	s.Submit(context.Background(), RepoTarget("https://github.com/acme/x"))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case snap := <-ch:
			if snap.Status == StatusCompleted && len(snap.Violations) == 1 {
				return
			}
		case <-deadline:
			t.Fatal("subscriber never saw the final snapshot")
		}
	}
}

func TestSubscribeCancelIsIdempotent(t *testing.T) {
	s := testSession(t, newStubBackend(), nil)

	_, cancel := s.Subscribe()
	cancel()
	cancel()
}
