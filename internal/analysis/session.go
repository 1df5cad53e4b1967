package analysis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultPollInterval is how often a running session polls the status
	// endpoint.
	DefaultPollInterval = 2 * time.Second

	// DefaultCompletionMarker is the log-message prefix the backend emits once
	// an analysis has finished and results are ready to fetch.
	DefaultCompletionMarker = "Analysis completed"
)

// Option configures a Session.
type Option func(*Session)

// WithPollInterval overrides the status poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithCompletionMarker overrides the log-message prefix treated as the
// backend's completion signal.
func WithCompletionMarker(prefix string) Option {
	return func(s *Session) {
		if prefix != "" {
			s.marker = prefix
		}
	}
}

// Session owns at most one analysis attempt at a time. Submitting a new
// target tears the previous attempt down before the new one starts; state
// from a superseded attempt is discarded, never merged into the new one.
//
// Callers observe progress through Snapshot, Subscribe, or Wait. Nothing the
// backend does surfaces as a Go error from the session itself: every adapter
// failure is folded into the attempt's log and terminal status.
type Session struct {
	backend  Backend
	streams  LogStreamer
	interval time.Duration
	marker   string

	mu      sync.Mutex
	run     *run
	subs    map[int]chan Snapshot
	nextSub int
}

// run holds the state of a single attempt. Fields are mutated only under the
// session mutex, and only by the goroutine driving the attempt (plus the
// initial construction in Submit, before that goroutine exists). done is the
// terminal guard: the first signal to set it wins, later signals are no-ops.
type run struct {
	cancel context.CancelFunc
	doneCh chan struct{}

	status     Status
	target     Target
	sessionID  string
	logs       []LogEntry
	violations []Violation
	compErrs   []CompilationError
	score      float64
	errMsg     string
	startedAt  time.Time
	finishedAt time.Time
	done       bool
}

// NewSession builds a session around the given transports. streams may be nil
// when no real-time channel is available; the session then relies on polling
// alone.
func NewSession(backend Backend, streams LogStreamer, opts ...Option) *Session {
	s := &Session{
		backend:  backend,
		streams:  streams,
		interval: DefaultPollInterval,
		marker:   DefaultCompletionMarker,
		subs:     make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit starts a new attempt for target. Any previous attempt is torn down
// first: its polling loop is cancelled and its log channel closed before the
// new submission goes out. Submit returns once the new attempt is launched;
// it does not wait for a result.
func (s *Session) Submit(ctx context.Context, target Target) {
	runCtx, cancel := context.WithCancel(ctx)
	r := &run{
		cancel:    cancel,
		doneCh:    make(chan struct{}),
		status:    StatusSubmitting,
		target:    target,
		startedAt: time.Now(),
	}

	s.mu.Lock()
	prev := s.run
	s.run = r
	s.publishLocked(r)
	s.mu.Unlock()

	if prev != nil {
		prev.cancel()
		<-prev.doneCh
	}

	go s.execute(runCtx, r)
}

// Reset tears down the current attempt, if any, and returns the session to
// idle. Submit performs the same teardown implicitly; Reset exists for
// explicit cleanup when no new submission follows.
func (s *Session) Reset() {
	s.mu.Lock()
	prev := s.run
	s.run = nil
	s.mu.Unlock()

	if prev != nil {
		prev.cancel()
		<-prev.doneCh
	}

	s.mu.Lock()
	s.broadcastLocked(Snapshot{Status: StatusIdle})
	s.mu.Unlock()
}

// Snapshot returns a copy of the current attempt's state, or an idle snapshot
// when nothing has been submitted.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return Snapshot{Status: StatusIdle}
	}
	return s.snapshotLocked(s.run)
}

// Subscribe registers a snapshot listener. Every state change publishes the
// attempt's current snapshot; a slow listener misses superseded intermediate
// snapshots but always receives the latest one, so draining the channel after
// a terminal publish never blocks forever. The returned func unregisters the
// listener and closes the channel.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan Snapshot, 1)
	s.subs[id] = ch
	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Wait blocks until the attempt that is current when Wait is called finishes
// or is superseded, or until ctx is done. It returns that attempt's final
// snapshot; callers decide what a Failed status means for them.
func (s *Session) Wait(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	r := s.run
	s.mu.Unlock()
	if r == nil {
		return Snapshot{Status: StatusIdle}, nil
	}
	select {
	case <-ctx.Done():
		return s.Snapshot(), ctx.Err()
	case <-r.doneCh:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.snapshotLocked(r), nil
	}
}

// --- Attempt lifecycle ---

func (s *Session) execute(ctx context.Context, r *run) {
	defer close(r.doneCh)
	if r.target.Inline() {
		s.runInline(ctx, r)
		return
	}
	s.runRepo(ctx, r)
}

// runInline drives the synchronous inline-code path: one call, no session id,
// no polling, no log channel.
func (s *Session) runInline(ctx context.Context, r *run) {
	res, err := s.backend.CheckSource(ctx, r.target.Code, r.target.FileName, r.target.CheckCompilation)
	if err != nil {
		s.finishFailed(r, err.Error(), true)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r.done {
		return
	}
	r.done = true
	r.status = StatusCompleted
	r.violations = res.Violations
	r.compErrs = res.CompilationErrors
	r.score = res.Score
	r.finishedAt = time.Now()
	s.publishLocked(r)
}

// runRepo drives the repository path: submit, open the log channel, then loop
// over poll ticks and channel messages until the first terminal signal.
func (s *Session) runRepo(ctx context.Context, r *run) {
	id, err := s.backend.StartAnalysis(ctx, r.target.RepoURL)
	if err != nil {
		s.finishFailed(r, err.Error(), true)
		return
	}

	s.mu.Lock()
	if r.done {
		s.mu.Unlock()
		return
	}
	r.sessionID = id
	r.status = StatusPending
	s.publishLocked(r)
	s.mu.Unlock()

	// The channel is best-effort: if it cannot be opened the analysis still
	// runs server-side and polling alone decides the outcome.
	var stream LogStream
	var entries <-chan LogEntry
	if s.streams != nil {
		stream, err = s.streams.OpenLogStream(ctx, id)
		if err != nil {
			s.appendEntry(r, LogEntry{Level: LevelWarning, Message: fmt.Sprintf("log channel unavailable: %v", err)})
		} else {
			defer stream.Close()
			entries = stream.Entries()
		}
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			rep, err := s.backend.Status(ctx, id)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.finishFailed(r, fmt.Sprintf("status poll failed: %v", err), true)
				return
			}
			switch s.applyStatus(r, rep.Status) {
			case StatusCompleted:
				s.finishCompleted(ctx, r, id)
				return
			case StatusFailed:
				msg := rep.ErrorMessage
				if msg == "" {
					msg = "analysis failed on the server"
				}
				s.finishFailed(r, msg, true)
				return
			}

		case e, ok := <-entries:
			if !ok {
				// The channel died under us. That is an implicit completion
				// signal, but it never overwrites a terminal status already
				// set by polling (finishFailed no-ops once done is set).
				msg := "log channel closed before the analysis finished"
				if serr := stream.Err(); serr != nil {
					msg = fmt.Sprintf("log channel failed: %v", serr)
				}
				s.finishFailed(r, msg, true)
				return
			}
			s.appendEntry(r, e)
			switch {
			case e.Level == LevelError:
				s.finishFailed(r, e.Message, false)
				return
			case strings.HasPrefix(e.Message, s.marker):
				s.finishCompleted(ctx, r, id)
				return
			}
		}
	}
}

// applyStatus folds a poll response into the attempt and returns the
// effective status. The status only moves forward; a stale lower-ranked
// response changes nothing. A human-readable status line is appended unless
// it would repeat the immediately preceding log entry.
func (s *Session) applyStatus(r *run, st Status) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.done || st.rank() < r.status.rank() {
		return r.status
	}
	r.status = st
	line := fmt.Sprintf("Analysis status: %s", st)
	if n := len(r.logs); n == 0 || r.logs[n-1].Message != line {
		r.logs = append(r.logs, LogEntry{Level: LevelInfo, Message: line})
	}
	s.publishLocked(r)
	return st
}

// appendEntry appends a channel-delivered log entry verbatim. Entries for a
// finished attempt are dropped.
func (s *Session) appendEntry(r *run, e LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.done {
		return
	}
	r.logs = append(r.logs, e)
	s.publishLocked(r)
}

// finishCompleted is the single completion path. It marks the attempt done
// and Completed, then loads the violation list. A fetch failure downgrades
// the attempt to Failed with its own message even though the analysis itself
// succeeded.
func (s *Session) finishCompleted(ctx context.Context, r *run, id string) {
	s.mu.Lock()
	if r.done {
		s.mu.Unlock()
		return
	}
	r.done = true
	r.status = StatusCompleted
	s.publishLocked(r)
	s.mu.Unlock()

	violations, err := s.backend.Violations(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		r.status = StatusFailed
		r.errMsg = fmt.Sprintf("loading results failed: %v", err)
		r.logs = append(r.logs, LogEntry{Level: LevelError, Message: r.errMsg})
	} else {
		r.violations = violations
		r.logs = append(r.logs, LogEntry{Level: LevelInfo, Message: fmt.Sprintf("Results loaded (%d violations)", len(violations))})
	}
	r.finishedAt = time.Now()
	s.publishLocked(r)
}

// finishFailed marks the attempt done and Failed, recording msg as the error.
// When appendLine is set the message is also appended as an Error log entry;
// channel-derived failures already carry their own entry.
func (s *Session) finishFailed(r *run, msg string, appendLine bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.done {
		return
	}
	r.done = true
	r.status = StatusFailed
	r.errMsg = msg
	if appendLine {
		r.logs = append(r.logs, LogEntry{Level: LevelError, Message: msg})
	}
	r.finishedAt = time.Now()
	s.publishLocked(r)
}

// --- Snapshots and publication ---

func (s *Session) snapshotLocked(r *run) Snapshot {
	return Snapshot{
		Status:            r.status,
		Target:            r.target,
		SessionID:         r.sessionID,
		LogEntries:        append([]LogEntry(nil), r.logs...),
		Violations:        append([]Violation(nil), r.violations...),
		CompilationErrors: append([]CompilationError(nil), r.compErrs...),
		Score:             r.score,
		Err:               r.errMsg,
		StartedAt:         r.startedAt,
		FinishedAt:        r.finishedAt,
	}
}

// publishLocked broadcasts r's snapshot unless r has been superseded. A
// superseded attempt may still mutate its own state on the way out, but those
// writes stay invisible.
func (s *Session) publishLocked(r *run) {
	if s.run != r {
		return
	}
	s.broadcastLocked(s.snapshotLocked(r))
}

// broadcastLocked delivers snap to every subscriber without blocking. A full
// subscriber channel has its stale snapshot replaced, so the latest state is
// always receivable.
func (s *Session) broadcastLocked(snap Snapshot) {
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
