// Package history persists finished analyses in a local SQLite database so
// past runs survive across invocations without a backend account.
package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/stylewatch/stylewatch/internal/analysis"
)

// Run modes. Repo runs go through the asynchronous analysis pipeline,
// inline runs through the synchronous source check.
const (
	ModeRepo   = "repo"
	ModeInline = "inline"
)

// Run is one finished analysis as recorded locally.
type Run struct {
	ID         string    `json:"id"`
	Mode       string    `json:"mode"`
	Target     string    `json:"target"`
	SessionID  string    `json:"session_id,omitempty"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	Violations int       `json:"violations"`
	Score      float64   `json:"score"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// FromSnapshot converts a terminal session snapshot into a history row.
func FromSnapshot(snap analysis.Snapshot) *Run {
	mode := ModeRepo
	if snap.Target.Inline() {
		mode = ModeInline
	}
	return &Run{
		Mode:       mode,
		Target:     snap.Target.String(),
		SessionID:  snap.SessionID,
		Status:     string(snap.Status),
		Error:      snap.Err,
		Violations: len(snap.Violations),
		Score:      snap.Score,
		StartedAt:  snap.StartedAt,
		FinishedAt: snap.FinishedAt,
	}
}

// Store manages run persistence in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the history database at the given path.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent read/write performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id          TEXT PRIMARY KEY,
			mode        TEXT NOT NULL,
			target      TEXT NOT NULL,
			session_id  TEXT NOT NULL DEFAULT '',
			status      TEXT NOT NULL,
			error       TEXT NOT NULL DEFAULT '',
			violations  INTEGER NOT NULL DEFAULT 0,
			score       REAL NOT NULL DEFAULT 0,
			started_at  DATETIME NOT NULL,
			finished_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_runs_started_at
			ON runs(started_at);
	`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts a finished run, assigning it a short ID when it has none.
func (s *Store) Record(run *Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()[:8]
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (id, mode, target, session_id, status, error,
		                   violations, score, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Mode, run.Target, run.SessionID, run.Status, run.Error,
		run.Violations, run.Score, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// Get retrieves a run by ID.
func (s *Store) Get(id string) (*Run, error) {
	row := s.db.QueryRow(
		`SELECT id, mode, target, session_id, status, error,
		        violations, score, started_at, finished_at
		 FROM runs WHERE id = ?`, id,
	)
	return scanRun(row)
}

// List returns recorded runs, newest first. limit <= 0 returns all.
func (s *Store) List(limit int) ([]*Run, error) {
	q := `SELECT id, mode, target, session_id, status, error,
	             violations, score, started_at, finished_at
	      FROM runs ORDER BY started_at DESC, rowid DESC`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.Query(q+" LIMIT ?", limit)
	} else {
		rows, err = s.db.Query(q)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Stats aggregates the local run history.
type Stats struct {
	Total           int
	Completed       int
	Failed          int
	TotalViolations int
	// MeanScore averages the style score across completed inline checks,
	// the only runs that carry one.
	MeanScore float64
}

// Stats computes aggregate counters over all recorded runs.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	err := s.db.QueryRow(
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(violations), 0)
		 FROM runs`,
		string(analysis.StatusCompleted), string(analysis.StatusFailed),
	).Scan(&st.Total, &st.Completed, &st.Failed, &st.TotalViolations)
	if err != nil {
		return Stats{}, fmt.Errorf("aggregating runs: %w", err)
	}
	err = s.db.QueryRow(
		`SELECT COALESCE(AVG(score), 0) FROM runs WHERE mode = ? AND status = ?`,
		ModeInline, string(analysis.StatusCompleted),
	).Scan(&st.MeanScore)
	if err != nil {
		return Stats{}, fmt.Errorf("averaging scores: %w", err)
	}
	return st, nil
}

// --- Scan helpers ---

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*Run, error) {
	run := &Run{}
	err := row.Scan(
		&run.ID, &run.Mode, &run.Target, &run.SessionID, &run.Status,
		&run.Error, &run.Violations, &run.Score,
		&run.StartedAt, &run.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}
