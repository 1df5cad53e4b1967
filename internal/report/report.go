// Package report turns terminal analysis snapshots into portable JSON
// artifacts for CI pipelines and archival.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/stylewatch/stylewatch/internal/analysis"
)

// Report is the exportable form of one finished analysis.
type Report struct {
	GeneratedAt       time.Time                   `json:"generatedAt"`
	Target            string                      `json:"target"`
	SessionID         string                      `json:"sessionId,omitempty"`
	Status            analysis.Status             `json:"status"`
	Error             string                      `json:"error,omitempty"`
	Score             float64                     `json:"score,omitempty"`
	Totals            map[string]int              `json:"totals"`
	Violations        []analysis.Violation        `json:"violations"`
	CompilationErrors []analysis.CompilationError `json:"compilationErrors,omitempty"`
}

// Build assembles a report from a terminal snapshot. Totals count
// violations per lowercased severity.
func Build(snap analysis.Snapshot) *Report {
	totals := make(map[string]int, 4)
	for _, v := range snap.Violations {
		totals[strings.ToLower(v.Severity)]++
	}
	return &Report{
		GeneratedAt:       time.Now().UTC(),
		Target:            snap.Target.String(),
		SessionID:         snap.SessionID,
		Status:            snap.Status,
		Error:             snap.Err,
		Score:             snap.Score,
		Totals:            totals,
		Violations:        snap.Violations,
		CompilationErrors: snap.CompilationErrors,
	}
}

// Filter keeps only violations whose file path matches the glob pattern.
// An empty pattern keeps everything; a pattern that does not compile is
// treated as a literal path.
func Filter(violations []analysis.Violation, pattern string) []analysis.Violation {
	if pattern == "" {
		return violations
	}
	match := func(path string) bool { return path == pattern }
	if g, err := glob.Compile(pattern); err == nil {
		match = g.Match
	}
	var kept []analysis.Violation
	for _, v := range violations {
		if match(v.FilePath) {
			kept = append(kept, v)
		}
	}
	return kept
}

// Encode renders the report as indented JSON with a trailing newline.
func (r *Report) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding report: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteJSON writes the report to path as indented JSON.
func (r *Report) WriteJSON(path string) error {
	data, err := r.Encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
