package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/stylewatch/stylewatch/internal/analysis"
)

// severityRank orders violation severities for sorting and --fail-on gating.
var severityRank = map[string]int{
	"ignore":  0,
	"info":    1,
	"warning": 2,
	"error":   3,
}

func validateFailOn(level string) error {
	if level == "" {
		return nil
	}
	if _, ok := severityRank[strings.ToLower(level)]; !ok {
		return fmt.Errorf("unknown --fail-on severity %q (use info, warning, or error)", level)
	}
	return nil
}

// renderLive prints log lines as snapshots arrive until the session reaches
// a terminal state. It returns the number of entries printed so the caller
// can print whatever lands after the terminal transition.
func renderLive(ctx context.Context, snaps <-chan analysis.Snapshot) int {
	printed := 0
	for {
		select {
		case snap, ok := <-snaps:
			if !ok {
				return printed
			}
			for _, e := range snap.LogEntries[printed:] {
				printLogEntry(e)
			}
			printed = len(snap.LogEntries)
			if snap.Status.Terminal() {
				return printed
			}
		case <-ctx.Done():
			return printed
		}
	}
}

// printLogEntry renders one live log line, color-coded by level.
func printLogEntry(e analysis.LogEntry) {
	switch e.Level {
	case analysis.LevelError:
		fmt.Fprintf(os.Stderr, "\033[31m[error]\033[0m %s\n", e.Message)
	case analysis.LevelWarning:
		fmt.Printf("\033[33m[warning]\033[0m %s\n", e.Message)
	case analysis.LevelIgnore:
		fmt.Printf("\033[90m[ignore] %s\033[0m\n", e.Message)
	default:
		fmt.Printf("\033[36m[info]\033[0m %s\n", e.Message)
	}
}

// printViolations renders the violation table, worst severity first.
func printViolations(violations []analysis.Violation) {
	if len(violations) == 0 {
		fmt.Println("No violations found. 🎉")
		return
	}

	sorted := append([]analysis.Violation(nil), violations...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri := severityRank[strings.ToLower(sorted[i].Severity)]
		rj := severityRank[strings.ToLower(sorted[j].Severity)]
		if ri != rj {
			return ri > rj
		}
		if sorted[i].FilePath != sorted[j].FilePath {
			return sorted[i].FilePath < sorted[j].FilePath
		}
		return sorted[i].LineNumber < sorted[j].LineNumber
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEVERITY\tFILE\tLINE\tMESSAGE")
	for _, v := range sorted {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
			strings.ToUpper(v.Severity), v.FilePath, v.LineNumber, truncate(v.Message, 80))
	}
	w.Flush()
	fmt.Printf("\n%d violation(s)\n", len(violations))
}

func printCompilationErrors(errs []analysis.CompilationError) {
	if len(errs) == 0 {
		return
	}
	fmt.Println("\nCompilation errors:")
	for _, ce := range errs {
		fmt.Printf("  line %d: %s\n", ce.LineNumber, ce.Message)
	}
}

func statusIcon(status analysis.Status) string {
	switch status {
	case analysis.StatusSubmitting:
		return "📤 submitting"
	case analysis.StatusPending:
		return "⏳ pending"
	case analysis.StatusCloning:
		return "📥 cloning"
	case analysis.StatusAnalyzing:
		return "🔍 analyzing"
	case analysis.StatusCompleted:
		return "✅ completed"
	case analysis.StatusFailed:
		return "❌ failed"
	default:
		return string(status)
	}
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
