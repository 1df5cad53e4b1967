package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/stylewatch/stylewatch"
	"github.com/stylewatch/stylewatch/internal/analysis"
	"github.com/stylewatch/stylewatch/internal/config"
	"github.com/stylewatch/stylewatch/internal/github"
	"github.com/stylewatch/stylewatch/internal/history"
	"github.com/stylewatch/stylewatch/internal/notify"
	"github.com/stylewatch/stylewatch/internal/report"
)

var (
	analyzeInterval    time.Duration
	analyzeFilter      string
	analyzeReport      string
	analyzeUpload      bool
	analyzeNoPreflight bool
	analyzeQuiet       bool
	analyzeFailOn      string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [repo-url]",
	Short: "Analyze a Git repository",
	Long: `Submit a repository URL for checkstyle analysis and stream progress
until it finishes.

Example:
  stylewatch analyze https://github.com/acme/billing
  stylewatch analyze https://github.com/acme/billing --fail-on error --report out.json`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().DurationVarP(&analyzeInterval, "interval", "i", 0, "Status poll interval (e.g. 500ms, 5s)")
	analyzeCmd.Flags().StringVar(&analyzeFilter, "filter", "", "Only keep violations whose file path matches this glob")
	analyzeCmd.Flags().StringVar(&analyzeReport, "report", "", "Write a JSON report to this path")
	analyzeCmd.Flags().BoolVar(&analyzeUpload, "upload-report", false, "Upload the JSON report to the configured object store")
	analyzeCmd.Flags().BoolVar(&analyzeNoPreflight, "no-preflight", false, "Skip the GitHub repository lookup")
	analyzeCmd.Flags().BoolVarP(&analyzeQuiet, "quiet", "q", false, "Suppress live log output")
	analyzeCmd.Flags().StringVar(&analyzeFailOn, "fail-on", "", "Exit non-zero if any violation is at or above this severity")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	repoURL := args[0]
	if err := validateFailOn(analyzeFailOn); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	app, err := newApp(func(cfg *config.Config) {
		if analyzeInterval > 0 {
			cfg.PollInterval = analyzeInterval
		}
	})
	if err != nil {
		return err
	}
	defer app.Close()

	if !analyzeNoPreflight {
		preflight(ctx, app, repoURL)
	}

	// Subscribe before submitting so no snapshot is missed.
	snaps, unsubscribe := app.Session.Subscribe()
	defer unsubscribe()

	app.Session.Submit(ctx, analysis.RepoTarget(repoURL))
	if !analyzeQuiet {
		fmt.Printf("Analyzing %s\n\n", repoURL)
	}

	printed := 0
	if !analyzeQuiet {
		printed = renderLive(ctx, snaps)
	}

	snap, err := app.Session.Wait(ctx)
	if err != nil {
		return err
	}
	if !analyzeQuiet {
		// Entries that landed after the terminal transition, like the
		// results-loaded line.
		for _, e := range snap.LogEntries[printed:] {
			printLogEntry(e)
		}
	}

	return finishRun(ctx, app, snap, finishOptions{
		filter:     analyzeFilter,
		reportPath: analyzeReport,
		upload:     analyzeUpload,
		failOn:     analyzeFailOn,
	})
}

// preflight warns about obvious submission mistakes without ever blocking
// the run: the backend stays the authority on what it can analyze.
func preflight(ctx context.Context, app *stylewatch.App, repoURL string) {
	if _, _, ok := github.SplitURL(repoURL); !ok {
		return
	}
	lookupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rep, err := app.Preflight.Preflight(lookupCtx, repoURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "\033[33m[warning]\033[0m preflight: %v\n", err)
		return
	}
	if !rep.HasJava {
		fmt.Fprintf(os.Stderr, "\033[33m[warning]\033[0m %s contains no Java; the analyzer will have nothing to check\n", rep.FullName())
	}
}

type finishOptions struct {
	filter     string
	reportPath string
	upload     bool
	failOn     string
}

// finishRun is the shared tail of analyze and check: record local history,
// notify, emit the report, render results, and map the outcome to the exit
// code. Failed analyses and tripped --fail-on gates return errors.
func finishRun(ctx context.Context, app *stylewatch.App, snap analysis.Snapshot, opts finishOptions) error {
	violations := report.Filter(snap.Violations, opts.filter)

	if app.History != nil {
		if err := app.History.Record(history.FromSnapshot(snap)); err != nil {
			log.Printf("recording history: %v", err)
		}
	}
	notify.NotifyAll(ctx, app.Notifiers(), snap)

	if opts.reportPath != "" || opts.upload {
		rep := report.Build(snap)
		rep.Violations = violations
		if opts.reportPath != "" {
			if err := rep.WriteJSON(opts.reportPath); err != nil {
				return err
			}
			fmt.Printf("Report written to %s\n", opts.reportPath)
		}
		if opts.upload {
			up, err := app.ReportUploader(ctx)
			if err != nil {
				return err
			}
			url, err := up.Upload(ctx, reportKey(snap), rep)
			if err != nil {
				return err
			}
			fmt.Printf("Report uploaded to %s\n", url)
		}
	}

	if snap.Status == analysis.StatusFailed {
		return fmt.Errorf("analysis failed: %s", snap.Err)
	}

	fmt.Printf("\n%s in %s", statusIcon(snap.Status), snap.FinishedAt.Sub(snap.StartedAt).Round(100*time.Millisecond))
	if snap.SessionID != "" {
		fmt.Printf(" (session %s)", snap.SessionID)
	}
	fmt.Print("\n\n")

	printViolations(violations)
	printCompilationErrors(snap.CompilationErrors)
	if snap.Target.Inline() {
		fmt.Printf("\nScore: %.1f\n", snap.Score)
	}

	if opts.failOn != "" {
		gate := severityRank[strings.ToLower(opts.failOn)]
		n := 0
		for _, v := range violations {
			if severityRank[strings.ToLower(v.Severity)] >= gate {
				n++
			}
		}
		if n > 0 {
			return fmt.Errorf("%d violation(s) at or above %s", n, strings.ToLower(opts.failOn))
		}
	}
	return nil
}

// reportKey names an uploaded report after the session, or the file for
// inline checks.
func reportKey(snap analysis.Snapshot) string {
	name := snap.SessionID
	if name == "" {
		if snap.Target.FileName != "" {
			name = strings.TrimSuffix(path.Base(snap.Target.FileName), ".java")
		} else {
			name = "inline"
		}
	}
	return fmt.Sprintf("reports/%s-%s.json", time.Now().UTC().Format("20060102-150405"), name)
}
