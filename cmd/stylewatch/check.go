package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/stylewatch/stylewatch"
	"github.com/stylewatch/stylewatch/internal/analysis"
)

var (
	checkFileName string
	checkCompile  bool
	checkWatch    bool
	checkFailOn   string
	checkReport   string
)

var checkCmd = &cobra.Command{
	Use:   "check [file]",
	Short: "Check a single Java source file",
	Long: `Run the synchronous style check on one Java file and print the
violations and style score. Pass "-" to read from stdin.

Example:
  stylewatch check src/main/java/Main.java
  stylewatch check Main.java --compile --fail-on warning
  stylewatch check Main.java --watch
  cat Main.java | stylewatch check - --filename Main.java`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkFileName, "filename", "", "File name reported to the analyzer (defaults to the file's base name)")
	checkCmd.Flags().BoolVar(&checkCompile, "compile", false, "Also check that the source compiles")
	checkCmd.Flags().BoolVarP(&checkWatch, "watch", "w", false, "Re-run the check whenever the file changes")
	checkCmd.Flags().StringVar(&checkFailOn, "fail-on", "", "Exit non-zero if any violation is at or above this severity")
	checkCmd.Flags().StringVar(&checkReport, "report", "", "Write a JSON report to this path")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	path := args[0]
	if err := validateFailOn(checkFailOn); err != nil {
		return err
	}
	if checkWatch && path == "-" {
		return fmt.Errorf("--watch cannot be combined with stdin input")
	}

	ctx, stop := signalContext()
	defer stop()

	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	if checkWatch {
		return watchAndCheck(ctx, app, path)
	}
	return checkOnce(ctx, app, path)
}

// checkOnce reads the source and drives one inline check to completion.
func checkOnce(ctx context.Context, app *stylewatch.App, path string) error {
	code, name, err := readSource(path)
	if err != nil {
		return err
	}
	if checkFileName != "" {
		name = checkFileName
	}

	app.Session.Submit(ctx, analysis.SourceTarget(code, name, checkCompile))
	snap, err := app.Session.Wait(ctx)
	if err != nil {
		return err
	}
	return finishRun(ctx, app, snap, finishOptions{failOn: checkFailOn, reportPath: checkReport})
}

// readSource loads the file, or stdin when path is "-".
func readSource(path string) (code, name string, err error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), "Stdin.java", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	return string(data), filepath.Base(path), nil
}

// watchAndCheck reruns the check on every change to path until interrupted.
// A failing check reports and keeps watching; only setup errors end the loop.
func watchAndCheck(ctx context.Context, app *stylewatch.App, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory rather than the file: editors that replace the
	// file on save would otherwise drop the watch.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	target, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	if err := checkOnce(ctx, app, path); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	fmt.Printf("\nWatching %s (Ctrl-C to stop)\n", path)

	// Editors fire several events per save; the timer coalesces them, and
	// the buffered trigger keeps reruns serialized on this goroutine.
	var timer *time.Timer
	const debounce = 300 * time.Millisecond
	triggers := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			evPath, err := filepath.Abs(ev.Name)
			if err != nil || evPath != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case triggers <- struct{}{}:
				default:
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "\033[33m[warning]\033[0m watcher: %v\n", err)

		case <-triggers:
			fmt.Printf("\n--- %s changed, rechecking ---\n\n", filepath.Base(path))
			if err := checkOnce(ctx, app, path); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
			fmt.Printf("\nWatching %s (Ctrl-C to stop)\n", path)
		}
	}
}
